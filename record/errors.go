package record

import (
	"errors"
	"fmt"
)

var (
	// ErrProfileNotFound indicates no field exists for the requested profile.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrInvalidID indicates a profile ID that cannot be used as a key segment.
	ErrInvalidID = errors.New("invalid profile ID")
)

func invalidIDf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidID, fmt.Sprintf(format, args...))
}
