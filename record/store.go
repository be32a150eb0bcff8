package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmcleod/healthseal/crypto"
	"github.com/jmcleod/healthseal/internal/uuid"
	"github.com/jmcleod/healthseal/storage"
)

const keyPrefix = "profile/"

// Store persists profiles field by field in a storage.Repository.
type Store struct {
	repo   storage.Repository
	cipher *crypto.Cipher
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore returns a Store writing to repo through cipher.
func NewStore(repo storage.Repository, cipher *crypto.Cipher, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		cipher: cipher,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func fieldKey(id, field string) string {
	return keyPrefix + id + "/" + field
}

func profilePrefix(id string) string {
	return keyPrefix + id + "/"
}

// Save encrypts and writes every sensitive field of p. An empty ID is
// replaced with a new UUID; UpdatedAt is set to the current time.
func (s *Store) Save(ctx context.Context, p *Profile) error {
	if p.ID == "" {
		p.ID = uuid.New()
	}
	if err := validateID(p.ID); err != nil {
		return err
	}
	p.UpdatedAt = s.now().UTC()

	for _, field := range SensitiveFields {
		envelope, err := s.sealField(ctx, p, field)
		if err != nil {
			return fmt.Errorf("encrypting %s: %w", field, err)
		}
		if err := s.repo.Put(ctx, fieldKey(p.ID, field), envelope); err != nil {
			return fmt.Errorf("writing %s: %w", field, err)
		}
	}
	if err := s.repo.Put(ctx, fieldKey(p.ID, FieldUpdatedAt), p.UpdatedAt.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("writing %s: %w", FieldUpdatedAt, err)
	}
	s.logger.Debug("saved profile", slog.String("id", p.ID))
	return nil
}

func (s *Store) sealField(ctx context.Context, p *Profile, field string) (string, error) {
	switch field {
	case FieldConditions:
		return crypto.EncryptStructured(ctx, s.cipher, orEmpty(p.Conditions))
	case FieldMedications:
		return crypto.EncryptStructured(ctx, s.cipher, orEmpty(p.Medications))
	case FieldSupplements:
		return crypto.EncryptStructured(ctx, s.cipher, orEmpty(p.Supplements))
	case FieldAllergies:
		return crypto.EncryptStructured(ctx, s.cipher, orEmpty(p.Allergies))
	default:
		return "", fmt.Errorf("unknown field %q", field)
	}
}

func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// Load reads the profile with the given ID. Missing or unreadable fields come
// back as empty lists; only storage and key failures are returned as errors.
func (s *Store) Load(ctx context.Context, id string) (*Profile, error) {
	if err := s.requireProfile(ctx, id); err != nil {
		return nil, err
	}

	p := &Profile{ID: id}
	var err error
	if p.Conditions, err = loadField(ctx, s, id, FieldConditions, []Condition{}); err != nil {
		return nil, err
	}
	if p.Medications, err = loadField(ctx, s, id, FieldMedications, []Medication{}); err != nil {
		return nil, err
	}
	if p.Supplements, err = loadField(ctx, s, id, FieldSupplements, []Supplement{}); err != nil {
		return nil, err
	}
	if p.Allergies, err = loadField(ctx, s, id, FieldAllergies, []Allergy{}); err != nil {
		return nil, err
	}

	raw, err := s.repo.Get(ctx, fieldKey(id, FieldUpdatedAt))
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", FieldUpdatedAt, err)
	default:
		if t, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			p.UpdatedAt = t
		}
	}
	return p, nil
}

func (s *Store) requireProfile(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	keys, err := s.repo.List(ctx, profilePrefix(id))
	if err != nil {
		return fmt.Errorf("listing profile fields: %w", err)
	}
	if len(keys) == 0 {
		return fmt.Errorf("%s: %w", id, ErrProfileNotFound)
	}
	return nil
}

func loadField[T any](ctx context.Context, s *Store, id, field string, fallback T) (T, error) {
	raw, err := s.repo.Get(ctx, fieldKey(id, field))
	if errors.Is(err, storage.ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("reading %s: %w", field, err)
	}
	v, _, err := decodeField(ctx, s, field, raw, fallback)
	return v, err
}

// decodeField routes raw through the cipher when it looks like an envelope
// and through plain JSON otherwise. legacy reports that raw was readable
// plaintext JSON.
func decodeField[T any](ctx context.Context, s *Store, field, raw string, fallback T) (v T, legacy bool, err error) {
	if raw == "" {
		return fallback, false, nil
	}
	if crypto.LooksEncrypted(raw) {
		plaintext, err := s.cipher.Decrypt(ctx, raw)
		if err != nil {
			return fallback, false, fmt.Errorf("decrypting %s: %w", field, err)
		}
		if plaintext != "" {
			if err := json.Unmarshal([]byte(plaintext), &v); err != nil {
				s.logger.Warn("decrypted field is not valid JSON",
					slog.String("field", field), slog.Any("error", fmt.Errorf("%w: %w", crypto.ErrParse, err)))
				return fallback, false, nil
			}
			return v, false, nil
		}
		// Rejected: either base64-looking legacy text or an envelope this
		// key cannot open. Plain JSON parsing decides.
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.logger.Warn("field is unreadable", slog.String("field", field))
		return fallback, false, nil
	}
	return v, true, nil
}

// Migrate re-encrypts every legacy plaintext field of one profile and
// returns how many were rewritten. Running it again migrates nothing.
func (s *Store) Migrate(ctx context.Context, id string) (int, error) {
	if err := s.requireProfile(ctx, id); err != nil {
		return 0, err
	}
	migrated := 0
	for _, field := range SensitiveFields {
		raw, err := s.repo.Get(ctx, fieldKey(id, field))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return migrated, fmt.Errorf("reading %s: %w", field, err)
		}
		doc, legacy, err := decodeField[json.RawMessage](ctx, s, field, raw, nil)
		if err != nil {
			return migrated, err
		}
		if !legacy {
			continue
		}
		envelope, err := s.cipher.Encrypt(ctx, string(doc))
		if err != nil {
			return migrated, fmt.Errorf("encrypting %s: %w", field, err)
		}
		if err := s.repo.Put(ctx, fieldKey(id, field), envelope); err != nil {
			return migrated, fmt.Errorf("writing %s: %w", field, err)
		}
		migrated++
	}
	if migrated > 0 {
		s.logger.Info("migrated legacy fields", slog.String("id", id), slog.Int("fields", migrated))
	}
	return migrated, nil
}

// MigrationReport summarises a MigrateAll run.
type MigrationReport struct {
	Profiles int // profiles with at least one migrated field
	Fields   int
}

// MigrateAll runs Migrate over every stored profile.
func (s *Store) MigrateAll(ctx context.Context) (MigrationReport, error) {
	var report MigrationReport
	ids, err := s.List(ctx)
	if err != nil {
		return report, err
	}
	for _, id := range ids {
		n, err := s.Migrate(ctx, id)
		report.Fields += n
		if n > 0 {
			report.Profiles++
		}
		if err != nil {
			return report, fmt.Errorf("migrating %s: %w", id, err)
		}
	}
	return report, nil
}

// List returns the IDs of all stored profiles in ascending order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.repo.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	var ids []string
	for _, k := range keys {
		id, _, ok := strings.Cut(strings.TrimPrefix(k, keyPrefix), "/")
		if !ok {
			continue
		}
		if len(ids) == 0 || ids[len(ids)-1] != id {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Delete removes every field of the profile.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	keys, err := s.repo.List(ctx, profilePrefix(id))
	if err != nil {
		return fmt.Errorf("listing profile fields: %w", err)
	}
	if len(keys) == 0 {
		return fmt.Errorf("%s: %w", id, ErrProfileNotFound)
	}
	for _, k := range keys {
		if err := s.repo.Delete(ctx, k); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("deleting %s: %w", k, err)
		}
	}
	s.logger.Info("deleted profile", slog.String("id", id))
	return nil
}

// FieldState describes how a stored field is currently held.
type FieldState string

const (
	StateMissing    FieldState = "missing"
	StateEncrypted  FieldState = "encrypted"
	StateLegacy     FieldState = "legacy"
	StateUnreadable FieldState = "unreadable"
)

// FieldStatus is one entry of Inspect.
type FieldStatus struct {
	Field string
	State FieldState
}

// Inspect reports the state of each sensitive field without returning any
// plaintext.
func (s *Store) Inspect(ctx context.Context, id string) ([]FieldStatus, error) {
	if err := s.requireProfile(ctx, id); err != nil {
		return nil, err
	}
	out := make([]FieldStatus, 0, len(SensitiveFields))
	for _, field := range SensitiveFields {
		st := FieldStatus{Field: field}
		raw, err := s.repo.Get(ctx, fieldKey(id, field))
		switch {
		case errors.Is(err, storage.ErrNotFound):
			st.State = StateMissing
		case err != nil:
			return nil, fmt.Errorf("reading %s: %w", field, err)
		default:
			doc, legacy, err := decodeField[json.RawMessage](ctx, s, field, raw, nil)
			if err != nil {
				return nil, err
			}
			switch {
			case legacy:
				st.State = StateLegacy
			case doc == nil:
				st.State = StateUnreadable
			default:
				st.State = StateEncrypted
			}
		}
		out = append(out, st)
	}
	return out, nil
}
