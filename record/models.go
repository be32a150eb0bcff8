// Package record stores health profiles with every sensitive field encrypted
// through crypto.Cipher. Fields written before encryption was introduced are
// read as plain JSON and re-encrypted by Migrate.
package record

import "time"

// Condition is a diagnosed medical condition.
type Condition struct {
	Name      string `json:"name"`
	Diagnosed string `json:"diagnosed,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Medication is a prescribed or over-the-counter drug.
type Medication struct {
	Name      string `json:"name"`
	Dose      string `json:"dose,omitempty"`
	Frequency string `json:"frequency,omitempty"`
}

// Supplement is a vitamin, mineral, or other supplement.
type Supplement struct {
	Name string `json:"name"`
	Dose string `json:"dose,omitempty"`
}

// Allergy is a known allergic reaction.
type Allergy struct {
	Substance string `json:"substance"`
	Reaction  string `json:"reaction,omitempty"`
	Severity  string `json:"severity,omitempty"`
}

// Profile groups one person's health data.
type Profile struct {
	ID          string       `json:"id"`
	Conditions  []Condition  `json:"conditions"`
	Medications []Medication `json:"medications"`
	Supplements []Supplement `json:"supplements"`
	Allergies   []Allergy    `json:"allergies"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Field names used as the last key segment.
const (
	FieldConditions  = "conditions"
	FieldMedications = "medications"
	FieldSupplements = "supplements"
	FieldAllergies   = "allergies"
	FieldUpdatedAt   = "updated_at"

	MaxIDLength = 256
)

// SensitiveFields lists the encrypted fields in write order.
var SensitiveFields = []string{FieldConditions, FieldMedications, FieldSupplements, FieldAllergies}
