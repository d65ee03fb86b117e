package model

import (
	"fmt"
	"time"
)

// Kind distinguishes record subtypes by their provenance role.
type Kind string

const (
	// KindRecord is a plain record with no subtype.
	KindRecord Kind = "record"

	// KindFact is pre-existing input (raw data, software, configuration).
	// Facts cannot be derived from other records.
	KindFact Kind = "fact"

	// KindData is data produced by the workflow (simulation output, analyses).
	KindData Kind = "data"

	// KindModel is a model trained or updated from other records.
	KindModel Kind = "model"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindRecord, KindFact, KindData, KindModel:
		return true
	}
	return false
}

// ParseKind converts a string to a Kind. Empty input means KindRecord.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return KindRecord, nil
	}
	k := Kind(s)
	if !k.Valid() {
		return "", NewInvalidArgument(fmt.Sprintf("unknown record kind %q", s))
	}
	return k, nil
}

// AcceptsPredecessors reports whether records of this kind may be derived
// from other records.
func (k Kind) AcceptsPredecessors() bool {
	return k != KindFact
}

// Record is a provenance node.
//
// A Record value is a mirror of the persisted row at the time it was read.
// Re-fetch it from the store to observe concurrent mutation.
type Record struct {
	// ID is assigned by the store on first persist. Zero before that.
	ID int64 `json:"id"`

	// Name is informational only.
	Name string `json:"name"`

	// Kind is the record subtype.
	Kind Kind `json:"kind"`

	// CreatedAt defaults to the store clock at creation time.
	CreatedAt time.Time `json:"created_at"`

	// InvalidationID references the bound Invalidation. Empty means valid.
	InvalidationID string `json:"invalidation_id,omitempty"`

	// ActionID references the bound InvalidationAction, if any.
	ActionID string `json:"invalidation_action_id,omitempty"`
}

// Persisted reports whether the store has assigned an id.
func (r Record) Persisted() bool {
	return r.ID != 0
}

// IsValid reports whether no invalidation is bound to the record.
func (r Record) IsValid() bool {
	return r.InvalidationID == ""
}

// String renders the record for log and CLI output.
func (r Record) String() string {
	if r.Name == "" {
		return fmt.Sprintf("Record[%d]", r.ID)
	}
	return fmt.Sprintf("Record[%d](%q)", r.ID, r.Name)
}

// Derivation is a directed edge: Successor was derived from Predecessor.
type Derivation struct {
	PredecessorID int64     `json:"predecessor_id"`
	SuccessorID   int64     `json:"successor_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// URI is an external resource reference attached to a record.
type URI struct {
	ID       int64  `json:"id"`
	RecordID int64  `json:"record_id"`
	URI      string `json:"uri"`
}
