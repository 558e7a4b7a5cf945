package types

import (
	"strings"

	"github.com/google/uuid"
)

// RefID is the stable identifier assigned by the identity source.
// It is the join key for teams and is carried on destination teams as "reference".
type RefID string

// String returns the string representation
func (id RefID) String() string {
	return string(id)
}

// UserID is a destination-assigned user identifier
type UserID string

// String returns the string representation
func (id UserID) String() string {
	return string(id)
}

// TeamID is a destination-assigned team identifier
type TeamID string

// String returns the string representation
func (id TeamID) String() string {
	return string(id)
}

// Email is the natural join key between source and destination users
type Email string

// String returns the string representation
func (e Email) String() string {
	return string(e)
}

// Key returns the normalized form used for joining (trimmed, lower case)
func (e Email) Key() string {
	return strings.ToLower(strings.TrimSpace(string(e)))
}

// RunID identifies one reconciliation run
type RunID string

// String returns the string representation
func (id RunID) String() string {
	return string(id)
}

// NewRunID creates a new time-ordered RunID using UUID v7
func NewRunID() (RunID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return RunID(id.String()), nil
}

// Trigger tells what started a run
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerHTTP     Trigger = "http"
	TriggerCLI      Trigger = "cli"
)

// String returns the string representation
func (t Trigger) String() string {
	return string(t)
}

// IsValid checks if the trigger is one of the known values
func (t Trigger) IsValid() bool {
	switch t {
	case TriggerSchedule, TriggerHTTP, TriggerCLI:
		return true
	}
	return false
}
