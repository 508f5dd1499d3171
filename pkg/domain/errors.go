package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by workflow and persistence layers.
var (
	// ErrNoProjectConfigured is returned when an enrollment must be created
	// but no project exists to book it against.
	ErrNoProjectConfigured = errors.New("no project configured")
	// ErrNoActiveAssignment is returned by check-out style operations when
	// the bed has no open assignment. Callers may treat it as recoverable
	// and still normalize the bed status.
	ErrNoActiveAssignment = errors.New("no active assignment")
)

// NotFoundError indicates a referenced entity does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// ConflictError indicates a uniqueness constraint was violated, such as a
// duplicate ward name or bed number.
type ConflictError struct {
	Entity EntityType
	Field  string
	Value  string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Field, e.Value)
}

// ReferentialError indicates a delete was rejected because dependent records
// still reference the entity.
type ReferentialError struct {
	Entity     EntityType
	ID         string
	Dependents EntityType
}

func (e ReferentialError) Error() string {
	return fmt.Sprintf("%s %q still has %s records; remove them first", e.Entity, e.ID, e.Dependents)
}

// StateConflictError indicates a workflow precondition on bed status did not
// hold, typically because a concurrent operation won the transition first.
type StateConflictError struct {
	BedID  string
	Status BedStatus
	Want   BedStatus
}

func (e StateConflictError) Error() string {
	return fmt.Sprintf("bed %q is %s, not %s", e.BedID, e.Status, e.Want)
}
