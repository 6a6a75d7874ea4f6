package store

import "fmt"

// NotFoundError indicates a referenced resource does not exist. These are
// caller errors: reported immediately, never retried.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ParentNotFoundError indicates the parent message named in an append does
// not exist in the target thread. Kept distinct from NotFoundError so callers
// can report "bad parent" separately from "bad thread".
type ParentNotFoundError struct {
	ThreadID        int64
	ParentMessageID int64
}

func (e *ParentNotFoundError) Error() string {
	return fmt.Sprintf("parent message %d not found in thread %d", e.ParentMessageID, e.ThreadID)
}

// ValidationError indicates a client-side validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ConflictError indicates a uniqueness/conflict violation.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}
