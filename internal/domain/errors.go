package domain

import "fmt"

// Validation error codes. A validation error rejects one operation with no
// mutation; the caller decides whether to retry or ignore.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeAlreadyTerminal   = "ALREADY_TERMINAL"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeNotOpen           = "NOT_OPEN"
	CodeCaseClosed        = "CASE_CLOSED"
)

type ValidationError struct {
	Code   string
	Entity string
	ID     string
	Detail string
}

func (e ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s %s: %s", e.Code, e.Entity, e.ID, e.Detail)
	}
	return fmt.Sprintf("%s: %s %s", e.Code, e.Entity, e.ID)
}

// InvariantViolation means the components are composed incorrectly; it aborts
// the whole operation and carries enough context to debug the defect.
type InvariantViolation struct {
	Invariant string
	Detail    string
	EntityIDs []string
}

func (e InvariantViolation) Error() string {
	return fmt.Sprintf("INVARIANT_VIOLATION: %s: %s (entities %v)", e.Invariant, e.Detail, e.EntityIDs)
}

// Skip reasons reported by derivation components. Informational, never fatal.
const (
	SkipUnmappedDocumentKind   = "UNMAPPED_DOCUMENT_KIND"
	SkipAlreadyExists          = "ALREADY_EXISTS"
	SkipUnresolvableCalendar   = "UNRESOLVABLE_CALENDAR"
	SkipExtensionNeedsDeadline = "EXTENSION_NEEDS_DEADLINE"
)
