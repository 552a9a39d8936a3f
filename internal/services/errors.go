package services

import (
	"errors"
	"fmt"

	"github.com/nbeldi/medossier/validation"
)

// Sentinel errors for the workflow engine. Handlers translate these into
// HTTP statuses; permission denials reuse gate.ErrUnauthorized and
// out-of-scope fetches surface as gorm.ErrRecordNotFound so callers
// cannot tell "hidden" from "missing".
var (
	// ErrRecordLocked: content edit on an approved record by a non-admin.
	ErrRecordLocked = errors.New("record locked")
	// ErrConflictingTransition: lost a status-change race; refetch and retry.
	ErrConflictingTransition = errors.New("conflicting transition")
	// ErrInvalidTransition: transition not defined from the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrReferenceGeneration: duplicate reference twice in a row. Fatal.
	ErrReferenceGeneration = errors.New("reference generation failed")
)

// ValidationError carries per-field violation codes back to the caller.
type ValidationError struct {
	Violations validation.Violations
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", map[string]string(e.Violations))
}
