package approval

import "errors"

// Error taxonomy shared by the engine, the scanner and the adapters.
var (
	ErrNotFound            = errors.New("approval not found")
	ErrWorkflowNotFound    = errors.New("workflow not found")
	ErrInvalidWorkflow     = errors.New("invalid workflow")
	ErrWorkflowInUse       = errors.New("workflow is referenced by open approvals")
	ErrInvalidApprovable   = errors.New("invalid approvable")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("validation failed")
	ErrTerminalState       = errors.New("approval is in a terminal state")
	ErrInvalidTransition   = errors.New("action not allowed in current status")
	ErrConcurrencyConflict = errors.New("concurrent modification, please retry")
	ErrPersistence         = errors.New("persistence failure")
)

var domainErrors = []error{
	ErrNotFound, ErrWorkflowNotFound, ErrInvalidWorkflow, ErrWorkflowInUse,
	ErrInvalidApprovable, ErrUnauthorized, ErrValidation, ErrTerminalState,
	ErrInvalidTransition, ErrConcurrencyConflict, ErrPersistence,
}

// IsDomainError reports whether err already belongs to the taxonomy.
func IsDomainError(err error) bool {
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}
