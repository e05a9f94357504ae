package http

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	domainApproval "approval-engine/internal/domain/approval"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		code int
		msg  string
	}{
		{domainApproval.ErrNotFound, http.StatusNotFound, ""},
		{domainApproval.ErrWorkflowNotFound, http.StatusNotFound, ""},
		{domainApproval.ErrUnauthorized, http.StatusForbidden, ""},
		{fmt.Errorf("%w: rejection_reason is required", domainApproval.ErrValidation), http.StatusUnprocessableEntity, "validation failed: rejection_reason is required"},
		{domainApproval.ErrInvalidWorkflow, http.StatusUnprocessableEntity, ""},
		{domainApproval.ErrInvalidApprovable, http.StatusUnprocessableEntity, ""},
		{domainApproval.ErrTerminalState, http.StatusConflict, ""},
		{domainApproval.ErrInvalidTransition, http.StatusConflict, ""},
		{domainApproval.ErrWorkflowInUse, http.StatusConflict, ""},
		{fmt.Errorf("%w: version 3", domainApproval.ErrConcurrencyConflict), http.StatusConflict, msgRetry},
		{fmt.Errorf("%w: %w", domainApproval.ErrPersistence, errors.New("dial tcp: refused")), http.StatusServiceUnavailable, msgTransient},
		{errors.New("boom"), http.StatusInternalServerError, msgInternal},
	}
	for _, tt := range tests {
		code, msg := statusOf(tt.err)
		if code != tt.code {
			t.Errorf("%v: code = %d, want %d", tt.err, code, tt.code)
		}
		want := tt.msg
		if want == "" {
			want = tt.err.Error()
		}
		if msg != want {
			t.Errorf("%v: msg = %q, want %q", tt.err, msg, want)
		}
	}
}
