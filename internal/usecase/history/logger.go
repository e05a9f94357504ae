// Package history appends and reads the approval audit trail.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"approval-engine/internal/domain/approval"
	historyDomain "approval-engine/internal/domain/history"
)

// Entry is one transition to record.
type Entry struct {
	ApprovalID      uint64
	Action          historyDomain.Action
	ActorID         string
	At              time.Time
	From            approval.Status
	To              approval.Status
	Level           int
	Comments        string
	RejectionReason string
	IPAddress       string
	UserAgent       string
}

type Logger struct {
	repo historyDomain.Repository
	now  func() time.Time
}

func NewLogger(repo historyDomain.Repository) *Logger {
	return &Logger{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// WithRepo returns a logger writing through repo, typically one bound to a transaction.
func (l *Logger) WithRepo(repo historyDomain.Repository) *Logger {
	return &Logger{repo: repo, now: l.now}
}

// Append validates e and stores it as the next row of its approval.
func (l *Logger) Append(ctx context.Context, e Entry) (*historyDomain.ApprovalHistory, error) {
	if err := validate(e); err != nil {
		return nil, err
	}
	at := e.At
	if at.IsZero() {
		at = l.now()
	}
	h := &historyDomain.ApprovalHistory{
		ApprovalID:      e.ApprovalID,
		Action:          e.Action,
		ActionBy:        e.ActorID,
		ActionAt:        at.UTC(),
		FromStatus:      string(e.From),
		ToStatus:        string(e.To),
		ApprovalLevel:   e.Level,
		Comments:        optional(e.Comments),
		RejectionReason: optional(e.RejectionReason),
		IPAddress:       truncate(e.IPAddress, 45),
		UserAgent:       truncate(e.UserAgent, 255),
	}
	if err := l.repo.Append(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// ListFor returns the approval's history ordered by action_at.
func (l *Logger) ListFor(ctx context.Context, approvalID uint64) ([]historyDomain.ApprovalHistory, error) {
	return l.repo.ListByApprovalID(ctx, approvalID)
}

func validate(e Entry) error {
	if e.ApprovalID == 0 || e.ActorID == "" {
		return fmt.Errorf("%w: history entry needs approval and actor", approval.ErrValidation)
	}
	if !e.Action.Valid() {
		return fmt.Errorf("%w: unknown history action %q", approval.ErrValidation, e.Action)
	}
	hasReason := strings.TrimSpace(e.RejectionReason) != ""
	if e.Action == historyDomain.ActionRejected && !hasReason {
		return fmt.Errorf("%w: rejection_reason is required", approval.ErrValidation)
	}
	if e.Action != historyDomain.ActionRejected && hasReason {
		return fmt.Errorf("%w: rejection_reason is only recorded on rejection", approval.ErrValidation)
	}
	if e.Action == historyDomain.ActionSubmitted {
		if e.From != "" || e.To != approval.StatusPending {
			return fmt.Errorf("%w: submission must enter pending", approval.ErrValidation)
		}
		return nil
	}
	if !approval.CanTransition(e.From, e.To) {
		return fmt.Errorf("%w: %s -> %s", approval.ErrInvalidTransition, e.From, e.To)
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
