package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"approval-engine/internal/adapter/repository/mysql"
	"approval-engine/internal/domain/approval"
	historyDomain "approval-engine/internal/domain/history"
	"approval-engine/internal/testutil/dbtest"
)

func TestLogger_Append(t *testing.T) {
	db := dbtest.Open(t)
	l := NewLogger(mysql.NewHistoryRepository(db))
	ctx := context.Background()
	at := time.Date(2025, 9, 6, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		in      Entry
		wantErr error
	}{
		{
			name: "submitted enters pending",
			in:   Entry{ApprovalID: 1, Action: historyDomain.ActionSubmitted, ActorID: "u-req", To: approval.StatusPending, Level: 1, At: at},
		},
		{
			name: "rejected with reason",
			in: Entry{ApprovalID: 1, Action: historyDomain.ActionRejected, ActorID: "u-1", From: approval.StatusPending,
				To: approval.StatusRejected, Level: 1, RejectionReason: "budget exceeded", At: at.Add(time.Minute)},
		},
		{
			name:    "rejected without reason",
			in:      Entry{ApprovalID: 1, Action: historyDomain.ActionRejected, ActorID: "u-1", From: approval.StatusPending, To: approval.StatusRejected},
			wantErr: approval.ErrValidation,
		},
		{
			name: "reason on non-reject",
			in: Entry{ApprovalID: 1, Action: historyDomain.ActionApproved, ActorID: "u-1", From: approval.StatusPending,
				To: approval.StatusApproved, RejectionReason: "nope"},
			wantErr: approval.ErrValidation,
		},
		{
			name:    "illegal successor",
			in:      Entry{ApprovalID: 1, Action: historyDomain.ActionApproved, ActorID: "u-1", From: approval.StatusApproved, To: approval.StatusPending},
			wantErr: approval.ErrInvalidTransition,
		},
		{
			name:    "unknown action",
			in:      Entry{ApprovalID: 1, Action: "teleported", ActorID: "u-1", From: approval.StatusPending, To: approval.StatusPending},
			wantErr: approval.ErrValidation,
		},
		{
			name:    "missing actor",
			in:      Entry{ApprovalID: 1, Action: historyDomain.ActionCommented, From: approval.StatusPending, To: approval.StatusPending},
			wantErr: approval.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := l.Append(ctx, tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want err=%v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if h.ID == 0 || h.Sequence == 0 {
				t.Fatalf("row not stored: %+v", h)
			}
		})
	}

	rows, err := l.ListFor(ctx, 1)
	if err != nil {
		t.Fatalf("ListFor: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want only the 2 valid entries", len(rows))
	}
	if rows[0].Action != historyDomain.ActionSubmitted || rows[1].RejectionReason == nil || *rows[1].RejectionReason != "budget exceeded" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].Comments != nil {
		t.Fatalf("empty comment should be stored as NULL")
	}
}

func TestLogger_TruncatesClientFields(t *testing.T) {
	db := dbtest.Open(t)
	l := NewLogger(mysql.NewHistoryRepository(db))

	h, err := l.Append(context.Background(), Entry{
		ApprovalID: 5, Action: historyDomain.ActionCommented, ActorID: "u-1",
		From: approval.StatusPending, To: approval.StatusPending, Comments: "  looks fine  ",
		UserAgent: strings.Repeat("x", 400),
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(h.UserAgent) != 255 || *h.Comments != "looks fine" || h.ActionAt.IsZero() {
		t.Fatalf("unexpected row: %+v", h)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "Mozilla/5.0", 255, "Mozilla/5.0"},
		{"ascii", strings.Repeat("a", 300), 255, strings.Repeat("a", 255)},
		{"two-byte rune on the edge", strings.Repeat("a", 254) + "é", 255, strings.Repeat("a", 254)},
		{"four-byte rune on the edge", "ab😀", 4, "ab"},
		{"rune fits exactly", strings.Repeat("a", 253) + "é", 255, strings.Repeat("a", 253) + "é"},
		{"ipv6 zone", "fe80::1%ет", 10, "fe80::1%е"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			if got != tt.want || !utf8.ValidString(got) {
				t.Fatalf("truncate(%q, %d) = %q (valid=%v), want %q", tt.in, tt.n, got, utf8.ValidString(got), tt.want)
			}
		})
	}
}

func TestLogger_TruncatedUserAgentIsValidUTF8(t *testing.T) {
	db := dbtest.Open(t)
	l := NewLogger(mysql.NewHistoryRepository(db))

	h, err := l.Append(context.Background(), Entry{
		ApprovalID: 6, Action: historyDomain.ActionCommented, ActorID: "u-1",
		From: approval.StatusPending, To: approval.StatusPending,
		UserAgent: strings.Repeat("a", 254) + "é",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(h.UserAgent) != 254 || !utf8.ValidString(h.UserAgent) {
		t.Fatalf("user agent %d bytes, valid=%v", len(h.UserAgent), utf8.ValidString(h.UserAgent))
	}
}
