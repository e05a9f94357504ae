// Package scanner sweeps pending approvals whose due date has passed and
// hands each one to the engine, one transaction per approval.
package scanner

import (
	"context"
	"fmt"
	"time"

	domainApproval "approval-engine/internal/domain/approval"
	"approval-engine/internal/usecase/approval"

	"go.uber.org/zap"
)

const defaultBatchSize = 200

type Engine interface {
	FlagOverdue(ctx context.Context, approvalID string, escalate bool) (approval.FlagOutcome, error)
}

type Candidates interface {
	OverdueCandidates(ctx context.Context, now time.Time, afterID uint64, limit int) ([]domainApproval.Candidate, error)
}

type Metrics interface {
	ScanFlagged()
	ScanEscalated()
	ScanFailed()
	ScanCompleted()
}

type Options struct {
	BatchSize int
	Escalate  bool
	Now       func() time.Time
}

// Report summarises one sweep.
type Report struct {
	Scanned    int       `json:"scanned"`
	Flagged    int       `json:"flagged"`
	Escalated  int       `json:"escalated"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type Scanner struct {
	engine   Engine
	repo     Candidates
	metrics  Metrics
	log      *zap.Logger
	now      func() time.Time
	batch    int
	escalate bool
}

func New(engine Engine, repo Candidates, metrics Metrics, log *zap.Logger, opts Options) *Scanner {
	s := &Scanner{
		engine:   engine,
		repo:     repo,
		metrics:  metrics,
		log:      log,
		now:      opts.Now,
		batch:    opts.BatchSize,
		escalate: opts.Escalate,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.batch <= 0 {
		s.batch = defaultBatchSize
	}
	return s
}

// Run walks the candidates in id order. A failing approval is logged and
// counted; it never stops the sweep. Only a failure to list candidates or a
// cancelled context ends the run early.
func (s *Scanner) Run(ctx context.Context) (Report, error) {
	rep := Report{StartedAt: s.now()}
	var after uint64
	for {
		if err := ctx.Err(); err != nil {
			return s.finish(rep), err
		}
		batch, err := s.repo.OverdueCandidates(ctx, rep.StartedAt, after, s.batch)
		if err != nil {
			s.log.Error("list overdue candidates", zap.Uint64("after_id", after), zap.Error(err))
			return s.finish(rep), fmt.Errorf("%w: %w", domainApproval.ErrPersistence, err)
		}
		for _, c := range batch {
			after = c.ID
			rep.Scanned++
			s.process(ctx, c, &rep)
		}
		if len(batch) < s.batch {
			break
		}
	}
	rep = s.finish(rep)
	if s.metrics != nil {
		s.metrics.ScanCompleted()
	}
	s.log.Info("overdue sweep finished",
		zap.Int("scanned", rep.Scanned),
		zap.Int("flagged", rep.Flagged),
		zap.Int("escalated", rep.Escalated),
		zap.Int("skipped", rep.Skipped),
		zap.Int("failed", rep.Failed),
		zap.Duration("took", rep.FinishedAt.Sub(rep.StartedAt)))
	return rep, nil
}

func (s *Scanner) process(ctx context.Context, c domainApproval.Candidate, rep *Report) {
	outcome, err := s.engine.FlagOverdue(ctx, c.ApprovalID, s.escalate)
	if err != nil {
		rep.Failed++
		if s.metrics != nil {
			s.metrics.ScanFailed()
		}
		s.log.Error("overdue approval not processed",
			zap.String("approval_id", c.ApprovalID), zap.Error(err))
		return
	}
	switch outcome {
	case approval.FlagFlagged:
		rep.Flagged++
		if s.metrics != nil {
			s.metrics.ScanFlagged()
		}
	case approval.FlagEscalated:
		rep.Flagged++
		rep.Escalated++
		if s.metrics != nil {
			s.metrics.ScanFlagged()
			s.metrics.ScanEscalated()
		}
	default:
		rep.Skipped++
	}
}

func (s *Scanner) finish(rep Report) Report {
	rep.FinishedAt = s.now()
	return rep
}
