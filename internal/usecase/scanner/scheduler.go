package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the scanner on a cron spec ("@daily" by default). A sweep
// still running when the next one is due is skipped.
type Scheduler struct {
	cron    *cron.Cron
	scanner *Scanner
	log     *zap.Logger
	timeout time.Duration
}

func NewScheduler(s *Scanner, spec string, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if spec == "" {
		spec = "@daily"
	}
	cronLog := cron.PrintfLogger(zap.NewStdLog(log.Named("cron")))
	sch := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		scanner: s,
		log:     log,
		timeout: time.Hour,
	}
	if _, err := sch.cron.AddFunc(spec, sch.runOnce); err != nil {
		return nil, fmt.Errorf("scanner schedule %q: %w", spec, err)
	}
	return sch, nil
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.scanner.Run(ctx); err != nil {
		s.log.Error("scheduled overdue sweep failed", zap.Error(err))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Info("overdue scanner scheduled", zap.Time("next_run", e.Next))
	}
}

// Stop waits for a running sweep to finish or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
