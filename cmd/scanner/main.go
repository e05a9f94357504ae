// scanner sweeps pending approvals past their due date, flags them overdue
// and optionally escalates them. By default it runs one sweep and exits;
// with --daemon it stays up and sweeps on SCANNER_SCHEDULE.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"approval-engine/internal/app"
	"approval-engine/internal/usecase/scanner"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile  string
		daemon   bool
		escalate bool
		schedule string
	)
	flagSet := pflag.NewFlagSet("scanner", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flagSet.BoolVar(&daemon, "daemon", false, "stay running and sweep on the configured schedule")
	flagSet.BoolVar(&escalate, "escalate", true, "escalate overdue approvals whose level allows it")
	flagSet.StringVar(&schedule, "schedule", "", "cron spec for --daemon (default SCANNER_SCHEDULE)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := app.Config(envFile)
	if err != nil {
		return err
	}
	if flagSet.Changed("escalate") {
		cfg.ScannerEscalate = escalate
	}
	if schedule != "" {
		cfg.ScannerSchedule = schedule
	}

	var (
		s   *scanner.Scanner
		log *zap.Logger
	)
	fxApp := fx.New(
		fx.Supply(cfg),
		app.Core,
		fx.Populate(&s, &log),
	)
	if err := fxApp.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := fxApp.Stop(stopCtx); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !daemon {
		rep, err := s.Run(ctx)
		if err != nil {
			return err
		}
		if rep.Failed > 0 {
			return fmt.Errorf("%d of %d approvals failed", rep.Failed, rep.Scanned)
		}
		return nil
	}

	sch, err := scanner.NewScheduler(s, cfg.ScannerSchedule, log.Named("scanner"))
	if err != nil {
		return err
	}
	sch.Start()
	<-ctx.Done()
	log.Info("stopping scanner")
	stopCtx, cancelStop := context.WithTimeout(context.Background(), time.Minute)
	defer cancelStop()
	return sch.Stop(stopCtx)
}
