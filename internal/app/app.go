// Package app assembles the approval engine's object graph for the
// binaries under cmd/.
package app

import (
	"context"
	"fmt"

	"approval-engine/internal/adapter/directory"
	"approval-engine/internal/adapter/notify"
	"approval-engine/internal/adapter/repository/mysql"
	"approval-engine/internal/config"
	"approval-engine/internal/infrastructure/cache"
	"approval-engine/internal/infrastructure/db"
	"approval-engine/internal/infrastructure/logger"
	"approval-engine/internal/infrastructure/metrics"
	"approval-engine/internal/usecase/approvable"
	"approval-engine/internal/usecase/approval"
	"approval-engine/internal/usecase/history"
	"approval-engine/internal/usecase/scanner"
	workflowUC "approval-engine/internal/usecase/workflow"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Core provides everything except the transport. The caller supplies
// *config.Config.
var Core = fx.Options(
	fx.Provide(
		logger.New,
		NewDatabase,
		NewRedis,
		metrics.New,
		mysql.NewApprovalRepository,
		mysql.NewVoteRepository,
		mysql.NewHistoryRepository,
		mysql.NewWorkflowRepository,
		mysql.NewGormUoW,
		NewHistoryLogger,
		NewDirectory,
		NewStore,
		NewApprovables,
		NewNotifier,
		NewUsecase,
		NewScanner,
	),
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log.Named("fx")}
	}),
	fx.Invoke(SeedWorkflows),
)

// Config loads the environment (optionally from a dotenv file) and
// validates it before anything is opened.
func Config(envFile string) (*config.Config, error) {
	cfg, err := config.LoadFile(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func NewDatabase(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	gdb, err := db.OpenGorm(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := mysql.Migrate(gdb); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("gorm: schema migrated")
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return gdb, nil
}

func NewRedis(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	rdb, err := cache.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("redis: connected", zap.String("addr", cfg.RedisAddr))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return rdb.Close() },
	})
	return rdb, nil
}

func NewHistoryLogger(repo *mysql.HistoryRepository) *history.Logger {
	return history.NewLogger(repo)
}

func NewDirectory(cfg *config.Config, log *zap.Logger) (*directory.Directory, error) {
	dir, err := directory.Load(cfg.DirectoryFile)
	if err != nil {
		return nil, err
	}
	log.Info("directory loaded", zap.String("file", cfg.DirectoryFile), zap.Int("users", len(dir.Users())))
	return dir, nil
}

func NewStore(repo *mysql.WorkflowRepository, tx *mysql.GormUoW, log *zap.Logger) *workflowUC.Store {
	return workflowUC.NewStore(repo, tx, log.Named("workflows"))
}

func NewApprovables(cfg *config.Config, log *zap.Logger) *approvable.Registry {
	reg := approvable.NewRegistry()
	reg.RegisterPassthrough(cfg.ApprovableTypes...)
	if len(reg.Types()) == 0 {
		log.Warn("no approvable types registered; set APPROVABLE_TYPES")
	}
	return reg
}

func NewNotifier(cfg *config.Config, rdb *redis.Client, log *zap.Logger) approval.Notifier {
	return notify.Fanout{
		notify.NewLog(log),
		notify.NewRedis(rdb, cfg.NotifyChannel),
	}
}

type UsecaseParams struct {
	fx.In

	Config      *config.Config
	UoW         *mysql.GormUoW
	Approvals   *mysql.ApprovalRepository
	Votes       *mysql.VoteRepository
	Store       *workflowUC.Store
	History     *history.Logger
	Directory   *directory.Directory
	Approvables *approvable.Registry
	Notifier    approval.Notifier
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

func NewUsecase(p UsecaseParams) *approval.Usecase {
	return approval.NewUsecase(approval.Deps{
		UoW:                p.UoW,
		Approvals:          p.Approvals,
		Votes:              p.Votes,
		Workflows:          p.Store,
		History:            p.History,
		Approvers:          p.Directory,
		Escalation:         p.Directory,
		Approvables:        p.Approvables,
		Notifier:           p.Notifier,
		Metrics:            p.Metrics,
		Logger:             p.Logger.Named("approvals"),
		ParallelEscalation: p.Config.ParallelEscalation,
	})
}

func NewScanner(cfg *config.Config, uc *approval.Usecase, approvals *mysql.ApprovalRepository, m *metrics.Metrics, log *zap.Logger) *scanner.Scanner {
	return scanner.New(uc, approvals, m, log.Named("scanner"), scanner.Options{
		BatchSize: cfg.ScannerBatchSize,
		Escalate:  cfg.ScannerEscalate,
	})
}

// SeedWorkflows upserts DEFINITIONS_FILE into the store on start.
func SeedWorkflows(lc fx.Lifecycle, cfg *config.Config, store *workflowUC.Store, log *zap.Logger) {
	if cfg.DefinitionsFile == "" {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			defs, err := workflowUC.LoadDefinitions(cfg.DefinitionsFile)
			if err != nil {
				return err
			}
			rep, err := store.Seed(ctx, defs)
			if err != nil {
				return fmt.Errorf("seed workflows: %w", err)
			}
			log.Info("workflows seeded",
				zap.String("file", cfg.DefinitionsFile),
				zap.Int("created", rep.Created),
				zap.Int("updated", rep.Updated),
				zap.Int("skipped", rep.Skipped))
			return nil
		},
	})
}
