package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"approval-engine/internal/adapter/directory"
	httpadp "approval-engine/internal/adapter/http"
	"approval-engine/internal/adapter/middleware"
	"approval-engine/internal/adapter/presenter"
	"approval-engine/internal/app"
	"approval-engine/internal/config"
	"approval-engine/internal/infrastructure/metrics"
	"approval-engine/internal/usecase/approval"
	"approval-engine/internal/usecase/scanner"
	workflowUC "approval-engine/internal/usecase/workflow"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	pflag.Parse()

	cfg, err := app.Config(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fx.New(
		fx.Supply(cfg),
		app.Core,
		fx.Provide(
			NewEchoServer,
			NewRoutes,
			NewScheduler,
		),
		fx.Invoke(
			httpadp.Register,
			StartServer,
			StartScheduler,
		),
	).Run()
}

// NewEchoServer builds the echo instance with recovery and access logs.
func NewEchoServer(log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = httpadp.NewValidator()

	access := log.Named("http")
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			access.Info("request", fields...)
			return nil
		},
	}))
	return e
}

type routeParams struct {
	fx.In

	Config    *config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Usecase   *approval.Usecase
	Store     *workflowUC.Store
	Directory *directory.Directory
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

func NewRoutes(p routeParams) (httpadp.Routes, error) {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return httpadp.Routes{}, err
	}
	log := p.Logger.Named("http")
	ttl := time.Duration(p.Config.IdempTTLSecs) * time.Second
	return httpadp.Routes{
		Health:      httpadp.NewHandler(sqlDB),
		Approvals:   httpadp.NewApprovalHandler(p.Usecase, presenter.New(p.Directory), p.Directory, log),
		Workflows:   httpadp.NewWorkflowHandler(p.Store, log),
		Auth:        middleware.Auth(middleware.AuthConfig{Secret: []byte(p.Config.JWTSecret), SkipAuth: p.Config.SkipAuth}),
		Idempotency: middleware.Idempotency(p.Redis, ttl, log),
		Metrics:     p.Metrics.Handler(),
	}, nil
}

// StartServer listens in the background and drains on stop.
func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			addr := ":" + cfg.AppPort
			go func() {
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("listening", zap.String("addr", addr), zap.String("environment", cfg.Environment))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

func NewScheduler(cfg *config.Config, s *scanner.Scanner, log *zap.Logger) (*scanner.Scheduler, error) {
	return scanner.NewScheduler(s, cfg.ScannerSchedule, log.Named("scanner"))
}

func StartScheduler(lc fx.Lifecycle, sch *scanner.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sch.Start()
			return nil
		},
		OnStop: sch.Stop,
	})
}
