// Package notify delivers engine notifications. Delivery is best effort:
// the engine logs a failed Notify and carries on.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"approval-engine/internal/usecase/approval"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Log writes every notification to the logger.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("notify")}
}

func (l *Log) Notify(_ context.Context, n approval.Notification) error {
	l.log.Info("approval notification",
		zap.String("kind", string(n.Kind)),
		zap.Strings("recipients", n.Recipients),
		zap.String("approval_id", n.ApprovalID),
		zap.String("status", string(n.Status)),
		zap.Int("level", n.Level),
		zap.String("actor_id", n.ActorID))
	return nil
}

// Redis publishes notifications as JSON on a pub/sub channel for the
// delivery workers (mail, chat, push) to pick up.
type Redis struct {
	rdb     *redis.Client
	channel string
}

func NewRedis(rdb *redis.Client, channel string) *Redis {
	return &Redis{rdb: rdb, channel: channel}
}

func (r *Redis) Notify(ctx context.Context, n approval.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", r.channel, err)
	}
	return nil
}

// Fanout hands each notification to every target and joins their errors.
type Fanout []approval.Notifier

func (f Fanout) Notify(ctx context.Context, n approval.Notification) error {
	var errs []error
	for _, t := range f {
		if err := t.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
