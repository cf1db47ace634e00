// Package relay moves committed outbox rows to Pub/Sub. Rows are claimed with
// SKIP LOCKED inside one transaction per batch, so several relays can run side
// by side without publishing a row twice in the same pass.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/logger"
	"github.com/printlab/printlab-backend/pkg/metrics"
	"github.com/printlab/printlab-backend/pkg/outbox"
	"github.com/printlab/printlab-backend/pkg/outbox/registry"
	"github.com/printlab/printlab-backend/pkg/pubsub"
)

const (
	defaultBatchSize    = 50
	defaultMaxAttempts  = 10
	defaultPollInterval = 500 * time.Millisecond
	sendTimeout         = 15 * time.Second
	maxBackoff          = 10 * time.Second
	maxJitter           = 250 * time.Millisecond
)

// Sender publishes one message and waits for the broker acknowledgement.
type Sender interface {
	Send(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type rowStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type router interface {
	Route(row models.OutboxEvent) (*registry.Routed, error)
}

type Params struct {
	Logger       *logger.Logger
	DB           txRunner
	Rows         rowStore
	Router       router
	Sender       Sender
	Metrics      *metrics.OutboxMetrics
	BatchSize    int
	MaxAttempts  int
	PollInterval time.Duration
}

type Relay struct {
	logg         *logger.Logger
	db           txRunner
	rows         rowStore
	router       router
	sender       Sender
	metrics      *metrics.OutboxMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.DB == nil:
		return nil, errors.New("db required")
	case p.Rows == nil:
		return nil, errors.New("outbox repository required")
	case p.Router == nil:
		return nil, errors.New("event registry required")
	case p.Sender == nil:
		return nil, errors.New("sender required")
	}
	r := &Relay{
		logg:         p.Logger,
		db:           p.DB,
		rows:         p.Rows,
		router:       p.Router,
		sender:       p.Sender,
		metrics:      p.Metrics,
		batchSize:    p.BatchSize,
		maxAttempts:  p.MaxAttempts,
		pollInterval: p.PollInterval,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPollInterval
	}
	return r, nil
}

// Run drains batches back to back while rows are waiting, polls when the table
// is empty and backs off exponentially while batches fail.
func (r *Relay) Run(ctx context.Context) error {
	wait := r.pollInterval
	for {
		stats, err := r.drainOnce(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox.batch_failed", err)
			wait = min(2*wait, maxBackoff)
		case stats.empty():
			wait = r.pollInterval
		default:
			wait = 0
		}
		if err := pause(ctx, wait); err != nil {
			return err
		}
	}
}

type verdict int

const (
	delivered verdict = iota
	retry
	park
)

type batchStats struct {
	delivered int
	retried   int
	parked    int
}

func (s batchStats) empty() bool { return s.delivered+s.retried+s.parked == 0 }

// drainOnce claims one batch and settles every row in it. A row's failure is
// recorded on the row; only bookkeeping errors abort the batch.
func (r *Relay) drainOnce(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = batchStats{}
		claimed, err := r.rows.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		for _, row := range claimed {
			v, reason, cause := r.deliver(ctx, row)
			if err := r.settle(ctx, tx, row, v, reason, cause); err != nil {
				return err
			}
			switch v {
			case delivered:
				stats.delivered++
			case retry:
				stats.retried++
			case park:
				stats.parked++
			}
		}
		return nil
	})
	if err == nil && !stats.empty() {
		r.logg.Debug(r.logg.WithFields(ctx, map[string]any{
			"delivered": stats.delivered,
			"retried":   stats.retried,
			"parked":    stats.parked,
		}), "outbox.batch_settled")
	}
	return stats, err
}

func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent) (verdict, string, error) {
	routed, err := r.router.Route(row)
	if err != nil {
		return park, "unroutable", err
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	_, err = r.sender.Send(sendCtx, routed.Topic, row.Payload, attributes(row, routed))
	switch {
	case err == nil:
		return delivered, "", nil
	case outbox.IsPermanent(err), errors.Is(err, pubsub.ErrTopicNotConfigured), rejected(err):
		return park, "rejected", err
	case row.AttemptCount+1 >= r.maxAttempts:
		return park, "max_attempts", fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err)
	default:
		return retry, "", err
	}
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, v verdict, reason string, cause error) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	})
	eventType := string(row.EventType)

	switch v {
	case delivered:
		if err := r.rows.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		r.metrics.IncDelivered(eventType)
		r.logg.Info(logCtx, "outbox.event_delivered")
	case retry:
		if err := r.rows.MarkFailedTx(tx, row.ID, cause); err != nil {
			return fmt.Errorf("mark %s failed: %w", row.ID, err)
		}
		r.metrics.IncRetried(eventType)
		r.logg.Warn(r.logg.WithField(logCtx, "error", cause.Error()), "outbox.event_retry_scheduled")
	case park:
		if err := r.rows.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
			return fmt.Errorf("park %s: %w", row.ID, err)
		}
		r.metrics.IncParked(eventType, reason)
		r.logg.Warn(r.logg.WithFields(logCtx, map[string]any{
			"reason": reason,
			"error":  cause.Error(),
		}), "outbox.event_parked")
	}
	return nil
}

// rejected reports broker answers that will not change on retry.
func rejected(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.FailedPrecondition:
		return true
	}
	return false
}

func attributes(row models.OutboxEvent, routed *registry.Routed) map[string]string {
	return map[string]string{
		"event_id":       routed.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"occurred_at":    routed.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

// pause sleeps for d plus jitter, returning early when ctx ends.
func pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d + rand.N(maxJitter))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
