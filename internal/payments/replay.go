package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type replayStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	ReplayKey(transactionID, status string) string
}

// ReplayGuard remembers (transaction id, status) deliveries that were already
// processed so gateway retries short-circuit before touching the database.
// The order registry stays authoritative; the guard only saves work.
type ReplayGuard struct {
	store replayStore
	ttl   time.Duration
}

func NewReplayGuard(store replayStore, ttl time.Duration) (*ReplayGuard, error) {
	if store == nil {
		return nil, errors.New("replay store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &ReplayGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark marks the delivery and reports whether it had been seen before.
func (g *ReplayGuard) CheckAndMark(ctx context.Context, transactionID, status string) (bool, error) {
	if g == nil {
		return false, nil
	}
	key, err := g.key(transactionID, status)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set replay key: %w", err)
	}
	return !set, nil
}

// Release forgets a delivery so the gateway's next retry is processed.
func (g *ReplayGuard) Release(ctx context.Context, transactionID, status string) error {
	if g == nil {
		return nil
	}
	key, err := g.key(transactionID, status)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *ReplayGuard) key(transactionID, status string) (string, error) {
	if strings.TrimSpace(transactionID) == "" {
		return "", errors.New("transaction id is required")
	}
	return g.store.ReplayKey(transactionID, status), nil
}
