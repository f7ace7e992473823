// Package numbering issues human-readable order and batch numbers from Redis
// counters. Uniqueness is still enforced by the database indexes.
package numbering

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/repairhub-backend/pkg/config"
)

const (
	scopeRepairOrder    = "repair_order_no"
	scopeTransportBatch = "transport_batch_no"
	defaultPadding      = 6

	// counterTTL outlives the calendar year a counter belongs to.
	counterTTL = 400 * 24 * time.Hour
)

type counterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	CounterKey(parts ...string) string
}

// Generator hands out sequential numbers per calendar year.
type Generator struct {
	store       counterStore
	orderPrefix string
	batchPrefix string
	padding     int
	now         func() time.Time
}

// NewGenerator upper-cases the configured prefixes, since scanned codes are
// upper-cased before lookup.
func NewGenerator(store counterStore, cfg config.NumberingConfig) (*Generator, error) {
	if store == nil {
		return nil, fmt.Errorf("counter store required")
	}
	g := &Generator{
		store:       store,
		orderPrefix: normalizePrefix(cfg.OrderPrefix),
		batchPrefix: normalizePrefix(cfg.BatchPrefix),
		padding:     cfg.Padding,
		now:         time.Now,
	}
	if g.orderPrefix == "" {
		g.orderPrefix = "RO"
	}
	if g.batchPrefix == "" {
		g.batchPrefix = "BATCH"
	}
	if g.padding <= 0 {
		g.padding = defaultPadding
	}
	return g, nil
}

func normalizePrefix(prefix string) string {
	return strings.ToUpper(strings.TrimSpace(prefix))
}

// NextOrderNo returns e.g. RO-2026-000042.
func (g *Generator) NextOrderNo(ctx context.Context) (string, error) {
	return g.next(ctx, scopeRepairOrder, g.orderPrefix)
}

// NextBatchNo returns e.g. BATCH-2026-000007.
func (g *Generator) NextBatchNo(ctx context.Context) (string, error) {
	return g.next(ctx, scopeTransportBatch, g.batchPrefix)
}

func (g *Generator) next(ctx context.Context, scope, prefix string) (string, error) {
	year := strconv.Itoa(g.now().UTC().Year())
	seq, err := g.store.IncrWithTTL(ctx, g.store.CounterKey(scope, year), counterTTL)
	if err != nil {
		return "", fmt.Errorf("increment %s counter: %w", scope, err)
	}
	return fmt.Sprintf("%s-%s-%0*d", prefix, year, g.padding, seq), nil
}
