package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bahbah94/Orbex/internal/domain"
)

// defaultBookTTL bounds how stale a mirrored snapshot may get when the
// ingesting process dies without cleaning up.
const defaultBookTTL = 24 * time.Hour

// BookCache implements domain.BookCache by mirroring whole orderbook
// snapshots as JSON values, one key per symbol. The reducer publishes a full
// snapshot after every applied event, so there is no incremental update path
// to keep consistent.
type BookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBookCache creates a BookCache backed by the given Client. A ttl of zero
// selects the default.
func NewBookCache(c *Client, ttl time.Duration) *BookCache {
	if ttl <= 0 {
		ttl = defaultBookTTL
	}
	return &BookCache{rdb: c.Underlying(), ttl: ttl}
}

func bookKey(symbol string) string {
	return "orbex:book:" + symbol
}

// SetSnapshot stores the latest snapshot for the snapshot's symbol,
// replacing any previous value.
func (bc *BookCache) SetSnapshot(ctx context.Context, snap domain.OrderbookSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal book snapshot %s: %w", snap.Symbol, err)
	}
	if err := bc.rdb.Set(ctx, bookKey(snap.Symbol), payload, bc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set book snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

// GetSnapshot retrieves the latest mirrored snapshot for a symbol. It returns
// domain.ErrNotFound when no snapshot has been published.
func (bc *BookCache) GetSnapshot(ctx context.Context, symbol string) (domain.OrderbookSnapshot, error) {
	payload, err := bc.rdb.Get(ctx, bookKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OrderbookSnapshot{}, domain.ErrNotFound
		}
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: get book snapshot %s: %w", symbol, err)
	}

	var snap domain.OrderbookSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: unmarshal book snapshot %s: %w", symbol, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
