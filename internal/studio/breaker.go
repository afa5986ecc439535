package studio

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	mpkg "github.com/local/genstudio/internal/metrics"
)

// Breaker is a per-model circuit breaker backed by Redis so all instances
// share the same cooldown state. Open extends the cooldown with exponential
// backoff per consecutive failure; Close resets it.
type Breaker struct {
	rdb         *redis.Client
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func NewBreaker(client *redis.Client, base, max time.Duration) *Breaker {
	if base <= 0 {
		base = 30 * time.Second
	}
	if max <= 0 {
		max = 5 * time.Minute
	}
	return &Breaker{rdb: client, baseBackoff: base, maxBackoff: max}
}

func (b *Breaker) key(model string) string {
	return fmt.Sprintf("cb:%s", strings.ToLower(model))
}

// IsOpen returns true while the model's cooldown is active.
func (b *Breaker) IsOpen(ctx context.Context, model string) bool {
	if b == nil || b.rdb == nil {
		return false
	}
	ts, err := b.rdb.Get(ctx, b.key(model)).Int64()
	if err != nil {
		return false
	}
	return time.Now().Unix() < ts
}

// Open starts or extends the cooldown, doubling per attempt up to maxBackoff.
func (b *Breaker) Open(ctx context.Context, model string) {
	if b == nil || b.rdb == nil {
		return
	}
	k := b.key(model)
	attempts, _ := b.rdb.Incr(ctx, k+":attempts").Result()
	if attempts < 1 {
		attempts = 1
	}
	d := b.baseBackoff * (1 << (attempts - 1))
	if d > b.maxBackoff || d <= 0 {
		d = b.maxBackoff
	}
	until := time.Now().Add(d).Unix()
	_ = b.rdb.Set(ctx, k, until, d).Err()
	mpkg.BreakerOpened(model)
	log.Warn().Str("model", model).Dur("cooldown", d).Int64("attempts", attempts).Msg("circuit breaker opened")
}

// Close resets the breaker for the model.
func (b *Breaker) Close(ctx context.Context, model string) {
	if b == nil || b.rdb == nil {
		return
	}
	k := b.key(model)
	deleted, _ := b.rdb.Del(ctx, k, k+":attempts").Result()
	if deleted > 0 {
		mpkg.BreakerClosed(model)
		log.Info().Str("model", model).Msg("circuit breaker closed")
	}
}
