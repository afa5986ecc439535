package gateway

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	mpkg "github.com/local/genstudio/internal/metrics"
)

// Tier is one ranked attempt in a fallback chain. Absorbed tiers bypass the
// gateway entirely: their failures are logged and swallowed, never surfaced
// and never prompted for. Skip allows a tier to be sidestepped (e.g. when its
// model's circuit breaker is open); skipping behaves like absorption.
type Tier[T any] struct {
	Name   string
	Prompt bool
	Absorb bool
	Skip   func(ctx context.Context) bool
	Run    func(ctx context.Context) (T, error)
}

// ErrTiersExhausted is returned when every tier was absorbed or skipped and
// none produced a result.
var ErrTiersExhausted = errors.New("all generation tiers failed")

// RunTiers evaluates tiers in order until one succeeds or the list is
// exhausted. The surfaced error is the last non-absorbed failure.
func RunTiers[T any](ctx context.Context, g *Gateway, kind string, tiers []Tier[T]) (T, error) {
	var zero T
	var lastErr error

	for i, tier := range tiers {
		if tier.Skip != nil && tier.Skip(ctx) {
			log.Debug().Str("kind", kind).Str("tier", tier.Name).Msg("tier skipped")
			continue
		}
		if i > 0 {
			mpkg.IncFallback(kind, tier.Name)
		}

		if tier.Absorb {
			out, err := tier.Run(ctx)
			if err == nil {
				return out, nil
			}
			log.Warn().
				Err(err).
				Str("kind", kind).
				Str("tier", tier.Name).
				Msg("tier failed - falling back")
			continue
		}

		out, err := Run(ctx, g, tier.Run, tier.Prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = ErrTiersExhausted
	}
	return zero, lastErr
}
