package gateway

import (
	"context"
	"errors"
	"testing"
)

func TestRunTiersFirstTierWins(t *testing.T) {
	g := New(&fakePrompter{available: true})
	secondCalled := false

	out, err := RunTiers(context.Background(), g, "image", []Tier[string]{
		{Name: "quality", Absorb: true, Run: func(ctx context.Context) (string, error) { return "hq", nil }},
		{Name: "standard", Prompt: true, Run: func(ctx context.Context) (string, error) {
			secondCalled = true
			return "lq", nil
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hq" {
		t.Errorf("expected quality tier result, got %q", out)
	}
	if secondCalled {
		t.Error("fallback tier must not run after a success")
	}
}

func TestRunTiersAbsorbedFailureFallsThrough(t *testing.T) {
	p := &fakePrompter{available: true}
	g := New(p)

	out, err := RunTiers(context.Background(), g, "image", []Tier[string]{
		{Name: "quality", Absorb: true, Run: func(ctx context.Context) (string, error) {
			// Retryable-looking failure, but absorbed tiers never prompt.
			return "", errors.New("PERMISSION_DENIED")
		}},
		{Name: "standard", Prompt: true, Run: func(ctx context.Context) (string, error) { return "lq", nil }},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "lq" {
		t.Errorf("expected fallback result, got %q", out)
	}
	if p.calls != 0 {
		t.Errorf("tier-1 failures must never trigger the prompt flow, got %d", p.calls)
	}
}

func TestRunTiersSurfacesLastGatewayError(t *testing.T) {
	g := New(&fakePrompter{available: false})

	_, err := RunTiers(context.Background(), g, "image", []Tier[string]{
		{Name: "quality", Absorb: true, Run: func(ctx context.Context) (string, error) {
			return "", errors.New("tier one exploded")
		}},
		{Name: "standard", Prompt: true, Run: func(ctx context.Context) (string, error) {
			return "", errors.New("standard model unavailable")
		}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "standard model unavailable" {
		t.Errorf("expected the non-absorbed failure, got %q", err.Error())
	}
}

func TestRunTiersSkip(t *testing.T) {
	g := New(&fakePrompter{available: false})
	firstCalled := false

	out, err := RunTiers(context.Background(), g, "image", []Tier[string]{
		{
			Name:   "quality",
			Absorb: true,
			Skip:   func(ctx context.Context) bool { return true },
			Run: func(ctx context.Context) (string, error) {
				firstCalled = true
				return "hq", nil
			},
		},
		{Name: "standard", Run: func(ctx context.Context) (string, error) { return "lq", nil }},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if firstCalled {
		t.Error("skipped tier must not run")
	}
	if out != "lq" {
		t.Errorf("expected fallback result, got %q", out)
	}
}

func TestRunTiersAllAbsorbedExhausted(t *testing.T) {
	g := New(&fakePrompter{available: false})

	_, err := RunTiers(context.Background(), g, "image", []Tier[string]{
		{Name: "quality", Absorb: true, Run: func(ctx context.Context) (string, error) {
			return "", errors.New("boom")
		}},
	})
	if !errors.Is(err, ErrTiersExhausted) {
		t.Fatalf("expected ErrTiersExhausted, got %v", err)
	}
}
