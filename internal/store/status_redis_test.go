package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestStatus(t *testing.T) *RedisStatus {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStatus("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStatus: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newTestStatus(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Millisecond)
	in := Status{
		Status:   "processing",
		Progress: 40,
		Message:  "generation in progress",
		Start:    &start,
		Metadata: map[string]interface{}{"item_id": "it-1"},
	}
	if err := s.Set(ctx, "j1", in); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, found, err := s.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected job to be found")
	}
	if got.Status != "processing" || got.Progress != 40 || got.Message != "generation in progress" {
		t.Fatalf("unexpected status: %+v", got)
	}
	if got.Start == nil || !got.Start.Equal(start) {
		t.Fatalf("start time mismatch: %v", got.Start)
	}
	if got.Metadata["item_id"] != "it-1" {
		t.Fatalf("metadata mismatch: %+v", got.Metadata)
	}
}

func TestGetUnknownJob(t *testing.T) {
	s := newTestStatus(t)

	_, found, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("expected unknown job to report not found")
	}
}

func TestSetOverwritesState(t *testing.T) {
	s := newTestStatus(t)
	ctx := context.Background()

	if err := s.Set(ctx, "j1", Status{Status: "queued", Message: "queued"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	end := time.Now().UTC()
	if err := s.Set(ctx, "j1", Status{Status: "success", Progress: 100, Message: "completed", End: &end}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, found, err := s.Get(ctx, "j1")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if got.Status != "success" || got.Progress != 100 {
		t.Fatalf("unexpected status after overwrite: %+v", got)
	}
	if got.End == nil {
		t.Fatal("end time not recorded")
	}
}
