package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestIsBusyGroupErr(t *testing.T) {
	if isBusyGroupErr(nil) {
		t.Error("nil is not a busy-group error")
	}
	if !isBusyGroupErr(errors.New("BUSYGROUP Consumer Group name already exists")) {
		t.Error("expected BUSYGROUP reply to match")
	}
	if isBusyGroupErr(errors.New("connection refused")) {
		t.Error("unrelated error must not match")
	}
}

func newTestQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := NewRedisQueue("redis://"+mr.Addr(), "jobs:test", "workers:test")
	if err != nil {
		t.Fatalf("NewRedisQueue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q, mr
}

func TestNewRedisQueueIdempotent(t *testing.T) {
	q, mr := newTestQueue(t)
	_ = q

	// second connect against the same stream must tolerate the existing group
	q2, err := NewRedisQueue("redis://"+mr.Addr(), "jobs:test", "workers:test")
	if err != nil {
		t.Fatalf("NewRedisQueue on existing group: %v", err)
	}
	q2.Close()
}

func TestEnqueueDequeueAck(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	payload := []byte(`{"job_id":"j1"}`)
	if err := q.Enqueue(ctx, payload); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	msgID, data, err := q.Dequeue(ctx, "worker-0", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if msgID == "" || string(data) != string(payload) {
		t.Fatalf("unexpected message: id=%q data=%q", msgID, data)
	}
	if err := q.Ack(ctx, msgID); err != nil {
		t.Fatalf("Ack: %v", err)
	}
}

func TestCancelJob(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	cancelled, err := q.IsCancelled(ctx, "j1")
	if err != nil {
		t.Fatalf("IsCancelled: %v", err)
	}
	if cancelled {
		t.Fatal("job should not start cancelled")
	}
	if err := q.CancelJob(ctx, "j1"); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	cancelled, err = q.IsCancelled(ctx, "j1")
	if err != nil {
		t.Fatalf("IsCancelled: %v", err)
	}
	if !cancelled {
		t.Fatal("expected job to be cancelled")
	}
}

func TestIdempotencyMarkers(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	done, err := q.IsIdemDone(ctx, "k1")
	if err != nil || done {
		t.Fatalf("fresh key should not be done: done=%v err=%v", done, err)
	}
	if err := q.MarkIdemDone(ctx, "k1", time.Hour); err != nil {
		t.Fatalf("MarkIdemDone: %v", err)
	}
	done, err = q.IsIdemDone(ctx, "k1")
	if err != nil || !done {
		t.Fatalf("expected key done: done=%v err=%v", done, err)
	}

	// empty keys are a no-op
	if done, err := q.IsIdemDone(ctx, ""); err != nil || done {
		t.Fatalf("empty key must never be done: done=%v err=%v", done, err)
	}
}

func TestDepths(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, []byte("a")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.AddDLQ(ctx, []byte("b"), "broken"); err != nil {
		t.Fatalf("AddDLQ: %v", err)
	}

	depth, dlq, err := q.Depths(ctx)
	if err != nil {
		t.Fatalf("Depths: %v", err)
	}
	if depth != 1 || dlq != 1 {
		t.Fatalf("unexpected depths: stream=%d dlq=%d", depth, dlq)
	}
}
