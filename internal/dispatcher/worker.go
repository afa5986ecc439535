package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/genstudio/internal/artifact"
	mpkg "github.com/local/genstudio/internal/metrics"
	"github.com/local/genstudio/internal/store"
	"github.com/local/genstudio/internal/studio"
)

// failedMessage is what job status reports on any generation failure. The
// backend detail stays in the logs.
const failedMessage = "video generation failed"

// Job is the queued video generation request. Frame travels as a data URI so
// the payload stays a single JSON document.
type Job struct {
	ID             string `json:"job_id"`
	UserID         string `json:"user_id"`
	Prompt         string `json:"prompt"`
	Frame          string `json:"frame,omitempty"`
	HighFidelity   bool   `json:"high_fidelity"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type Queue interface {
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
	Ack(ctx context.Context, msgID string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	AddDLQ(ctx context.Context, payload []byte, reason string) error
	IsIdemDone(ctx context.Context, key string) (bool, error)
	MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error
	Depths(ctx context.Context) (int64, int64, error)
}

type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
}

type Generator interface {
	GenerateVideo(ctx context.Context, req studio.VideoRequest) (studio.VideoResult, error)
}

type Gallery interface {
	Save(ctx context.Context, userID string, kind artifact.Kind, mime, prompt string, data []byte) (artifact.Item, error)
}

type Config struct {
	Concurrency int
	JobTimeout  time.Duration
}

// Worker drains the video job queue: each job runs the full generation flow
// and lands its artifact in the gallery, with status updates along the way.
type Worker struct {
	cfg     Config
	q       Queue
	status  StatusStore
	gen     Generator
	gallery Gallery
	stop    chan struct{}
}

func New(cfg Config, q Queue, status StatusStore, gen Generator, gallery Gallery) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 45 * time.Minute
	}
	return &Worker{cfg: cfg, q: q, status: status, gen: gen, gallery: gallery, stop: make(chan struct{})}
}

func (w *Worker) Start() {
	for i := 0; i < w.cfg.Concurrency; i++ {
		go w.loop(i)
	}
	go w.reportDepths()
}

func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	return nil
}

func (w *Worker) loop(id int) {
	consumer := fmt.Sprintf("worker-%d", id)
	log.Info().Int("worker", id).Msg("video worker started")
	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("video worker stopped")
			return
		default:
		}

		msgID, data, err := w.q.Dequeue(context.Background(), consumer, 2*time.Second)
		if err != nil {
			log.Error().Err(err).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if data == nil {
			continue
		}
		w.process(msgID, data)
	}
}

func (w *Worker) process(msgID string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.JobTimeout)
	defer cancel()
	defer func() {
		if err := w.q.Ack(context.Background(), msgID); err != nil {
			log.Error().Err(err).Str("msg_id", msgID).Msg("ack failed")
		}
	}()

	var job Job
	if err := json.Unmarshal(data, &job); err != nil || job.ID == "" {
		log.Error().Err(err).Msg("malformed job payload, dropping to DLQ")
		_ = w.q.AddDLQ(ctx, data, "malformed payload")
		return
	}

	if job.IdempotencyKey != "" {
		if done, _ := w.q.IsIdemDone(ctx, job.IdempotencyKey); done {
			log.Info().Str("job_id", job.ID).Msg("duplicate job, already completed")
			return
		}
	}

	if cancelled, _ := w.q.IsCancelled(ctx, job.ID); cancelled {
		log.Warn().Str("job_id", job.ID).Msg("job cancelled before processing")
		w.setStatus(ctx, job.ID, "cancelled", 0, "cancelled by user", nil)
		return
	}

	start := time.Now()
	w.setStatus(ctx, job.ID, "processing", 10, "generation in progress", nil)

	req := studio.VideoRequest{Prompt: job.Prompt, HighFidelity: job.HighFidelity}
	if job.Frame != "" {
		frame, err := artifact.ParseDataURI(job.Frame)
		if err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("invalid frame payload")
			w.fail(ctx, job, data, "invalid frame payload")
			return
		}
		req.Frame = &frame
	}

	res, err := w.gen.GenerateVideo(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Dur("elapsed", time.Since(start)).Msg("video generation failed")
		w.fail(ctx, job, data, err.Error())
		return
	}

	var item artifact.Item
	switch {
	case res.Video != nil:
		item, err = w.gallery.Save(ctx, job.UserID, artifact.KindVideo, res.Video.MIME, job.Prompt, res.Video.Data)
	case res.Image != nil:
		item, err = w.gallery.Save(ctx, job.UserID, artifact.KindImage, res.Image.MIME, job.Prompt, res.Image.Data)
	default:
		err = fmt.Errorf("generation produced no artifact")
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to store artifact")
		w.fail(ctx, job, data, "artifact store failed: "+err.Error())
		return
	}

	if job.IdempotencyKey != "" {
		_ = w.q.MarkIdemDone(ctx, job.IdempotencyKey, 24*time.Hour)
	}
	w.setStatus(ctx, job.ID, "success", 100, "completed", map[string]interface{}{
		"item_id": item.ID,
		"kind":    string(item.Kind),
		"mime":    item.MIME,
	})
	log.Info().
		Str("job_id", job.ID).
		Str("item_id", item.ID).
		Dur("elapsed", time.Since(start)).
		Msg("video job completed")
}

// fail records a terminal failure. The status message stays generic; the
// detailed reason goes to the DLQ and the logs only.
func (w *Worker) fail(ctx context.Context, job Job, payload []byte, reason string) {
	w.setStatus(ctx, job.ID, "failed", 0, failedMessage, nil)
	_ = w.q.AddDLQ(ctx, payload, reason)
}

func (w *Worker) setStatus(ctx context.Context, jobID, state string, progress int, msg string, meta map[string]interface{}) {
	st := store.Status{Status: state, Progress: progress, Message: msg, Metadata: meta}
	now := time.Now()
	switch state {
	case "processing":
		st.Start = &now
	case "success", "failed", "cancelled":
		st.End = &now
	}
	if err := w.status.Set(ctx, jobID, st); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("status update failed")
	}
}

func (w *Worker) reportDepths() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			depth, dlq, err := w.q.Depths(ctx)
			cancel()
			if err != nil {
				continue
			}
			mpkg.SetQueueDepth("stream", depth)
			mpkg.SetQueueDepth("dlq", dlq)
		}
	}
}
