package studio

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/genstudio/internal/ai"
	"github.com/local/genstudio/internal/artifact"
	"github.com/local/genstudio/internal/gateway"
	mpkg "github.com/local/genstudio/internal/metrics"
)

// VideoRequest describes a video generation call. Frame is an optional
// starting image. When HighFidelity is unset the request is served by the
// image path instead of the video backend.
type VideoRequest struct {
	Prompt       string
	Frame        *artifact.Image
	HighFidelity bool
}

// VideoResult is either a video clip or, when the request was substituted to
// the image path, a still image. Exactly one field is set.
type VideoResult struct {
	Video *artifact.Video
	Image *artifact.Image
}

// GenerateVideo runs the video generation flow: start the long-running
// backend job through the gateway, poll until it completes, then fetch the
// artifact bytes. Requests without the fidelity flag never reach the video
// backend; they are substituted to image generation (or editing, when a
// starting frame was provided).
func (s *Service) GenerateVideo(ctx context.Context, req VideoRequest) (VideoResult, error) {
	if !req.HighFidelity {
		log.Info().Bool("has_frame", req.Frame != nil).Msg("substituting video request to image path")
		if req.Frame != nil {
			im, err := s.EditImage(ctx, req.Prompt, *req.Frame)
			if err != nil {
				return VideoResult{}, err
			}
			return VideoResult{Image: &im}, nil
		}
		im, err := s.GenerateImage(ctx, req.Prompt)
		if err != nil {
			return VideoResult{}, err
		}
		return VideoResult{Image: &im}, nil
	}

	var frame *ai.Blob
	if req.Frame != nil {
		frame = &ai.Blob{
			MIMEType: req.Frame.MIME,
			Data:     base64.StdEncoding.EncodeToString(req.Frame.Data),
		}
	}

	name, err := gateway.Run(ctx, s.gw, func(ctx context.Context) (string, error) {
		return s.backend.StartVideoJob(ctx, s.models.Video, req.Prompt, frame)
	}, true)
	if err != nil {
		return VideoResult{}, err
	}
	log.Info().Str("operation", name).Msg("video job started")

	uri, err := s.pollVideoJob(ctx, name)
	if err != nil {
		return VideoResult{}, err
	}

	data, mime, err := s.backend.DownloadFile(ctx, uri)
	if err != nil {
		return VideoResult{}, err
	}
	return VideoResult{Video: &artifact.Video{MIME: mime, Data: data, URI: uri}}, nil
}

// pollVideoJob polls the operation until it reports done, the context ends,
// or the overall deadline passes. A zero PollTimeout polls without a
// deadline.
func (s *Service) pollVideoJob(ctx context.Context, name string) (string, error) {
	interval := s.video.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if s.video.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.video.PollTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("video job %s: %w", name, ctx.Err())
		case <-ticker.C:
		}
		mpkg.IncVideoPoll()

		job, err := s.backend.GetVideoJob(ctx, name)
		if err != nil {
			return "", err
		}
		if !job.Done {
			log.Debug().Str("operation", name).Msg("video job still running")
			continue
		}
		if job.Err != nil {
			return "", job.Err
		}
		if job.URI == "" {
			return "", fmt.Errorf("video job %s finished without an artifact", name)
		}
		return job.URI, nil
	}
}
