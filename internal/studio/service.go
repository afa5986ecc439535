package studio

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/genstudio/internal/ai"
	"github.com/local/genstudio/internal/artifact"
	"github.com/local/genstudio/internal/config"
	"github.com/local/genstudio/internal/gateway"
	"github.com/local/genstudio/internal/history"
	mpkg "github.com/local/genstudio/internal/metrics"
)

// Service implements the studio call sites on top of the generative backend.
// Each call site carries its own retry and fallback policy; the shared
// gateway handles classification and the one-shot credential refresh.
type Service struct {
	backend ai.Backend
	gw      *gateway.Gateway
	breaker *Breaker
	history *history.Store
	models  config.ModelsConfig
	studio  config.StudioConfig
	video   config.VideoConfig
}

func NewService(backend ai.Backend, gw *gateway.Gateway, breaker *Breaker, hist *history.Store, cfg config.Config) *Service {
	return &Service{
		backend: backend,
		gw:      gw,
		breaker: breaker,
		history: hist,
		models:  cfg.Models,
		studio:  cfg.Studio,
		video:   cfg.Video,
	}
}

func (s *Service) reqCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.studio.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.studio.RequestTimeout)
}

// generate is the instrumented backend call shared by the image and chat
// paths.
func (s *Service) generate(ctx context.Context, kind, model string, contents []ai.Content, opts *ai.GenerateOptions) (*ai.GenerateResponse, error) {
	start := time.Now()
	resp, err := s.backend.GenerateContent(ctx, model, contents, opts)
	result := "ok"
	if err != nil {
		result = "error"
	}
	mpkg.ObserveBackend(kind, model, result, time.Since(start))
	return resp, err
}

// GenerateImage renders a prompt into an image. The quality model is tried
// first; its failures are absorbed and the standard model takes over, with
// the credential-refresh flow enabled only on that final tier.
func (s *Service) GenerateImage(ctx context.Context, prompt string) (artifact.Image, error) {
	ctx, cancel := s.reqCtx(ctx)
	defer cancel()

	contents := []ai.Content{{Role: "user", Parts: []ai.Part{{Text: prompt}}}}
	opts := &ai.GenerateOptions{ResponseModalities: []string{"TEXT", "IMAGE"}}

	tiers := []gateway.Tier[artifact.Image]{
		{
			Name:   "quality",
			Absorb: true,
			Skip: func(ctx context.Context) bool {
				return s.breaker.IsOpen(ctx, s.models.ImageQuality)
			},
			Run: func(ctx context.Context) (artifact.Image, error) {
				resp, err := s.generate(ctx, "image", s.models.ImageQuality, contents, opts)
				if err != nil {
					s.breaker.Open(ctx, s.models.ImageQuality)
					return artifact.Image{}, err
				}
				s.breaker.Close(ctx, s.models.ImageQuality)
				return ai.ImageFromResponse(resp)
			},
		},
		{
			Name:   "standard",
			Prompt: true,
			Run: func(ctx context.Context) (artifact.Image, error) {
				resp, err := s.generate(ctx, "image", s.models.ImageStandard, contents, opts)
				if err != nil {
					return artifact.Image{}, err
				}
				return ai.ImageFromResponse(resp)
			},
		},
	}

	return gateway.RunTiers(ctx, s.gw, "image", tiers)
}

// EditImage applies an instruction to an existing image. Single tier with
// the credential-refresh flow enabled.
func (s *Service) EditImage(ctx context.Context, prompt string, base artifact.Image) (artifact.Image, error) {
	ctx, cancel := s.reqCtx(ctx)
	defer cancel()

	contents := []ai.Content{{Role: "user", Parts: []ai.Part{
		{Text: prompt},
		{InlineData: &ai.Blob{MIMEType: base.MIME, Data: base64.StdEncoding.EncodeToString(base.Data)}},
	}}}
	opts := &ai.GenerateOptions{ResponseModalities: []string{"TEXT", "IMAGE"}}

	out, err := gateway.Run(ctx, s.gw, func(ctx context.Context) (artifact.Image, error) {
		resp, err := s.generate(ctx, "edit", s.models.ImageStandard, contents, opts)
		if err != nil {
			return artifact.Image{}, err
		}
		return ai.ImageFromResponse(resp)
	}, true)
	return out, err
}

// Chat sends a message in a conversation. When useSearch is set the grounded
// model runs with the search tool enabled and citations come back with the
// reply. History is loaded before and persisted after the exchange.
func (s *Service) Chat(ctx context.Context, userID, convID, message string, useSearch bool) (artifact.Reply, error) {
	ctx, cancel := s.reqCtx(ctx)
	defer cancel()

	model := s.models.Chat
	var opts *ai.GenerateOptions
	if useSearch {
		model = s.models.ChatGrounded
		opts = &ai.GenerateOptions{Tools: []ai.Tool{{GoogleSearch: &struct{}{}}}}
	}

	contents := make([]ai.Content, 0, 16)
	if s.history != nil {
		turns, err := s.history.List(ctx, userID, convID)
		if err != nil {
			log.Warn().Err(err).Str("conv_id", convID).Msg("chat history unavailable, continuing without it")
		}
		for _, t := range turns {
			contents = append(contents, ai.Content{Role: t.Role, Parts: []ai.Part{{Text: t.Text}}})
		}
	}
	contents = append(contents, ai.Content{Role: "user", Parts: []ai.Part{{Text: message}}})

	reply, err := gateway.Run(ctx, s.gw, func(ctx context.Context) (artifact.Reply, error) {
		resp, err := s.generate(ctx, "chat", model, contents, opts)
		if err != nil {
			return artifact.Reply{}, err
		}
		return ai.ReplyFromResponse(resp)
	}, true)
	if err != nil {
		return artifact.Reply{}, err
	}

	if s.history != nil {
		if err := s.history.Append(ctx, userID, convID, history.Turn{Role: "user", Text: message}); err != nil {
			log.Warn().Err(err).Str("conv_id", convID).Msg("failed to persist user turn")
		}
		if err := s.history.Append(ctx, userID, convID, history.Turn{Role: "model", Text: reply.Text}); err != nil {
			log.Warn().Err(err).Str("conv_id", convID).Msg("failed to persist model turn")
		}
	}
	return reply, nil
}

// AnalyzeVideo asks the analysis model about an uploaded clip. Single tier
// with the credential-refresh flow enabled.
func (s *Service) AnalyzeVideo(ctx context.Context, prompt, mime string, clip []byte) (string, error) {
	ctx, cancel := s.reqCtx(ctx)
	defer cancel()

	contents := []ai.Content{{Role: "user", Parts: []ai.Part{
		{Text: prompt},
		{InlineData: &ai.Blob{MIMEType: mime, Data: base64.StdEncoding.EncodeToString(clip)}},
	}}}

	reply, err := gateway.Run(ctx, s.gw, func(ctx context.Context) (artifact.Reply, error) {
		resp, err := s.generate(ctx, "analyze", s.models.Analysis, contents, nil)
		if err != nil {
			return artifact.Reply{}, err
		}
		return ai.ReplyFromResponse(resp)
	}, true)
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}
