package studio

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/local/genstudio/internal/ai"
	"github.com/local/genstudio/internal/artifact"
	"github.com/local/genstudio/internal/config"
	"github.com/local/genstudio/internal/gateway"
)

func TestGenerateVideoSubstitutesToImage(t *testing.T) {
	fb := &fakeBackend{responses: map[string]func() (*ai.GenerateResponse, error){
		"quality-model": imageResponse([]byte{4, 5}),
	}}
	svc := newTestService(fb)

	res, err := svc.GenerateVideo(context.Background(), VideoRequest{Prompt: "a wave"})
	if err != nil {
		t.Fatalf("GenerateVideo: %v", err)
	}
	if res.Image == nil || res.Video != nil {
		t.Fatalf("expected image substitution, got %+v", res)
	}
	for _, c := range fb.calls {
		if strings.HasPrefix(c, "start:") {
			t.Fatal("video backend must not be reached without the fidelity flag")
		}
	}
}

func TestGenerateVideoSubstitutesToEditWithFrame(t *testing.T) {
	fb := &fakeBackend{responses: map[string]func() (*ai.GenerateResponse, error){
		"standard-model": imageResponse([]byte{6}),
	}}
	svc := newTestService(fb)

	frame := &artifact.Image{MIME: "image/png", Data: []byte{1}}
	res, err := svc.GenerateVideo(context.Background(), VideoRequest{Prompt: "animate", Frame: frame})
	if err != nil {
		t.Fatalf("GenerateVideo: %v", err)
	}
	if res.Image == nil {
		t.Fatal("expected image result")
	}
	if len(fb.calls) != 1 || fb.calls[0] != "standard-model" {
		t.Fatalf("frame substitution should use the edit path, calls: %v", fb.calls)
	}
}

func TestGenerateVideoPollsUntilDone(t *testing.T) {
	fb := &fakeBackend{
		startName: "operations/op-1",
		jobs: []*ai.VideoJob{
			{Name: "operations/op-1"},
			{Name: "operations/op-1"},
			{Name: "operations/op-1", Done: true, URI: "files/video-1"},
		},
		fileData: []byte("mp4 bytes"),
		fileMIME: "video/mp4",
	}
	svc := newTestService(fb)

	res, err := svc.GenerateVideo(context.Background(), VideoRequest{Prompt: "a storm", HighFidelity: true})
	if err != nil {
		t.Fatalf("GenerateVideo: %v", err)
	}
	if res.Video == nil || res.Image != nil {
		t.Fatalf("expected video result, got %+v", res)
	}
	if res.Video.URI != "files/video-1" || res.Video.MIME != "video/mp4" {
		t.Fatalf("unexpected video: %+v", res.Video)
	}
	if fb.downloaded != "files/video-1" {
		t.Fatalf("downloaded wrong uri %q", fb.downloaded)
	}
	if fb.jobIdx != 3 {
		t.Fatalf("expected 3 polls, got %d", fb.jobIdx)
	}
}

func TestGenerateVideoJobFailure(t *testing.T) {
	fb := &fakeBackend{
		startName: "operations/op-2",
		jobs: []*ai.VideoJob{
			{Name: "operations/op-2", Done: true, Err: errors.New("render failed")},
		},
	}
	svc := newTestService(fb)

	_, err := svc.GenerateVideo(context.Background(), VideoRequest{Prompt: "x", HighFidelity: true})
	if err == nil || !strings.Contains(err.Error(), "render failed") {
		t.Fatalf("expected job error, got %v", err)
	}
	if fb.downloaded != "" {
		t.Fatal("must not download after a failed job")
	}
}

func TestGenerateVideoPollTimeout(t *testing.T) {
	running := &ai.VideoJob{Name: "operations/op-3"}
	jobs := make([]*ai.VideoJob, 200)
	for i := range jobs {
		jobs[i] = running
	}
	fb := &fakeBackend{startName: "operations/op-3", jobs: jobs}

	cfg := testConfig()
	cfg.Video = config.VideoConfig{PollInterval: time.Millisecond, PollTimeout: 20 * time.Millisecond}
	svc := NewService(fb, gateway.New(nil), nil, nil, cfg)

	_, err := svc.GenerateVideo(context.Background(), VideoRequest{Prompt: "x", HighFidelity: true})
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
