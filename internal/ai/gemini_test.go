package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateContentSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "key-1" {
			t.Errorf("expected api key header, got %q", got)
		}
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClientWithBaseURL(NewKeyring([]string{"key-1"}), srv.URL)
	resp, err := c.GenerateContent(context.Background(), "gemini-2.5-flash", []Content{{Parts: []Part{{Text: "hi"}}}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Candidates) != 1 || resp.Candidates[0].Content.Parts[0].Text != "hello" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestGenerateContentStructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"status":"PERMISSION_DENIED","message":"no access"}}`))
	}))
	defer srv.Close()

	c := NewGeminiClientWithBaseURL(NewKeyring([]string{"key-1"}), srv.URL)
	_, err := c.GenerateContent(context.Background(), "m", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != 403 || apiErr.Status != "PERMISSION_DENIED" || apiErr.Message != "no access" {
		t.Errorf("unexpected fields: %+v", apiErr)
	}
	if !strings.Contains(apiErr.Error(), `"PERMISSION_DENIED"`) {
		t.Errorf("Error() should embed the JSON body, got %q", apiErr.Error())
	}
}

func TestGenerateContentNoCredential(t *testing.T) {
	c := NewGeminiClient(NewKeyring(nil))
	_, err := c.GenerateContent(context.Background(), "m", nil, nil)
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
	if !strings.Contains(err.Error(), "API_KEY is not defined") {
		t.Errorf("message must carry the retryable pattern, got %q", err.Error())
	}
}

func TestVideoJobLifecycle(t *testing.T) {
	done := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, ":predictLongRunning"):
			w.Write([]byte(`{"name":"operations/op-1"}`))
		case strings.Contains(r.URL.Path, "operations/op-1"):
			if !done {
				done = true
				w.Write([]byte(`{"name":"operations/op-1","done":false}`))
				return
			}
			w.Write([]byte(`{"name":"operations/op-1","done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"https://files.example/v.mp4"}}]}}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewGeminiClientWithBaseURL(NewKeyring([]string{"key-1"}), srv.URL)
	name, err := c.StartVideoJob(context.Background(), "veo-2.0-generate-001", "a cat", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if name != "operations/op-1" {
		t.Fatalf("unexpected op name %q", name)
	}

	job, err := c.GetVideoJob(context.Background(), name)
	if err != nil {
		t.Fatalf("poll 1: %v", err)
	}
	if job.Done {
		t.Fatal("job should not be done on first poll")
	}

	job, err = c.GetVideoJob(context.Background(), name)
	if err != nil {
		t.Fatalf("poll 2: %v", err)
	}
	if !job.Done || job.URI != "https://files.example/v.mp4" {
		t.Errorf("unexpected job state: %+v", job)
	}
}

func TestDownloadFileRequiresCredential(t *testing.T) {
	c := NewGeminiClient(NewKeyring(nil))
	_, _, err := c.DownloadFile(context.Background(), "https://files.example/v.mp4")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNoCredential) {
		t.Error("download must fail terminally, not with the retryable credential error")
	}
}

func TestKeyringRotation(t *testing.T) {
	k := NewKeyring([]string{"a", "b"})
	if key, ok := k.Active(); !ok || key != "a" {
		t.Fatalf("expected first key active, got %q %v", key, ok)
	}
	if !k.Available() {
		t.Fatal("expected rotation to be available")
	}
	if err := k.PromptSelection(context.Background()); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if key, _ := k.Active(); key != "b" {
		t.Errorf("expected second key, got %q", key)
	}
	if err := k.PromptSelection(context.Background()); err == nil {
		t.Error("expected exhaustion error after last key")
	}
	k.Reset()
	if key, _ := k.Active(); key != "a" {
		t.Errorf("expected reset to first key, got %q", key)
	}
}
