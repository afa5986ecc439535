package ai

import (
	"context"
	"errors"
	"fmt"
)

// Part is one segment of multimodal content.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Blob carries inline binary data, base64-encoded on the wire.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Tool enables a backend toolset for a request. Only search grounding is used.
type Tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

// GenerateOptions are per-request knobs for GenerateContent.
type GenerateOptions struct {
	Tools              []Tool
	SystemInstruction  string
	ResponseModalities []string
}

type WebSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type GroundingChunk struct {
	Web *WebSource `json:"web,omitempty"`
}

type GroundingMetadata struct {
	GroundingChunks []GroundingChunk `json:"groundingChunks,omitempty"`
}

type Candidate struct {
	Content           Content            `json:"content"`
	GroundingMetadata *GroundingMetadata `json:"groundingMetadata,omitempty"`
}

type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// VideoJob is the state of a long-running video generation operation.
type VideoJob struct {
	Name string
	Done bool
	URI  string
	Err  error
}

// Backend is the generative backend consumed by the studio call sites.
type Backend interface {
	GenerateContent(ctx context.Context, model string, contents []Content, opts *GenerateOptions) (*GenerateResponse, error)
	StartVideoJob(ctx context.Context, model, prompt string, frame *Blob) (string, error)
	GetVideoJob(ctx context.Context, name string) (*VideoJob, error)
	DownloadFile(ctx context.Context, uri string) ([]byte, string, error)
}

// CredentialSource resolves the currently active API credential. The key is
// looked up per request, so a credential selected mid-flight takes effect on
// the next attempt.
type CredentialSource interface {
	Active() (string, bool)
}

// ErrNoCredential matches the backend SDK's wording so the gateway treats a
// missing credential as an auth failure.
var ErrNoCredential = errors.New("API_KEY is not defined: no credential is active")

// APIError is a structured error payload from the backend. Error() embeds the
// raw JSON body; the gateway classifies failures from that text.
type APIError struct {
	Code    int
	Status  string
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend request failed: %s", e.Body)
	}
	return fmt.Sprintf(`backend request failed: {"error":{"code":%d,"status":%q,"message":%q}}`, e.Code, e.Status, e.Message)
}
