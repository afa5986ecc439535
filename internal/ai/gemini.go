package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient talks to the Gemini REST API.
type GeminiClient struct {
	http    *http.Client
	creds   CredentialSource
	baseURL string
}

func NewGeminiClient(creds CredentialSource) *GeminiClient {
	return &GeminiClient{http: &http.Client{}, creds: creds, baseURL: defaultBaseURL}
}

// NewGeminiClientWithBaseURL overrides the API endpoint, used in tests.
func NewGeminiClientWithBaseURL(creds CredentialSource, baseURL string) *GeminiClient {
	return &GeminiClient{http: &http.Client{}, creds: creds, baseURL: strings.TrimRight(baseURL, "/")}
}

type generateReq struct {
	Contents          []Content       `json:"contents"`
	Tools             []Tool          `json:"tools,omitempty"`
	SystemInstruction *Content        `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConf `json:"generationConfig,omitempty"`
}

type generationConf struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

func (c *GeminiClient) GenerateContent(ctx context.Context, model string, contents []Content, opts *GenerateOptions) (*GenerateResponse, error) {
	payload := generateReq{Contents: contents}
	if opts != nil {
		payload.Tools = opts.Tools
		if opts.SystemInstruction != "" {
			payload.SystemInstruction = &Content{Parts: []Part{{Text: opts.SystemInstruction}}}
		}
		if len(opts.ResponseModalities) > 0 {
			payload.GenerationConfig = &generationConf{ResponseModalities: opts.ResponseModalities}
		}
	}

	var out GenerateResponse
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	if err := c.post(ctx, endpoint, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type videoStartReq struct {
	Instances []videoInstance `json:"instances"`
}

type videoInstance struct {
	Prompt string `json:"prompt"`
	Image  *Blob  `json:"image,omitempty"`
}

type operationResp struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *errDescriptor  `json:"error,omitempty"`
	Response *videoOperation `json:"response,omitempty"`
}

type videoOperation struct {
	GenerateVideoResponse struct {
		GeneratedSamples []struct {
			Video struct {
				URI string `json:"uri"`
			} `json:"video"`
		} `json:"generatedSamples"`
	} `json:"generateVideoResponse"`
}

// StartVideoJob submits a long-running video generation and returns the
// opaque operation name to poll.
func (c *GeminiClient) StartVideoJob(ctx context.Context, model, prompt string, frame *Blob) (string, error) {
	payload := videoStartReq{Instances: []videoInstance{{Prompt: prompt, Image: frame}}}
	var out operationResp
	endpoint := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, model)
	if err := c.post(ctx, endpoint, payload, &out); err != nil {
		return "", err
	}
	if out.Name == "" {
		return "", fmt.Errorf("backend returned no operation name")
	}
	return out.Name, nil
}

// GetVideoJob fetches the current state of a video operation.
func (c *GeminiClient) GetVideoJob(ctx context.Context, name string) (*VideoJob, error) {
	key, ok := c.creds.Active()
	if !ok {
		return nil, ErrNoCredential
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.baseURL, name), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", key)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errorFromBody(resp.StatusCode, body)
	}
	var op operationResp
	if err := json.Unmarshal(body, &op); err != nil {
		return nil, fmt.Errorf("decode operation: %w", err)
	}
	job := &VideoJob{Name: name, Done: op.Done}
	if op.Error != nil {
		job.Err = &APIError{Code: op.Error.Code, Status: op.Error.Status, Message: op.Error.Message}
	}
	if op.Response != nil {
		samples := op.Response.GenerateVideoResponse.GeneratedSamples
		if len(samples) > 0 {
			job.URI = samples[0].Video.URI
		}
	}
	return job, nil
}

// DownloadFile fetches the final binary artifact for a completed job. The
// active credential is required; a missing credential here is terminal and is
// not routed back through the gateway.
func (c *GeminiClient) DownloadFile(ctx context.Context, uri string) ([]byte, string, error) {
	key, ok := c.creds.Active()
	if !ok {
		return nil, "", fmt.Errorf("no credential available to download artifact")
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse artifact uri: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("x-goog-api-key", key)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", errorFromBody(resp.StatusCode, body)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read artifact body: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = mimetype.Detect(data).String()
	}
	return data, mime, nil
}

func (c *GeminiClient) post(ctx context.Context, endpoint string, payload any, out any) error {
	key, ok := c.creds.Active()
	if !ok {
		return ErrNoCredential
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromBody(resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type errDescriptor struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type errEnvelope struct {
	Error *errDescriptor `json:"error"`
}

// errorFromBody turns a non-2xx response into an *APIError when the body
// carries the backend's structured error envelope.
func errorFromBody(statusCode int, body []byte) error {
	var env errEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		return &APIError{
			Code:    env.Error.Code,
			Status:  env.Error.Status,
			Message: env.Error.Message,
			Body:    string(body),
		}
	}
	return fmt.Errorf("backend status %d: %s", statusCode, strings.TrimSpace(string(body)))
}
