package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// RedisPinger models the minimal Redis capability the checks need.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// CredentialSource reports whether an API credential is currently active.
type CredentialSource interface {
	Active() (string, bool)
}

// Checker aggregates readiness checks for the external dependencies.
type Checker struct {
	redis      RedisPinger
	s3Bucket   string
	httpClient *http.Client
	creds      CredentialSource
	backendURL string
}

// Options configures the Checker.
type Options struct {
	Redis       RedisPinger
	S3Bucket    string
	HTTPClient  *http.Client
	Credentials CredentialSource
	BackendURL  string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis   Status `json:"redis"`
	S3      Status `json:"s3"`
	Backend Status `json:"backend"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	backendURL := opts.BackendURL
	if backendURL == "" {
		backendURL = "https://generativelanguage.googleapis.com/v1beta/models"
	}
	return &Checker{
		redis:      opts.Redis,
		s3Bucket:   opts.S3Bucket,
		httpClient: client,
		creds:      opts.Credentials,
		backendURL: backendURL,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:   c.checkRedis(ctx),
		S3:      c.checkS3(ctx),
		Backend: c.checkBackend(ctx),
	}
}

// OK reports whether every subsystem is ready.
func (s Summary) OK() bool {
	return s.Redis.OK && s.S3.OK && s.Backend.OK
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3Bucket == "" {
		return Status{OK: false, Message: "Bucket not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	cli := s3.NewFromConfig(cfg)
	_, err = cli.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.s3Bucket})
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkBackend(ctx context.Context) Status {
	if c.creds == nil {
		return Status{OK: false, Message: "no credential source"}
	}
	key, ok := c.creds.Active()
	if !ok {
		return Status{OK: false, Message: "API key missing"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.backendURL, nil)
	req.Header.Set("x-goog-api-key", key)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Status{OK: false, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
