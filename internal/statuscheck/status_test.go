package statuscheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

type fakeCreds struct {
	key string
	ok  bool
}

func (c fakeCreds) Active() (string, bool) { return c.key, c.ok }

func TestCheckRedis(t *testing.T) {
	c := New(Options{Redis: fakePinger{}})
	if st := c.checkRedis(context.Background()); !st.OK {
		t.Fatalf("expected ok, got %+v", st)
	}

	c = New(Options{Redis: fakePinger{err: errors.New("connection refused")}})
	if st := c.checkRedis(context.Background()); st.OK {
		t.Fatal("expected failure")
	}

	c = New(Options{})
	if st := c.checkRedis(context.Background()); st.OK {
		t.Fatal("expected failure without client")
	}
}

func TestCheckBackend(t *testing.T) {
	var gotKey string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := New(Options{Credentials: fakeCreds{key: "k1", ok: true}, BackendURL: ts.URL})
	st := c.checkBackend(context.Background())
	if !st.OK {
		t.Fatalf("expected ok, got %+v", st)
	}
	if gotKey != "k1" {
		t.Fatalf("credential not sent, got %q", gotKey)
	}
}

func TestCheckBackendNoCredential(t *testing.T) {
	c := New(Options{Credentials: fakeCreds{}})
	if st := c.checkBackend(context.Background()); st.OK {
		t.Fatal("expected failure without credential")
	}
}

func TestCheckBackendHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	c := New(Options{Credentials: fakeCreds{key: "k", ok: true}, BackendURL: ts.URL})
	st := c.checkBackend(context.Background())
	if st.OK || st.Message != "HTTP 403" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestSummaryOK(t *testing.T) {
	s := Summary{
		Redis:   Status{OK: true},
		S3:      Status{OK: true},
		Backend: Status{OK: true},
	}
	if !s.OK() {
		t.Fatal("expected overall ok")
	}
	s.S3.OK = false
	if s.OK() {
		t.Fatal("expected overall failure")
	}
}
