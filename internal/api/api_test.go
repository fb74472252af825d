package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"stock-autotrader/internal/types"
)

func TestDoSendsHeadersQueryAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("Expected path /quote, got %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("SYMB"); got != "SES" {
			t.Errorf("Expected SYMB=SES, got %q", got)
		}
		if got := r.Header.Get("tr_id"); got != "X1" {
			t.Errorf("Expected tr_id X1, got %q", got)
		}
		if got := r.Header.Get("custtype"); got != "P" {
			t.Errorf("Expected default header custtype P, got %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Expected JSON content type, got %q", got)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithHeader("custtype", "P"))
	req := NewRequest(http.MethodPost, "/quote").
		WithContext(context.Background()).
		WithQuery("SYMB", "SES").
		WithHeader("tr_id", "X1").
		WithBody(map[string]string{"a": "b"})

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var out struct{ OK bool }
	if err := resp.ParseJSON(&out); err != nil || !out.OK {
		t.Errorf("Expected ok response, got %+v (err %v)", out, err)
	}
}

func TestStatusErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/busy" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))

	_, err := c.GET(context.Background(), "/bad")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 StatusError, got %v", err)
	}
	if errors.Is(err, types.ErrTransient) {
		t.Error("Expected 400 not to be transient")
	}

	_, err = c.GET(context.Background(), "/busy")
	if !errors.Is(err, types.ErrTransient) {
		t.Errorf("Expected 503 to be transient, got %v", err)
	}
}

func TestDoWithRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	cfg := &RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}

	resp, err := c.DoWithRetry(NewRequest(http.MethodGet, "/"), cfg)
	if err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	if resp.String() != "ok" || atomic.LoadInt32(&calls) != 3 {
		t.Errorf("Expected 3 calls and body ok, got %d calls and %q", calls, resp.String())
	}
}

func TestDoWithRetryStopsOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	if _, err := c.DoWithRetry(NewRequest(http.MethodGet, "/"), nil); err == nil {
		t.Fatal("Expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected a single attempt, got %d", calls)
	}
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(0.001, 1))
	if _, err := c.GET(context.Background(), "/"); err != nil {
		t.Fatalf("Expected first request within burst, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.GET(ctx, "/"); err == nil {
		t.Error("Expected limiter wait to fail once the context expires")
	}
}
