package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDiscordPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL)
	d.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	if err := d.Send(context.Background(), "bought 20 SES"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if want := "[2025-01-02 03:04:05] bought 20 SES"; got["content"] != want {
		t.Errorf("Expected %q, got %q", want, got["content"])
	}
}

func TestDiscordFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL)
	if err := d.Send(context.Background(), "x"); err == nil {
		t.Error("Expected Send to report the failure")
	}
	d.Notify(context.Background(), "x")
}

func TestNewFallsBackToNoop(t *testing.T) {
	if _, ok := New(true, "").(Noop); !ok {
		t.Error("Expected Noop without a webhook")
	}
	if _, ok := New(false, "http://example.invalid").(Noop); !ok {
		t.Error("Expected Noop when disabled")
	}
	if _, ok := New(true, "http://example.invalid").(*Discord); !ok {
		t.Error("Expected Discord when enabled with a webhook")
	}
}
