package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/WessleyAI/pulse/pkg/fn"
	"github.com/WessleyAI/pulse/pkg/resilience"
)

func fastOpts() Options {
	return Options{
		Model:   "test-model",
		Retry:   fn.RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
		Breaker: resilience.BreakerOpts{FailThreshold: 2, Timeout: time.Hour, HalfOpenMax: 1},
	}
}

func TestTranslate(t *testing.T) {
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req generateReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
			return
		}
		if req.Model != "test-model" || req.Stream {
			t.Errorf("unexpected request body %+v", req)
		}
		prompts = append(prompts, req.Prompt)
		resp := "hello world"
		if strings.Contains(req.Prompt, "hola") {
			resp = ` "hi" `
		}
		json.NewEncoder(w).Encode(generateResp{Response: resp})
	}))
	defer srv.Close()

	tr := NewTranslator(srv.URL+"/", fastOpts())
	out, err := tr.Translate(context.Background(), []string{"bonjour le monde", "hola"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0] != "hello world" || out[1] != "hi" {
		t.Fatalf("got %q", out)
	}
	if len(prompts) != 2 || !strings.HasSuffix(prompts[0], "bonjour le monde") {
		t.Fatalf("prompts = %q", prompts)
	}
}

func TestTranslateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(generateResp{Response: "ok"})
	}))
	defer srv.Close()

	out, err := NewTranslator(srv.URL, fastOpts()).Translate(context.Background(), []string{"texto"})
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != "ok" || calls.Load() != 2 {
		t.Fatalf("out=%q calls=%d", out, calls.Load())
	}
}

func TestTranslateClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(generateResp{Error: "model not found"})
	}))
	defer srv.Close()

	_, err := NewTranslator(srv.URL, fastOpts()).Translate(context.Background(), []string{"texto"})
	if !errors.Is(err, fn.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("error lost server message: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestTranslateBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := NewTranslator(srv.URL, fastOpts())
	for i := 0; i < 2; i++ {
		if _, err := tr.Translate(context.Background(), []string{"texto"}); err == nil {
			t.Fatal("expected error")
		}
	}
	_, err := tr.Translate(context.Background(), []string{"texto"})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls to reach the server, got %d", calls.Load())
	}
}

func TestNewTranslatorDefaults(t *testing.T) {
	tr := NewTranslator("", Options{})
	if tr.baseURL != DefaultURL || tr.model != DefaultModel {
		t.Fatalf("defaults not applied: %s %s", tr.baseURL, tr.model)
	}
	if tr.retry.RetryIf == nil {
		t.Fatal("expected RetryIf default")
	}
}
