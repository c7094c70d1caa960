// Package ollama translates text to English through a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/WessleyAI/pulse/pkg/fn"
	"github.com/WessleyAI/pulse/pkg/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "llama3.2"
)

const prompt = "Translate the following social media post into English. " +
	"Reply with the translation only, without quotes or commentary.\n\n%s"

// Options tunes a Translator. Zero values fall back to defaults.
type Options struct {
	Model   string
	Timeout time.Duration
	Retry   fn.RetryOpts
	Breaker resilience.BreakerOpts
}

// Translator calls /api/generate once per text. Calls go through a circuit
// breaker so a dead server fails fast instead of retrying every text.
type Translator struct {
	baseURL string
	model   string
	client  *http.Client
	retry   fn.RetryOpts
	breaker *resilience.Breaker
}

// NewTranslator creates a Translator for the server at baseURL.
func NewTranslator(baseURL string, opts Options) *Translator {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = fn.DefaultRetry
	}
	if opts.Retry.RetryIf == nil {
		opts.Retry.RetryIf = fn.IsTransient
	}
	if opts.Breaker.FailThreshold <= 0 {
		opts.Breaker = resilience.DefaultBreakerOpts
	}
	return &Translator{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   opts.Model,
		client:  &http.Client{Timeout: opts.Timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		retry:   opts.Retry,
		breaker: resilience.NewBreaker(opts.Breaker),
	}
}

type generateReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResp struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Translate returns one English string per input, in order. The first
// failure aborts the batch.
func (t *Translator) Translate(ctx context.Context, texts []string) ([]string, error) {
	out := make([]string, len(texts))
	for i, text := range texts {
		res := resilience.CallResult(t.breaker, ctx, func(ctx context.Context) fn.Result[string] {
			return fn.Retry(ctx, t.retry, func(ctx context.Context) fn.Result[string] {
				return fn.FromPair(t.generate(ctx, text))
			})
		})
		s, err := res.Unwrap()
		if err != nil {
			return nil, fmt.Errorf("ollama translate [%d]: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

func (t *Translator) generate(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(generateReq{Model: t.model, Prompt: fmt.Sprintf(prompt, text)})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()

	var result generateResp
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("ollama generate: status %d %s", resp.StatusCode, result.Error)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			err = fmt.Errorf("%w: %w", fn.ErrPermanent, err)
		}
		return "", err
	}
	if decodeErr != nil {
		return "", fmt.Errorf("ollama generate decode: %w", decodeErr)
	}
	return strings.Trim(strings.TrimSpace(result.Response), `"`), nil
}
