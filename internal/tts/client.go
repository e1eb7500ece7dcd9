package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/voicechat/voice-client/internal/observability"
	"github.com/voicechat/voice-client/internal/resilience"
)

// Client synthesizes speech for arbitrary text through the backend's
// on-demand endpoint. Voice replies normally stream over the session
// socket; this covers replaying history entries that never got audio.
type Client struct {
	url        string
	httpClient *http.Client
	retryCfg   *resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
	logger     zerolog.Logger
}

// Options tunes the client's resilience behavior.
type Options struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
	Timeout             time.Duration
}

// NewClient creates a synthesis client for the given endpoint.
func NewClient(url string, opts Options) *Client {
	if opts.RetryMaxAttempts <= 0 {
		opts.RetryMaxAttempts = 3
	}
	if opts.RetryInitialBackoff <= 0 {
		opts.RetryInitialBackoff = 100 * time.Millisecond
	}
	if opts.BreakerMaxFailures <= 0 {
		opts.BreakerMaxFailures = 5
	}
	if opts.BreakerResetTimeout <= 0 {
		opts.BreakerResetTimeout = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: opts.Timeout},
		retryCfg: &resilience.RetryConfig{
			MaxAttempts:       opts.RetryMaxAttempts,
			InitialBackoff:    opts.RetryInitialBackoff,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		breaker: resilience.NewCircuitBreaker("tts", opts.BreakerMaxFailures, opts.BreakerResetTimeout),
		logger:  observability.WithComponent("tts"),
	}
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

// Synthesize returns the audio bytes for the given text. Transient
// failures are retried; a failing endpoint trips the breaker so later
// calls fail fast.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("tts: empty text")
	}

	body, err := json.Marshal(synthesizeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("tts: encode request: %w", err)
	}

	var audio []byte
	err = c.breaker.Call(func() error {
		return resilience.Retry(ctx, func() error {
			data, rerr := c.post(ctx, body)
			if rerr != nil {
				return rerr
			}
			audio = data
			return nil
		}, c.retryCfg)
	})
	if err != nil {
		observability.RecordError("synthesis_failed", "tts")
		return nil, err
	}

	c.logger.Debug().Int("bytes", len(audio)).Msg("synthesis complete")
	return audio, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tts: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return io.ReadAll(resp.Body)
}
