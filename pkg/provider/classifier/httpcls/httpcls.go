// Package httpcls provides a classifier backed by an external HTTP scoring
// service. It implements the classifier.Engine interface.
//
// The clip is WAV-encoded and POSTed to the configured endpoint; the service
// responds with a JSON body of the form {"label": 0}. Label values use the
// classifier package's closed set. This is the integration point for model
// servers hosting a trained beep detector.
package httpcls

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrWong99/beepwatch/pkg/audio"
	"github.com/MrWong99/beepwatch/pkg/provider/classifier"
)

const (
	defaultTimeout = 10 * time.Second

	// maxResponseBytes bounds how much of the response body is read.
	maxResponseBytes = 1 << 16
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithTimeout sets the per-request timeout. Default is 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.client.Timeout = d }
}

// WithAPIKey sets a bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(e *Engine) { e.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client. Mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// Engine implements classifier.Engine against an HTTP scoring service.
// Safe for concurrent use.
type Engine struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

var _ classifier.Engine = (*Engine)(nil)

// New creates an Engine posting clips to endpoint. endpoint must be non-empty.
func New(endpoint string, opts ...Option) (*Engine, error) {
	if endpoint == "" {
		return nil, errors.New("httpcls: endpoint must not be empty")
	}
	e := &Engine{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// response is the JSON structure returned by the scoring service.
type response struct {
	Label int `json:"label"`
}

// Classify WAV-encodes the clip, posts it to the scoring service, and maps
// the returned integer to a classifier.Label.
func (e *Engine) Classify(ctx context.Context, clip classifier.Clip) (classifier.Label, error) {
	wav, err := audio.EncodeWAV(clip.Payload, clip.SampleRate, 1)
	if err != nil {
		return classifier.LabelOther, fmt.Errorf("httpcls: encode clip: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(wav))
	if err != nil {
		return classifier.LabelOther, fmt.Errorf("httpcls: build request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return classifier.LabelOther, fmt.Errorf("httpcls: post clip: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return classifier.LabelOther, fmt.Errorf("httpcls: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return classifier.LabelOther, fmt.Errorf("httpcls: scoring service returned %d: %s", resp.StatusCode, body)
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return classifier.LabelOther, fmt.Errorf("httpcls: decode response: %w", err)
	}

	label := classifier.Label(r.Label)
	switch label {
	case classifier.LabelBeep, classifier.LabelSpeech, classifier.LabelOther:
		return label, nil
	default:
		return classifier.LabelOther, fmt.Errorf("httpcls: unknown label %d", r.Label)
	}
}
