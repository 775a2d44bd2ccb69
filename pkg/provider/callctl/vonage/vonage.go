// Package vonage provides a call controller backed by the Vonage Voice API.
// It implements the callctl.Controller interface.
//
// Actions are sent as PUT requests to /v1/calls/{legID}, authenticated with
// a short-lived RS256 application JWT minted per request from the
// application's private key.
package vonage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrWong99/beepwatch/pkg/provider/callctl"
)

const (
	defaultBaseURL = "https://api.nexmo.com"
	defaultTimeout = 10 * time.Second

	// tokenTTL is the lifetime of each minted application JWT.
	tokenTTL = 60 * time.Second

	// maxErrorBody bounds how much of an error response is included in
	// returned errors.
	maxErrorBody = 1 << 12
)

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithBaseURL overrides the API base URL. Mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Controller) { c.baseURL = u }
}

// WithTimeout sets the per-request timeout. Default is 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.client.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client. Mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Controller) { c.client = client }
}

// Controller implements callctl.Controller against the Vonage Voice API.
// Safe for concurrent use.
type Controller struct {
	applicationID string
	privateKey    any // *rsa.PrivateKey
	baseURL       string
	client        *http.Client
}

var _ callctl.Controller = (*Controller)(nil)

// New creates a Controller for the given Vonage application. privateKeyPEM
// must contain the application's PEM-encoded RSA private key.
func New(applicationID string, privateKeyPEM []byte, opts ...Option) (*Controller, error) {
	if applicationID == "" {
		return nil, errors.New("vonage: applicationID must not be empty")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("vonage: parse private key: %w", err)
	}

	c := &Controller{
		applicationID: applicationID,
		privateKey:    key,
		baseURL:       defaultBaseURL,
		client:        &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Speak injects synthesized speech into the leg via a talk action.
func (c *Controller) Speak(ctx context.Context, legID, text string) error {
	if text == "" {
		return errors.New("vonage: speak text must not be empty")
	}
	return c.updateCall(ctx, legID, map[string]string{
		"action": "talk",
		"text":   text,
	})
}

// Hangup terminates the leg via a hangup action.
func (c *Controller) Hangup(ctx context.Context, legID string) error {
	return c.updateCall(ctx, legID, map[string]string{
		"action": "hangup",
	})
}

// updateCall PUTs an action body to /v1/calls/{legID}.
func (c *Controller) updateCall(ctx context.Context, legID string, body map[string]string) error {
	if legID == "" {
		return errors.New("vonage: legID must not be empty")
	}

	token, err := c.mintToken()
	if err != nil {
		return fmt.Errorf("vonage: mint token: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("vonage: encode action: %w", err)
	}

	url := c.baseURL + "/v1/calls/" + legID
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("vonage: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("vonage: %s leg %s: %w", body["action"], legID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("vonage: %s leg %s: status %d: %s", body["action"], legID, resp.StatusCode, msg)
	}
	return nil
}

// mintToken creates a short-lived RS256 application JWT.
func (c *Controller) mintToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"application_id": c.applicationID,
		"iat":            now.Unix(),
		"exp":            now.Add(tokenTTL).Unix(),
		"jti":            uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.privateKey)
}
