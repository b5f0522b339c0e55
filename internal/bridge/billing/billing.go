// Package billing forwards subscription checkout requests to the payments
// provider. It creates a hosted checkout session and returns its URL; all
// subsequent payment flow happens on the provider's side.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/templetwo/spiralbridge/common/redact"
	"github.com/templetwo/spiralbridge/common/retry"
	"github.com/templetwo/spiralbridge/internal/bridge/fault"
)

const (
	defaultBaseURL    = "https://api.stripe.com/v1"
	defaultTimeout    = 30 * time.Second
	defaultSuccessURL = "http://localhost:8080/success"
	defaultCancelURL  = "http://localhost:8080/cancel"
)

// Config configures the checkout client.
type Config struct {
	// SecretKey is the provider API secret used as the bearer token.
	SecretKey string

	// PriceID is the subscription price the checkout session is created for.
	PriceID string

	// BaseURL overrides the provider endpoint (useful for tests).
	// Defaults to the public API when empty.
	BaseURL string

	// SuccessURL and CancelURL are where the provider redirects the user
	// after checkout. Defaults point at the local server.
	SuccessURL string
	CancelURL  string

	// Timeout is the HTTP request timeout. Defaults to 30 s.
	Timeout time.Duration

	// Retry controls backoff for transient provider errors (429 and 5xx).
	// Zero values use retry.DefaultConfig.
	Retry retry.Config
}

// Client creates checkout sessions. Safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New returns a checkout Client. If logger is nil, the default slog logger
// is used.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.SuccessURL == "" {
		cfg.SuccessURL = defaultSuccessURL
	}
	if cfg.CancelURL == "" {
		cfg.CancelURL = defaultCancelURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// --- minimal provider wire types ---

type checkoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type providerError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// transientError marks provider responses worth retrying (429, 5xx).
type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// CreateCheckoutSession creates a subscription checkout session for userID
// and returns the hosted checkout URL. Transient provider errors are retried
// with exponential backoff; everything that ultimately fails surfaces as an
// upstream error with the secret key scrubbed from the message.
func (c *Client) CreateCheckoutSession(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fault.New(fault.KindValidation, "userId required")
	}
	if c.cfg.SecretKey == "" {
		return "", fault.New(fault.KindUpstream, "billing not configured: missing secret key")
	}
	if c.cfg.PriceID == "" {
		return "", fault.New(fault.KindUpstream, "billing not configured: missing price id")
	}

	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][price]", c.cfg.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", c.cfg.SuccessURL)
	form.Set("cancel_url", c.cfg.CancelURL)
	form.Set("metadata[userId]", userID)

	var session checkoutSession
	retryCfg := c.cfg.Retry
	retryCfg.ShouldRetry = func(err error) bool {
		var te *transientError
		return errors.As(err, &te)
	}

	err := retry.Do(ctx, retryCfg, func() error {
		s, err := c.postCheckoutSession(ctx, form)
		if err != nil {
			return err
		}
		session = *s
		return nil
	})
	if err != nil {
		safe := redact.String(err.Error(), c.cfg.SecretKey)
		c.logger.Error("billing: checkout session failed", "user_id", userID, "err", safe)
		return "", fault.Wrap(fault.KindUpstream, "checkout failed", errors.New(safe))
	}

	return session.URL, nil
}

// postCheckoutSession performs one checkout-session request.
func (c *Client) postCheckoutSession(ctx context.Context, form url.Values) (*checkoutSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("billing: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &transientError{fmt.Errorf("billing: request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("billing: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &transientError{fmt.Errorf("billing: provider returned %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		var pe providerError
		if json.Unmarshal(body, &pe) == nil && pe.Error.Message != "" {
			return nil, fmt.Errorf("billing: provider error (%s): %s", pe.Error.Type, pe.Error.Message)
		}
		return nil, fmt.Errorf("billing: provider returned %d", resp.StatusCode)
	}

	var session checkoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("billing: decode session: %w", err)
	}
	if session.URL == "" {
		return nil, fmt.Errorf("billing: session %q has no checkout url", session.ID)
	}
	return &session, nil
}
