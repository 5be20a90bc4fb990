// Package webhook delivers appointment change envelopes to an HTTP endpoint,
// signed with HMAC-SHA256 so the receiver can verify their origin.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rohanchauhan123/appointment-system/internal/platform/events"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderDelivery  = "X-Webhook-ID"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderTenant    = "X-Tenant-ID"
)

// SignPayload returns the hex-encoded HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header value of the form "sha256=<hex>".
func VerifySignature(payload []byte, secret, header string) bool {
	sig := strings.TrimPrefix(header, "sha256=")
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(sig))
}

// Option configures a Relay.
type Option func(*Relay)

// WithHTTPClient overrides the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Relay) { r.client = c }
}

// WithRetryDelays sets the waits between attempts. The relay makes
// len(delays)+1 attempts in total.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(r *Relay) { r.delays = delays }
}

// Relay is an events.Relay that POSTs each envelope to one URL.
type Relay struct {
	url    string
	secret string
	client *http.Client
	delays []time.Duration
	now    func() time.Time
}

var _ events.Relay = (*Relay)(nil)

func NewRelay(rawURL, secret string, opts ...Option) (*Relay, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, fmt.Errorf("webhook relay: %w", err)
	}
	if secret == "" {
		return nil, fmt.Errorf("webhook relay: secret required")
	}
	r := &Relay{
		url:    rawURL,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		delays: []time.Duration{250 * time.Millisecond, time.Second},
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}

func (r *Relay) Name() string { return "webhook" }

// Publish delivers msg, retrying transport errors and 5xx or 429 responses
// until the attempts run out or ctx is done. Other 4xx responses are final.
func (r *Relay) Publish(ctx context.Context, msg events.Message) error {
	deliveryID := uuid.New().String()
	sig := "sha256=" + SignPayload(msg.Body, r.secret)

	var lastErr error
	for attempt := 0; attempt <= len(r.delays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook %s: %w (last error: %v)", deliveryID, ctx.Err(), lastErr)
			case <-time.After(r.delays[attempt-1]):
			}
		}
		retry, err := r.post(ctx, deliveryID, sig, msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return fmt.Errorf("webhook %s: %w", deliveryID, lastErr)
}

func (r *Relay) post(ctx context.Context, deliveryID, sig string, msg events.Message) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(msg.Body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, sig)
	req.Header.Set(HeaderDelivery, deliveryID)
	req.Header.Set(HeaderTimestamp, r.now().UTC().Format(time.RFC3339))
	if msg.Key != "" {
		req.Header.Set(HeaderTenant, msg.Key)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	err = fmt.Errorf("non-2xx response %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests, err
}

func (r *Relay) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
