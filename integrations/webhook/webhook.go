// Package webhook posts incentive events to external HTTP endpoints, e.g.
// the bot process that renders reward notifications to users.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"incentivekit/core"
	"incentivekit/engine"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Incentive-Signature"

// Sink posts domain events to configured HTTP endpoints. Delivery is
// synchronous; run it behind an async bus when handlers cannot be fast.
type Sink struct {
	client    *http.Client
	endpoints []string
	secret    []byte
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithSecret enables HMAC signing of every delivery.
func WithSecret(secret string) Option {
	return func(s *Sink) {
		if secret != "" {
			s.secret = []byte(secret)
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// OnEvent posts the event JSON to all endpoints. Delivery failures are
// dropped; the incentive pipeline never depends on webhook receipt.
func (s *Sink) OnEvent(ctx context.Context, e core.Event) {
	if len(s.endpoints) == 0 {
		return
	}
	body, err := json.Marshal(e)
	if err != nil {
		return
	}
	for _, ep := range s.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep, bytes.NewReader(body))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		if len(s.secret) > 0 {
			req.Header.Set(SignatureHeader, s.sign(body))
		}
		resp, err := s.client.Do(req)
		if err != nil {
			continue
		}
		_ = resp.Body.Close()
	}
}

func (s *Sink) sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Attach subscribes the sink to every incentive event type on the bus and
// returns a detach func.
func (s *Sink) Attach(bus *engine.EventBus) func() {
	unsubs := []func(){
		bus.Subscribe(core.EventRewardGranted, s.OnEvent),
		bus.Subscribe(core.EventLevelUp, s.OnEvent),
		bus.Subscribe(core.EventBadgeEarned, s.OnEvent),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
