// Package events publishes completed verifications to NATS so other
// systems (dashboards, moderation queues) can react without polling.
// Publishing is fire-and-forget and the publisher is nil-safe: a
// deployment without NATS configured simply skips it.
package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/toorcn/checkmate/internal/logging"
	"github.com/toorcn/checkmate/internal/pipeline"
)

// Verification is the compact event emitted per completed verification.
type Verification struct {
	RequestID       string        `json:"requestId"`
	URL             string        `json:"url"`
	Platform        string        `json:"platform"`
	Verdict         string        `json:"verdict,omitempty"`
	Confidence      float64       `json:"confidence"`
	Rating          *float64      `json:"rating,omitempty"`
	RegionBiasScore *int          `json:"regionBiasScore,omitempty"`
	Duration        time.Duration `json:"duration"`
	At              time.Time     `json:"at"`
}

// Publisher emits verification events on a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// Connect dials NATS and returns a publisher. Callers treat a nil
// *Publisher as disabled, so wiring can pass the result through even
// when no NATS URL is configured.
func Connect(url, subject string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, subject: subject}, nil
}

// PublishVerification emits one event. Failures are logged and
// swallowed; event delivery never affects the request path.
func (p *Publisher) PublishVerification(res *pipeline.Result) {
	if p == nil || p.conn == nil || res == nil {
		return
	}
	v := Verification{
		RequestID: res.RequestID,
		URL:       res.URL,
		Platform:  res.Platform.String(),
		Rating:    res.CreatorCredibilityRating,
		Duration:  res.Duration,
		At:        time.Now().UTC(),
	}
	if res.FactCheck != nil {
		v.Verdict = res.FactCheck.Verdict
		v.Confidence = res.FactCheck.Confidence
		if res.FactCheck.PoliticalBias != nil {
			v.RegionBiasScore = res.FactCheck.PoliticalBias.RegionScore
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		logging.Warn("failed to marshal verification event", "error", err)
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		logging.Warn("failed to publish verification event", "subject", p.subject, "error", err)
	}
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
