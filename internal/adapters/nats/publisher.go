package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

// Subjects.
const (
	SubjectAnalysisPrefix = "orchard.analysis."
	SubjectSurveyPrefix   = "orchard.survey.imported."

	// SubjectAnalysisAll matches every analysis event; the WebSocket relay
	// subscribes to it.
	SubjectAnalysisAll = SubjectAnalysisPrefix + ">"
	SubjectSurveyAll   = SubjectSurveyPrefix + ">"
)

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// token makes s usable as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return tokenReplacer.Replace(s)
}

// AnalysisSubject is the subject an analysis event is published on.
func AnalysisSubject(kind domain.AnalysisKind, orchardID string) string {
	return SubjectAnalysisPrefix + token(string(kind)) + "." + token(orchardID)
}

// SurveyImportedSubject is the subject a survey import is announced on.
func SurveyImportedSubject(orchardID string) string {
	return SubjectSurveyPrefix + token(orchardID)
}

// AnalysisFilter builds a subscription subject for analysis events. An empty
// kind or orchard ID matches any value.
func AnalysisFilter(kind, orchardID string) string {
	k, o := "*", "*"
	if kind != "" {
		k = token(kind)
	}
	if orchardID != "" {
		o = token(orchardID)
	}
	return SubjectAnalysisPrefix + k + "." + o
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "ORCHARD_ANALYSES",
			Subjects:  []string{SubjectAnalysisAll},
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "ORCHARD_SURVEYS",
			Subjects:  []string{SubjectSurveyAll},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist; update it instead.
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishAnalysis(ctx context.Context, event *domain.AnalysisEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(AnalysisSubject(event.Kind, event.OrchardID), data, nats.Context(ctx))
	return err
}

func (p *Publisher) PublishSurveyImported(ctx context.Context, event *domain.SurveyImported) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SurveyImportedSubject(event.OrchardID), data, nats.Context(ctx))
	return err
}

// Connected reports whether the underlying connection is up.
func (p *Publisher) Connected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
