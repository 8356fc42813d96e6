// Package events publishes ingestion events for downstream consumers such as
// lesson indexers and analytics.
//
// Events are JSON messages on a NATS subject. Without a NATS URL the service
// uses Noop, so publishing never becomes a hard dependency of ingestion.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// DefaultSubject is the subject DocumentIngested events are published on.
	DefaultSubject = "tutorrag.documents.ingested"

	// DefaultFlushTimeout bounds the wait for the server's flush
	// acknowledgement when the caller's context has no deadline.
	DefaultFlushTimeout = 2 * time.Second
)

// DocumentIngested is published after a document's chunks are persisted.
type DocumentIngested struct {
	DocumentID    string    `json:"document_id"`
	Title         string    `json:"title"`
	Chunks        int       `json:"chunks"`
	TokenEstimate int       `json:"token_estimate"`
	Replaced      bool      `json:"replaced"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// Publisher delivers ingestion events.
type Publisher interface {
	PublishDocumentIngested(ctx context.Context, event DocumentIngested) error
	Close() error
}

// Noop discards events.
type Noop struct{}

// PublishDocumentIngested implements Publisher.
func (Noop) PublishDocumentIngested(context.Context, DocumentIngested) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	URL          string
	Subject      string
	FlushTimeout time.Duration
}

// NATSPublisher publishes events as JSON on a NATS subject.
type NATSPublisher struct {
	nc           *nats.Conn
	subject      string
	flushTimeout time.Duration
	logger       *zap.Logger
}

// NewNATSPublisher connects to NATS. The connection retries in the
// background, so a server that starts later is picked up.
func NewNATSPublisher(cfg NATSConfig, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("tutorrag"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.URL, err)
	}

	return &NATSPublisher{nc: nc, subject: cfg.Subject, flushTimeout: cfg.FlushTimeout, logger: logger}, nil
}

// NewNATSPublisherFromConn wraps an existing connection. Close drains it.
func NewNATSPublisherFromConn(nc *nats.Conn, subject string, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{nc: nc, subject: subject, flushTimeout: DefaultFlushTimeout, logger: logger}
}

// PublishDocumentIngested publishes event and waits for the server to
// acknowledge the flush. The wait ends with ctx, or after the flush timeout
// when ctx has no deadline of its own.
func (p *NATSPublisher) PublishDocumentIngested(ctx context.Context, event DocumentIngested) error {
	if event.IngestedAt.IsZero() {
		event.IngestedAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.flushTimeout)
		defer cancel()
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}
	p.logger.Debug("published event",
		zap.String("subject", p.subject),
		zap.String("document_id", event.DocumentID),
	)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

var (
	_ Publisher = Noop{}
	_ Publisher = (*NATSPublisher)(nil)
)
