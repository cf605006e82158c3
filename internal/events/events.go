// Package events publishes room lifecycle notifications to NATS so that
// out-of-process consumers (stats, audit) can follow room activity.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Kind names a lifecycle event; it is also the subject suffix.
type Kind string

const (
	RoomCreated   Kind = "room.created"
	RoomEvicted   Kind = "room.evicted"
	MatchStarted  Kind = "match.started"
	MatchFinished Kind = "match.finished"
	RoomReset     Kind = "room.reset"
)

// Event is one lifecycle notification.
type Event struct {
	Kind      Kind      `json:"kind"`
	RoomID    string    `json:"roomId"`
	Players   []string  `json:"players,omitempty"`
	Outcome   int       `json:"outcome,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits events. Implementations must not block the caller for long;
// events are best-effort.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

// Config selects and configures the publisher.
type Config struct {
	URL           string
	SubjectPrefix string
}

// NATSPublisher publishes events on core NATS subjects "<prefix>.<kind>".
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// New returns a NATS publisher, or Nop when cfg.URL is empty.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a usable Publisher or a connection error.
func New(cfg Config, logger *zap.Logger) (Publisher, error) {
	if cfg.URL == "" {
		logger.Info("event publishing disabled")
		return Nop{}, nil
	}
	conn, err := nats.Connect(
		cfg.URL,
		nats.Name("daguai"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}
	logger.Info("event publishing enabled", zap.String("url", cfg.URL), zap.String("prefix", cfg.SubjectPrefix))
	return &NATSPublisher{conn: conn, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// Subject returns the subject an event of kind k is published on.
func Subject(prefix string, k Kind) string {
	if prefix == "" {
		return string(k)
	}
	return prefix + "." + string(k)
}

// Publish sends ev. The NATS client buffers while reconnecting, so this does
// not wait for the server.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Kind, err)
	}
	if err := p.conn.Publish(Subject(p.prefix, ev.Kind), data); err != nil {
		return fmt.Errorf("publishing %s event: %w", ev.Kind, err)
	}
	return nil
}

// Close flushes pending events and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}
