// Package messaging provides the NATS client wrapper connecting the matching
// engine to the platform bot edge. Inbound user events arrive on chat.*
// subjects; outbound notifications are published per user on chat.event.<id>.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kanchu397/Chatogram/internal/event"
)

// Subjects exchanged with the bot edge.
const (
	SubjectSearch    = "chat.search"
	SubjectStop      = "chat.stop"
	SubjectSkip      = "chat.skip"
	SubjectReconnect = "chat.reconnect"
	SubjectReport    = "chat.report"
	SubjectBlock     = "chat.block"
	SubjectMessage   = "chat.message"
	SubjectEvent     = "chat.event" // + .<user_id>
)

// Envelope is the outbound notification wire format.
type Envelope struct {
	Kind event.Kind      `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client wraps the NATS connection with helper methods for the engine's
// pub/sub surface. It implements event.Notifier.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int // -1 for infinite
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "chatogram-engine",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Connect dials NATS with the given config and returns a ready client.
func Connect(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription for cleanup on Close.
func (c *Client) Subscribe(subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// Notify publishes an outbound event to a single user's event subject,
// flushing the connection so a dead transport surfaces as an error instead
// of vanishing into the client buffer. It implements event.Notifier.
func (c *Client) Notify(ctx context.Context, userID string, kind event.Kind, data any) error {
	env := Envelope{Kind: kind}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("nats: marshal %s event: %w", kind, err)
		}
		env.Data = raw
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("nats: marshal envelope: %w", err)
	}
	if err := c.conn.Publish(SubjectEvent+"."+userID, payload); err != nil {
		return fmt.Errorf("nats: notify %s: %w", userID, err)
	}
	if err := c.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats: notify %s: %w", userID, err)
	}
	return nil
}

// Close drains all active subscriptions and the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}
	log.Printf("[nats] client closed")
}
