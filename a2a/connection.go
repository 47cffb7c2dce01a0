package a2a

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ============================================================================
// REMOTE AGENT CONNECTION
// ============================================================================

// Breaker defaults: open after a run of transport failures, probe once
// after the cooldown.
const (
	breakerMaxFailures uint32 = 5
	breakerTimeout            = 30 * time.Second
	breakerInterval           = 60 * time.Second
)

// Connection owns one connection profile to a single remote agent
// endpoint. It caches the agent's capability descriptor (read-mostly,
// refreshed only via Reconnect) and exposes send/stream primitives.
// Connections are stateless per call and safe for concurrent use.
//
// Transport failures are routed through a circuit breaker so that a dead
// endpoint fails fast instead of burning the per-call timeout on every
// delegation. An open breaker surfaces as Unreachable. No call is retried
// here; retry policy belongs to the delegation engine.
type Connection struct {
	url    string
	client *Client
	logger *slog.Logger

	breaker *gobreaker.CircuitBreaker[*TaskResponse]

	mu   sync.RWMutex
	card *AgentCard
}

// NewConnection creates a connection profile for the agent at url.
// The capability descriptor is not fetched until Connect is called.
func NewConnection(url string, cfg *ClientConfig, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}

	conn := &Connection{
		url:    url,
		client: NewClient(url, cfg),
		logger: logger,
	}

	conn.breaker = gobreaker.NewCircuitBreaker[*TaskResponse](gobreaker.Settings{
		Name:        url,
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("remote agent breaker state change",
				"url", name, "from", from.String(), "to", to.String())
		},
		// Only transport-level failures count against the endpoint; a
		// reachable agent reporting a task failure is healthy transport.
		IsSuccessful: func(err error) bool {
			switch CodeOf(err) {
			case CodeUnreachable, CodeTimeout:
				return false
			}
			return true
		},
	})

	return conn
}

// URL returns the remote agent's base URL.
func (c *Connection) URL() string {
	return c.url
}

// Connect fetches and caches the agent's capability descriptor.
func (c *Connection) Connect(ctx context.Context) (*AgentCard, error) {
	card, err := c.client.FetchCard(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.card = card
	c.mu.Unlock()

	c.logger.Info("connected to remote agent", "agent", card.Name, "url", c.url,
		"streaming", card.Capabilities.Streaming)
	return card, nil
}

// Reconnect re-fetches the capability descriptor. Identity of the
// connection (its URL) never changes.
func (c *Connection) Reconnect(ctx context.Context) (*AgentCard, error) {
	return c.Connect(ctx)
}

// Card returns the cached capability descriptor, or nil before Connect.
func (c *Connection) Card() *AgentCard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.card
}

// SupportsStreaming reports whether the cached descriptor declares
// streaming support.
func (c *Connection) SupportsStreaming() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.card != nil && c.card.Capabilities.Streaming
}

// Send forwards a task and blocks until the remote agent returns one
// terminal result.
func (c *Connection) Send(ctx context.Context, req *TaskRequest) (*TaskResponse, error) {
	resp, err := c.breaker.Execute(func() (*TaskResponse, error) {
		return c.client.SendTask(ctx, req)
	})
	if err != nil {
		return resp, c.wrapBreakerErr(err)
	}
	return resp, nil
}

// Stream forwards a task and returns a finite ordered sequence of
// incremental updates. When the agent does not declare streaming support
// the call falls back to a blocking send and emits a single final event.
func (c *Connection) Stream(ctx context.Context, req *TaskRequest) (<-chan StatusEvent, error) {
	if !c.SupportsStreaming() {
		resp, err := c.Send(ctx, req)
		if err != nil {
			return nil, err
		}

		events := make(chan StatusEvent, 1)
		status := resp.Status
		if status.State == "" {
			status.State = TaskStateCompleted
		}
		events <- StatusEvent{TaskID: req.ID, Status: status, Final: true}
		close(events)
		return events, nil
	}

	var events <-chan StatusEvent
	_, err := c.breaker.Execute(func() (*TaskResponse, error) {
		var streamErr error
		events, streamErr = c.client.StreamTask(ctx, req)
		return nil, streamErr
	})
	if err != nil {
		return nil, c.wrapBreakerErr(err)
	}
	return events, nil
}

// Close releases the underlying transport resources.
func (c *Connection) Close() error {
	c.client.Close()
	return nil
}

func (c *Connection) wrapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return NewError(CodeUnreachable, c.url, "circuit open", err)
	}
	return err
}
