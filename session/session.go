// Package session tracks which remote agent a conversation is bound to,
// and the per-agent remote session identifiers used when forwarding.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// TYPES
// ============================================================================

// Binding records the delegation state of one inbound session: the agent
// currently handling it and the remote session id minted for each agent the
// session has ever been forwarded to. Remote ids are stable per (session,
// agent) pair so a remote agent sees a consistent conversation even after
// the session moves away and comes back.
type Binding struct {
	SessionID    string            `json:"session_id"`
	Agent        string            `json:"agent"`
	Remote       map[string]string `json:"remote"` // agent name -> remote session id
	LastActivity time.Time         `json:"last_activity"`
}

// Store persists session bindings. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the binding for a session, or found=false if none exists.
	Get(ctx context.Context, sessionID string) (*Binding, bool, error)

	// Put inserts or replaces a binding.
	Put(ctx context.Context, b *Binding) error

	// Delete removes a binding. Deleting a missing binding is not an error.
	Delete(ctx context.Context, sessionID string) error

	// ReleaseAgent clears the bound agent on every session pointing at the
	// given agent name. Remote ids are kept so a later re-bind to the same
	// agent resumes the old remote conversation.
	ReleaseAgent(ctx context.Context, agent string) error

	// Close releases store resources.
	Close() error
}

// ============================================================================
// BRIDGE
// ============================================================================

// Bridge is the session-stickiness layer between the supervisor and the
// store: it resolves the agent a session is bound to, rebinds on
// delegation, and mints remote session ids on demand.
type Bridge struct {
	store       Store
	idleTimeout time.Duration
	logger      *slog.Logger
}

// NewBridge creates a bridge over the given store. Bindings idle longer
// than idleTimeout are treated as expired on read regardless of whether
// the store has evicted them yet.
func NewBridge(store Store, idleTimeout time.Duration, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		store:       store,
		idleTimeout: idleTimeout,
		logger:      logger,
	}
}

// Resolve returns the agent the session is currently bound to. Expired
// bindings are dropped and reported as not found.
func (b *Bridge) Resolve(ctx context.Context, sessionID string) (string, bool, error) {
	if sessionID == "" {
		return "", false, nil
	}
	binding, found, err := b.store.Get(ctx, sessionID)
	if err != nil || !found {
		return "", false, err
	}
	if b.expired(binding) {
		if err := b.store.Delete(ctx, sessionID); err != nil {
			b.logger.Warn("failed to evict expired session", "session", sessionID, "error", err)
		}
		return "", false, nil
	}
	if binding.Agent == "" {
		// Remote ids may exist without a bound agent, e.g. after the
		// bound agent was removed from the team.
		return "", false, nil
	}
	return binding.Agent, true, nil
}

// Bind points the session at an agent and returns the remote session id to
// use when forwarding to it. The remote id is minted on first use of the
// (session, agent) pair and reused afterwards.
func (b *Bridge) Bind(ctx context.Context, sessionID, agent string) (string, error) {
	if sessionID == "" {
		// Sessionless task: nothing to persist, forward with a throwaway id.
		return uuid.NewString(), nil
	}

	binding, found, err := b.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !found || b.expired(binding) {
		binding = &Binding{
			SessionID: sessionID,
			Remote:    make(map[string]string),
		}
	}
	if binding.Remote == nil {
		binding.Remote = make(map[string]string)
	}

	remoteID, ok := binding.Remote[agent]
	if !ok {
		remoteID = uuid.NewString()
		binding.Remote[agent] = remoteID
	}

	if binding.Agent != "" && binding.Agent != agent {
		b.logger.Info("session rebound",
			"session", sessionID, "from", binding.Agent, "to", agent)
	}
	binding.Agent = agent
	binding.LastActivity = time.Now()

	if err := b.store.Put(ctx, binding); err != nil {
		return "", err
	}
	return remoteID, nil
}

// RemoteID mints (or returns) the remote session id for a (session,
// agent) pair without binding the session to the agent. Used to build the
// outbound request before the delegation outcome is known; Bind finalizes
// the agent only on success.
func (b *Bridge) RemoteID(ctx context.Context, sessionID, agent string) (string, error) {
	if sessionID == "" {
		return uuid.NewString(), nil
	}

	binding, found, err := b.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !found || b.expired(binding) {
		binding = &Binding{
			SessionID: sessionID,
			Remote:    make(map[string]string),
		}
	}
	if binding.Remote == nil {
		binding.Remote = make(map[string]string)
	}

	remoteID, ok := binding.Remote[agent]
	if !ok {
		remoteID = uuid.NewString()
		binding.Remote[agent] = remoteID
		binding.LastActivity = time.Now()
		if err := b.store.Put(ctx, binding); err != nil {
			return "", err
		}
	}
	return remoteID, nil
}

// Unbind drops a session binding, if any.
func (b *Bridge) Unbind(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return b.store.Delete(ctx, sessionID)
}

// ReleaseAgent clears the bound agent on sessions pointing at the given
// agent name. Used when an agent is removed from the team so stale
// stickiness cannot route new tasks to it.
func (b *Bridge) ReleaseAgent(ctx context.Context, agent string) {
	if err := b.store.ReleaseAgent(ctx, agent); err != nil {
		b.logger.Warn("failed to release sessions for removed agent",
			"agent", agent, "error", err)
	}
}

// Close closes the underlying store.
func (b *Bridge) Close() error {
	return b.store.Close()
}

func (b *Bridge) expired(binding *Binding) bool {
	if b.idleTimeout <= 0 {
		return false
	}
	return time.Since(binding.LastActivity) > b.idleTimeout
}
