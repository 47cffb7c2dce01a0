// Package team implements the supervisor's delegation core: the remote
// agent registry, the selection policy, the delegation engine, and the
// management surface that mutates the team at runtime.
package team

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roundtable-ai/roundtable/a2a"
	"github.com/roundtable-ai/roundtable/registry"
)

// ============================================================================
// AGENT ENTRY
// ============================================================================

// AgentOrigin records how an agent joined the team.
type AgentOrigin string

const (
	// OriginConfigured marks agents from the config file or environment.
	// They cannot be removed through the management surface.
	OriginConfigured AgentOrigin = "configured"

	// OriginDynamic marks agents added at runtime.
	OriginDynamic AgentOrigin = "dynamic"
)

// AgentStatus is the last known connectivity of an agent.
type AgentStatus string

const (
	StatusConnected    AgentStatus = "connected"
	StatusDisconnected AgentStatus = "disconnected"
	StatusUnknown      AgentStatus = "unknown"
)

// AgentEntry is one registered remote agent. Snapshot returns value
// copies, so exported fields are safe to read without holding registry
// locks; conn is shared and internally synchronized.
type AgentEntry struct {
	Name    string         `json:"name"`
	URL     string         `json:"url"`
	Card    *a2a.AgentCard `json:"card,omitempty"`
	Origin  AgentOrigin    `json:"origin"`
	Status  AgentStatus    `json:"status"`
	AddedAt time.Time      `json:"added_at"`

	conn *a2a.Connection
}

// Description returns the card description, or "" while disconnected.
func (e *AgentEntry) Description() string {
	if e.Card == nil {
		return ""
	}
	return e.Card.Description
}

// ============================================================================
// AGENT REGISTRY
// ============================================================================

// RegisterOptions controls agent registration.
type RegisterOptions struct {
	// Name overrides the agent card's name.
	Name string

	// Exact disables numeric-suffix disambiguation: a name collision
	// fails with CodeNameConflict instead of registering name-2.
	Exact bool

	// Origin defaults to OriginDynamic.
	Origin AgentOrigin
}

// AgentRegistry tracks the team's remote agents in registration order.
// mu guards compound register/remove operations and every read or write
// of the mutable entry fields (Status, Card); the inner BaseRegistry only
// protects its own map.
type AgentRegistry struct {
	mu        sync.RWMutex
	agents    *registry.BaseRegistry[*AgentEntry]
	clientCfg *a2a.ClientConfig
	logger    *slog.Logger
}

// NewAgentRegistry creates an empty registry. clientCfg applies to every
// connection the registry opens.
func NewAgentRegistry(clientCfg *a2a.ClientConfig, logger *slog.Logger) *AgentRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentRegistry{
		agents:    registry.NewBaseRegistry[*AgentEntry](),
		clientCfg: clientCfg,
		logger:    logger,
	}
}

// Register connects to the agent at the given URL, fetches its card, and
// adds it to the team. On a name collision the agent is registered under
// name-2, name-3, ... unless opts.Exact is set.
func (r *AgentRegistry) Register(ctx context.Context, agentURL string, opts RegisterOptions) (*AgentEntry, error) {
	origin := opts.Origin
	if origin == "" {
		origin = OriginDynamic
	}

	conn := a2a.NewConnection(agentURL, r.clientCfg, r.logger)
	card, err := conn.Connect(ctx)
	if err != nil {
		conn.Close()
		return nil, NewError(CodeConnectionFailed, opts.Name,
			fmt.Sprintf("failed to connect to %s", agentURL), err)
	}

	name := opts.Name
	if name == "" {
		name = card.Name
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.findByURL(agentURL); existing != nil {
		conn.Close()
		return nil, NewError(CodeNameConflict, existing.Name,
			fmt.Sprintf("url %s already registered as %s", agentURL, existing.Name), nil)
	}

	finalName, err := r.resolveName(name, opts.Exact)
	if err != nil {
		conn.Close()
		return nil, err
	}

	entry := &AgentEntry{
		Name:    finalName,
		URL:     agentURL,
		Card:    card,
		Origin:  origin,
		Status:  StatusConnected,
		AddedAt: time.Now(),
		conn:    conn,
	}
	if err := r.agents.Register(finalName, entry); err != nil {
		conn.Close()
		return nil, NewError(CodeNameConflict, finalName, err.Error(), err)
	}

	r.logger.Info("agent registered",
		"agent", finalName, "url", agentURL, "origin", origin)
	return entry, nil
}

// RegisterConfigured bootstraps the team from configured URLs. Agents
// that cannot be reached are still registered, disconnected, under a name
// derived from their URL so Reconnect can recover them later.
func (r *AgentRegistry) RegisterConfigured(ctx context.Context, urls []string) {
	for _, agentURL := range urls {
		_, err := r.Register(ctx, agentURL, RegisterOptions{Origin: OriginConfigured})
		if err == nil {
			continue
		}
		if CodeOf(err) != CodeConnectionFailed {
			r.logger.Error("failed to register configured agent",
				"url", agentURL, "error", err)
			continue
		}

		r.logger.Warn("configured agent unreachable at startup",
			"url", agentURL, "error", err)
		r.registerOffline(agentURL)
	}
}

// registerOffline adds a disconnected placeholder for a configured agent.
func (r *AgentRegistry) registerOffline(agentURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findByURL(agentURL) != nil {
		return
	}
	name, err := r.resolveName(nameFromURL(agentURL), false)
	if err != nil {
		r.logger.Error("failed to name offline agent", "url", agentURL, "error", err)
		return
	}
	entry := &AgentEntry{
		Name:    name,
		URL:     agentURL,
		Origin:  OriginConfigured,
		Status:  StatusDisconnected,
		AddedAt: time.Now(),
		conn:    a2a.NewConnection(agentURL, r.clientCfg, r.logger),
	}
	if err := r.agents.Register(name, entry); err != nil {
		r.logger.Error("failed to register offline agent", "url", agentURL, "error", err)
	}
}

// Remove drops a dynamic agent and closes its connection. Configured
// agents fail with CodeProtected.
func (r *AgentRegistry) Remove(name string) (*AgentEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.agents.Get(name)
	if !ok {
		return nil, NewError(CodeNotFound, name, "agent not registered", nil)
	}
	if entry.Origin == OriginConfigured {
		return nil, NewError(CodeProtected, name,
			"configured agents cannot be removed at runtime", nil)
	}
	if err := r.agents.Remove(name); err != nil {
		return nil, NewError(CodeNotFound, name, err.Error(), err)
	}
	if err := entry.conn.Close(); err != nil {
		r.logger.Warn("failed to close agent connection", "agent", name, "error", err)
	}

	r.logger.Info("agent removed", "agent", name)
	return entry, nil
}

// Get returns a value copy of the entry for a name, so callers read the
// mutable fields without racing Reconnect or MarkStatus.
func (r *AgentRegistry) Get(name string) (*AgentEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.agents.Get(name)
	if !ok {
		return nil, false
	}
	c := *entry
	return &c, true
}

// Snapshot returns value copies of every entry in registration order.
// Selection operates on a snapshot so concurrent team mutation cannot
// change the candidate set mid-decision.
func (r *AgentRegistry) Snapshot() []AgentEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.agents.List()
	out := make([]AgentEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}
	return out
}

// Names returns registered agent names in registration order.
func (r *AgentRegistry) Names() []string {
	return r.agents.Names()
}

// Count returns the number of registered agents.
func (r *AgentRegistry) Count() int {
	return r.agents.Count()
}

// Reconnect refetches an agent's card and updates its status.
func (r *AgentRegistry) Reconnect(ctx context.Context, name string) (*AgentEntry, error) {
	entry, ok := r.agents.Get(name)
	if !ok {
		return nil, NewError(CodeNotFound, name, "agent not registered", nil)
	}

	card, err := entry.conn.Reconnect(ctx)

	r.mu.Lock()
	if err != nil {
		entry.Status = StatusDisconnected
	} else {
		entry.Card = card
		entry.Status = StatusConnected
	}
	updated := *entry
	r.mu.Unlock()

	if err != nil {
		return nil, NewError(CodeConnectionFailed, name, "reconnect failed", err)
	}
	r.logger.Info("agent reconnected", "agent", name)
	return &updated, nil
}

// MarkStatus records the connectivity observed by the delegation engine.
func (r *AgentRegistry) MarkStatus(name string, status AgentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.agents.Get(name); ok {
		entry.Status = status
	}
}

// Connection returns the live connection for an agent.
func (r *AgentRegistry) Connection(name string) (*a2a.Connection, error) {
	entry, ok := r.agents.Get(name)
	if !ok {
		return nil, NewError(CodeNotFound, name, "agent not registered", nil)
	}
	return entry.conn, nil
}

// CloseAll closes every agent connection concurrently.
func (r *AgentRegistry) CloseAll() error {
	g := new(errgroup.Group)
	for _, entry := range r.agents.List() {
		g.Go(entry.conn.Close)
	}
	err := g.Wait()
	r.agents.Clear()
	return err
}

// resolveName picks a free registry name. Caller holds r.mu.
func (r *AgentRegistry) resolveName(name string, exact bool) (string, error) {
	if name == "" {
		return "", NewError(CodeConnectionFailed, "",
			"agent card has no name", nil)
	}
	if _, taken := r.agents.Get(name); !taken {
		return name, nil
	}
	if exact {
		return "", NewError(CodeNameConflict, name,
			"name already registered", nil)
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", name, i)
		if _, taken := r.agents.Get(candidate); !taken {
			return candidate, nil
		}
	}
}

// findByURL returns the entry registered at a URL, or nil. Caller holds
// r.mu.
func (r *AgentRegistry) findByURL(agentURL string) *AgentEntry {
	normalized := strings.TrimSuffix(agentURL, "/")
	for _, e := range r.agents.List() {
		if strings.TrimSuffix(e.URL, "/") == normalized {
			return e
		}
	}
	return nil
}

// nameFromURL derives a placeholder name for an agent whose card is not
// available yet.
func nameFromURL(agentURL string) string {
	u, err := url.Parse(agentURL)
	if err != nil || u.Host == "" {
		return strings.NewReplacer("/", "-", ":", "-").Replace(agentURL)
	}
	return strings.ReplaceAll(u.Host, ":", "-")
}
