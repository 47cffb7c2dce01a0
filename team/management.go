package team

import (
	"context"
	"log/slog"
	"time"

	"github.com/roundtable-ai/roundtable/observability"
	"github.com/roundtable-ai/roundtable/session"
)

// ============================================================================
// TEAM MANAGEMENT
// ============================================================================

// MaxBatchSize caps batch add/remove requests. Oversized batches are
// rejected outright, not truncated.
const MaxBatchSize = 10

// MemberInfo is the management view of one agent.
type MemberInfo struct {
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	Codename    string   `json:"codename,omitempty"`
	Expertise   string   `json:"expertise,omitempty"`
	Origin      string   `json:"origin"`
	Status      string   `json:"status"`
	Streaming   bool     `json:"streaming"`
	Skills      []string `json:"skills,omitempty"`
	AddedAt     string   `json:"added_at"`
}

// TeamList is the response of the list operation.
type TeamList struct {
	Agents             []MemberInfo `json:"agents"`
	TotalAgents        int          `json:"total_agents"`
	ConfiguredAgents   int          `json:"configured_agents"`
	DynamicAgents      int          `json:"dynamic_agents"`
	ConnectedAgents    int          `json:"connected_agents"`
	DisconnectedAgents int          `json:"disconnected_agents"`
}

// TeamStatus is the summary health view.
type TeamStatus struct {
	SupervisorStatus   string `json:"supervisor_status"`
	TotalAgents        int    `json:"total_agents"`
	ConfiguredAgents   int    `json:"configured_agents"`
	DynamicAgents      int    `json:"dynamic_agents"`
	ConnectedAgents    int    `json:"connected_agents"`
	DisconnectedAgents int    `json:"disconnected_agents"`
	Health             string `json:"health"`
}

// MemberResult reports one add/remove/reconnect outcome, including
// per-item outcomes inside a batch.
type MemberResult struct {
	Success bool   `json:"success"`
	Agent   string `json:"agent_name,omitempty"`
	URL     string `json:"agent_url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchResult aggregates a batch operation.
type BatchResult struct {
	BatchSize  int            `json:"batch_size"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Results    []MemberResult `json:"results"`
}

// AddRequest is one agent addition.
type AddRequest struct {
	URL  string `json:"agent_url"`
	Name string `json:"agent_name,omitempty"`
}

// RemoveRequest is one agent removal.
type RemoveRequest struct {
	Name string `json:"agent_name"`
}

// Manager is the runtime mutation surface of the team. All operations go
// through the registry; the manager adds roster enrichment, session
// cleanup on removal, and batch handling.
type Manager struct {
	registry *AgentRegistry
	roster   *Roster
	sessions *session.Bridge
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewManager creates a manager. sessions and metrics may be nil.
func NewManager(reg *AgentRegistry, roster *Roster, sessions *session.Bridge,
	metrics *observability.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: reg,
		roster:   roster,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// Add registers a dynamic agent. A custom name is exact: collision fails
// rather than disambiguating, since the caller asked for that name
// specifically.
func (m *Manager) Add(ctx context.Context, req AddRequest) (*MemberInfo, error) {
	entry, err := m.registry.Register(ctx, req.URL, RegisterOptions{
		Name:   req.Name,
		Exact:  req.Name != "",
		Origin: OriginDynamic,
	})
	if err != nil {
		return nil, err
	}
	m.metrics.SetTeamSize(m.registry.Count())
	info := m.memberInfo(*entry)
	return &info, nil
}

// Remove drops a dynamic agent and releases its session bindings.
func (m *Manager) Remove(ctx context.Context, name string) error {
	entry, err := m.registry.Remove(name)
	if err != nil {
		return err
	}
	if m.sessions != nil {
		m.sessions.ReleaseAgent(ctx, entry.Name)
	}
	m.metrics.SetTeamSize(m.registry.Count())
	return nil
}

// List returns every team member with summary counts.
func (m *Manager) List() *TeamList {
	snapshot := m.registry.Snapshot()
	list := &TeamList{
		Agents:      make([]MemberInfo, 0, len(snapshot)),
		TotalAgents: len(snapshot),
	}
	for _, e := range snapshot {
		list.Agents = append(list.Agents, m.memberInfo(e))
		if e.Origin == OriginConfigured {
			list.ConfiguredAgents++
		} else {
			list.DynamicAgents++
		}
		if e.Status == StatusConnected {
			list.ConnectedAgents++
		}
	}
	list.DisconnectedAgents = list.TotalAgents - list.ConnectedAgents
	return list
}

// Info returns details for one agent.
func (m *Manager) Info(name string) (*MemberInfo, error) {
	entry, ok := m.registry.Get(name)
	if !ok {
		return nil, NewError(CodeNotFound, name, "agent not registered", nil)
	}
	info := m.memberInfo(*entry)
	return &info, nil
}

// Reconnect refetches an agent's card.
func (m *Manager) Reconnect(ctx context.Context, name string) (*MemberInfo, error) {
	entry, err := m.registry.Reconnect(ctx, name)
	if err != nil {
		return nil, err
	}
	info := m.memberInfo(*entry)
	return &info, nil
}

// Status returns the summary health view.
func (m *Manager) Status() *TeamStatus {
	list := m.List()
	health := "healthy"
	if list.ConnectedAgents == 0 {
		health = "warning"
	}
	return &TeamStatus{
		SupervisorStatus:   "active",
		TotalAgents:        list.TotalAgents,
		ConfiguredAgents:   list.ConfiguredAgents,
		DynamicAgents:      list.DynamicAgents,
		ConnectedAgents:    list.ConnectedAgents,
		DisconnectedAgents: list.DisconnectedAgents,
		Health:             health,
	}
}

// BatchAdd adds up to MaxBatchSize agents, reporting per-item outcomes.
func (m *Manager) BatchAdd(ctx context.Context, reqs []AddRequest) (*BatchResult, error) {
	if len(reqs) > MaxBatchSize {
		return nil, NewError(CodeInvalidRequest, "",
			"batch size limited to 10 agents", nil)
	}
	result := &BatchResult{BatchSize: len(reqs)}
	for _, req := range reqs {
		info, err := m.Add(ctx, req)
		if err != nil {
			result.Failed++
			result.Results = append(result.Results, MemberResult{
				Success: false, URL: req.URL, Agent: req.Name, Error: err.Error(),
			})
			continue
		}
		result.Successful++
		result.Results = append(result.Results, MemberResult{
			Success: true, URL: req.URL, Agent: info.Name,
		})
	}
	return result, nil
}

// BatchRemove removes up to MaxBatchSize agents, reporting per-item
// outcomes.
func (m *Manager) BatchRemove(ctx context.Context, reqs []RemoveRequest) (*BatchResult, error) {
	if len(reqs) > MaxBatchSize {
		return nil, NewError(CodeInvalidRequest, "",
			"batch size limited to 10 agents", nil)
	}
	result := &BatchResult{BatchSize: len(reqs)}
	for _, req := range reqs {
		if err := m.Remove(ctx, req.Name); err != nil {
			result.Failed++
			result.Results = append(result.Results, MemberResult{
				Success: false, Agent: req.Name, Error: err.Error(),
			})
			continue
		}
		result.Successful++
		result.Results = append(result.Results, MemberResult{Success: true, Agent: req.Name})
	}
	return result, nil
}

func (m *Manager) memberInfo(e AgentEntry) MemberInfo {
	info := MemberInfo{
		Name:    e.Name,
		URL:     e.URL,
		Origin:  string(e.Origin),
		Status:  string(e.Status),
		AddedAt: e.AddedAt.Format(time.RFC3339),
	}
	if e.Card != nil {
		info.Description = e.Card.Description
		info.Streaming = e.Card.Capabilities.Streaming
		for _, skill := range e.Card.Skills {
			info.Skills = append(info.Skills, skill.Name)
		}
	}
	if entry, ok := m.roster.EntryForAgent(e.Name); ok {
		info.Codename = entry.Codename
		info.Expertise = entry.Expertise
	}
	return info
}
