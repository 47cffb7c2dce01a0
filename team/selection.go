package team

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ============================================================================
// AGENT SELECTION
// ============================================================================

// Completer produces an LLM completion for a prompt. Satisfied by
// llms.Provider.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// SelectionSource records how a selection decision was reached.
type SelectionSource string

const (
	// SourceDeterministic means the request text named an agent or
	// codename directly; no LLM call was made.
	SourceDeterministic SelectionSource = "deterministic"

	// SourceLLM means the model picked the agent.
	SourceLLM SelectionSource = "llm"

	// SourceFallback means the LLM was unavailable or its answer did not
	// match a registered agent, and the default chain decided.
	SourceFallback SelectionSource = "fallback"
)

// SelectionDecision is the outcome of one routing decision.
type SelectionDecision struct {
	Agent     string          `json:"agent"`
	Source    SelectionSource `json:"source"`
	Rationale string          `json:"rationale,omitempty"`
}

// Selector chooses which registered agent handles a request.
type Selector struct {
	registry  *AgentRegistry
	roster    *Roster
	completer Completer
	logger    *slog.Logger
}

// NewSelector creates a selector. completer may be nil, in which case
// every non-deterministic decision uses the fallback chain.
func NewSelector(reg *AgentRegistry, roster *Roster, completer Completer, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		registry:  reg,
		roster:    roster,
		completer: completer,
		logger:    logger,
	}
}

// Select picks an agent for the request text. sessionAgent is the agent
// the session is currently bound to ("" when unbound); exclude removes
// agents from consideration, used when retrying after a delivery failure.
//
// The decision order is: direct mention of an agent name or codename in
// the text (earliest occurrence wins), then the LLM, then the fallback
// chain (session-bound agent, first registered agent). Select only fails
// when no candidates remain.
func (s *Selector) Select(ctx context.Context, text, sessionAgent string, exclude map[string]bool) (*SelectionDecision, error) {
	candidates := s.candidates(exclude)
	if len(candidates) == 0 {
		return nil, NewError(CodeNoAgents, "", "no agents available for delegation", nil)
	}

	if agent, matched := s.scanMention(text, candidates); matched != "" {
		s.logger.Debug("deterministic agent selection", "agent", agent, "mention", matched)
		return &SelectionDecision{
			Agent:     agent,
			Source:    SourceDeterministic,
			Rationale: fmt.Sprintf("request mentions %q", matched),
		}, nil
	}

	if s.completer != nil {
		if decision := s.askLLM(ctx, text, sessionAgent, candidates); decision != nil {
			return decision, nil
		}
	}

	return s.fallback(sessionAgent, candidates), nil
}

// candidates returns selectable entries in registration order.
func (s *Selector) candidates(exclude map[string]bool) []AgentEntry {
	snapshot := s.registry.Snapshot()
	out := make([]AgentEntry, 0, len(snapshot))
	for _, e := range snapshot {
		if !exclude[e.Name] {
			out = append(out, e)
		}
	}
	return out
}

// scanMention finds the agent whose name or codename appears earliest in
// the text. Ties go to registration order. Returns the agent name and the
// matched token.
func (s *Selector) scanMention(text string, candidates []AgentEntry) (agent, matched string) {
	lower := strings.ToLower(text)
	best := -1
	for _, e := range candidates {
		tokens := []string{e.Name}
		if entry, ok := s.roster.EntryForAgent(e.Name); ok {
			tokens = append(tokens, entry.Codename)
		}
		for _, token := range tokens {
			if token == "" {
				continue
			}
			idx := strings.Index(lower, strings.ToLower(token))
			if idx < 0 {
				continue
			}
			if best == -1 || idx < best {
				best = idx
				agent = e.Name
				matched = token
			}
		}
	}
	return agent, matched
}

// askLLM asks the model to pick an agent. Returns nil when the call fails
// or the answer does not resolve to a candidate, so the caller falls back.
func (s *Selector) askLLM(ctx context.Context, text, sessionAgent string, candidates []AgentEntry) *SelectionDecision {
	prompt := s.buildPrompt(text, sessionAgent, candidates)
	answer, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		s.logger.Warn("selection LLM call failed", "error", err)
		return nil
	}

	selected := strings.ToLower(strings.TrimSpace(answer))
	selected = strings.Trim(selected, "\"'.`")
	if selected == "" || selected == "none" {
		return nil
	}

	for _, e := range candidates {
		if strings.EqualFold(e.Name, selected) {
			return &SelectionDecision{Agent: e.Name, Source: SourceLLM}
		}
	}
	// The model may answer with a codename even though the prompt asks
	// for the agent name.
	if name, ok := s.roster.AgentForCodename(selected); ok {
		for _, e := range candidates {
			if e.Name == name {
				return &SelectionDecision{Agent: e.Name, Source: SourceLLM}
			}
		}
	}

	s.logger.Warn("selection LLM returned unknown agent", "answer", selected)
	return nil
}

// fallback picks the session-bound agent when it is still a candidate,
// otherwise the first registered agent.
func (s *Selector) fallback(sessionAgent string, candidates []AgentEntry) *SelectionDecision {
	if sessionAgent != "" {
		for _, e := range candidates {
			if e.Name == sessionAgent {
				return &SelectionDecision{
					Agent:     e.Name,
					Source:    SourceFallback,
					Rationale: "session continuity",
				}
			}
		}
	}
	return &SelectionDecision{
		Agent:     candidates[0].Name,
		Source:    SourceFallback,
		Rationale: "first registered agent",
	}
}

// buildPrompt renders the selection prompt with roster expertise where
// available and card descriptions otherwise. When the session is already
// bound to an agent the prompt says so, biasing the model toward
// conversational continuity.
func (s *Selector) buildPrompt(text, sessionAgent string, candidates []AgentEntry) string {
	var descriptions []string
	for _, e := range candidates {
		if entry, ok := s.roster.EntryForAgent(e.Name); ok {
			descriptions = append(descriptions, fmt.Sprintf(
				"- %s (Codename: %s)\n  Expertise: %s\n  Description: %s\n  Specialties: %s",
				e.Name, entry.Codename, entry.Expertise, entry.Description,
				strings.Join(entry.Specialties, ", ")))
			continue
		}
		descriptions = append(descriptions, fmt.Sprintf("- %s: %s", e.Name, e.Description()))
	}

	var b strings.Builder
	b.WriteString("You are a supervisor agent that routes requests to specialized agents.\n\n")
	b.WriteString("Available agents:\n")
	b.WriteString(strings.Join(descriptions, "\n\n"))
	b.WriteString("\n\n")
	if sessionAgent != "" {
		fmt.Fprintf(&b, "This conversation is currently handled by %s. Prefer it for continuity unless another agent clearly fits the request better.\n\n", sessionAgent)
	}
	b.WriteString("Analyze the user's request and respond with ONLY the agent name (not codename) that should handle it.\n")
	b.WriteString("Do not include any explanation, just the agent name.\n")
	b.WriteString("If no agent is suitable, respond with 'none'.\n\n")
	b.WriteString("User request: ")
	b.WriteString(text)
	return b.String()
}
