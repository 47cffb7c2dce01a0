package team

import (
	"strings"

	"github.com/roundtable-ai/roundtable/config"
)

// ============================================================================
// TEAM ROSTER
// ============================================================================

// Roster maps themed codenames onto real agent names. It is pure data:
// the selection policy uses it for alias matching and for enriching the
// selection prompt; nothing else depends on it.
type Roster struct {
	entries []config.RosterEntry
}

// defaultRoster is the built-in specialist team. A config file roster
// replaces it entirely.
var defaultRoster = []config.RosterEntry{
	{
		Codename:    "Galahad",
		Agent:       "ibmcloud_base_agent",
		Expertise:   "Foundation & Infrastructure",
		Description: "The foundation specialist who handles core IBM Cloud resources and infrastructure management",
		Specialties: []string{"resource_groups", "service_instances", "targets", "basic_operations"},
	},
	{
		Codename:    "Lancelot",
		Agent:       "ibmcloud_account_admin_agent",
		Expertise:   "Security & Access Control",
		Description: "The security expert who manages accounts, users, and access policies with precision",
		Specialties: []string{"user_management", "iam_policies", "access_groups", "service_ids", "api_keys"},
	},
	{
		Codename:    "Percival",
		Agent:       "ibmcloud_serverless_agent",
		Expertise:   "Serverless & Modern Applications",
		Description: "The modernization specialist focused on serverless computing and cloud-native applications",
		Specialties: []string{"code_engine", "functions", "serverless_apps", "container_deployments"},
	},
	{
		Codename:    "Gareth",
		Agent:       "ibmcloud_guide_agent",
		Expertise:   "Strategy & Best Practices",
		Description: "The strategic advisor who provides guidance, best practices, and architectural recommendations",
		Specialties: []string{"best_practices", "architecture_guidance", "service_recommendations", "troubleshooting"},
	},
	{
		Codename:    "Tristan",
		Agent:       "ibmcloud_cloud_automation_agent",
		Expertise:   "Automation & DevOps",
		Description: "The automation expert who handles deployable architectures, projects, and infrastructure as code",
		Specialties: []string{"deployable_architectures", "projects", "schematics", "terraform", "automation_pipelines"},
	},
}

// NewRoster builds a roster from config entries, falling back to the
// built-in team when none are configured.
func NewRoster(entries []config.RosterEntry) *Roster {
	if len(entries) == 0 {
		entries = defaultRoster
	}
	return &Roster{entries: entries}
}

// Entries returns the roster in declaration order.
func (r *Roster) Entries() []config.RosterEntry {
	return r.entries
}

// AgentForCodename resolves a codename (case-insensitive) to its real
// agent name.
func (r *Roster) AgentForCodename(codename string) (string, bool) {
	for _, e := range r.entries {
		if strings.EqualFold(e.Codename, codename) {
			return e.Agent, true
		}
	}
	return "", false
}

// EntryForAgent returns the roster entry for a real agent name.
func (r *Roster) EntryForAgent(agent string) (config.RosterEntry, bool) {
	for _, e := range r.entries {
		if strings.EqualFold(e.Agent, agent) {
			return e, true
		}
	}
	return config.RosterEntry{}, false
}
