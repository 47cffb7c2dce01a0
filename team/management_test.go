package team

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// TEAM MANAGEMENT TESTS
// ============================================================================

func newTestManager(t *testing.T, reg *AgentRegistry) *Manager {
	t.Helper()
	return NewManager(reg, NewRoster(nil), newTestSessions(t), nil, nil)
}

func TestManager_AddAndList(t *testing.T) {
	alpha := newFakeAgent(t, "alpha", "ok", false)
	beta := newFakeAgent(t, "beta", "ok", true)
	reg := newTestTeam(t, alpha)
	mgr := newTestManager(t, reg)

	info, err := mgr.Add(context.Background(), AddRequest{URL: beta.url()})
	require.NoError(t, err)
	assert.Equal(t, "beta", info.Name)
	assert.Equal(t, string(OriginDynamic), info.Origin)
	assert.True(t, info.Streaming)

	list := mgr.List()
	assert.Equal(t, 2, list.TotalAgents)
	assert.Equal(t, 2, list.DynamicAgents)
	assert.Equal(t, 2, list.ConnectedAgents)
	assert.Zero(t, list.DisconnectedAgents)
}

func TestManager_AddWithCustomName(t *testing.T) {
	alpha := newFakeAgent(t, "alpha", "ok", false)
	reg := newTestTeam(t)
	mgr := newTestManager(t, reg)

	info, err := mgr.Add(context.Background(), AddRequest{URL: alpha.url(), Name: "billing"})
	require.NoError(t, err)
	assert.Equal(t, "billing", info.Name)
}

func TestManager_AddUnreachable(t *testing.T) {
	mgr := newTestManager(t, newTestTeam(t))

	_, err := mgr.Add(context.Background(), AddRequest{URL: deadAgentURL(t)})
	require.Error(t, err)
	assert.Equal(t, CodeConnectionFailed, CodeOf(err))
}

func TestManager_Remove(t *testing.T) {
	alpha := newFakeAgent(t, "alpha", "ok", false)
	reg := newTestTeam(t, alpha)
	mgr := newTestManager(t, reg)

	require.NoError(t, mgr.Remove(context.Background(), "alpha"))
	assert.Zero(t, reg.Count())

	err := mgr.Remove(context.Background(), "alpha")
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestManager_RemoveReleasesSessions(t *testing.T) {
	alpha := newFakeAgent(t, "alpha", "ok", false)
	reg := newTestTeam(t, alpha)
	sessions := newTestSessions(t)
	mgr := NewManager(reg, NewRoster(nil), sessions, nil, nil)

	_, err := sessions.Bind(context.Background(), "s1", "alpha")
	require.NoError(t, err)

	require.NoError(t, mgr.Remove(context.Background(), "alpha"))

	_, found, err := sessions.Resolve(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, found, "removed agents must not keep session bindings")
}

func TestManager_Info_RosterEnrichment(t *testing.T) {
	agent := newFakeAgent(t, "ibmcloud_base_agent", "ok", false)
	reg := newTestTeam(t, agent)
	mgr := newTestManager(t, reg)

	info, err := mgr.Info("ibmcloud_base_agent")
	require.NoError(t, err)
	assert.Equal(t, "Galahad", info.Codename)
	assert.Equal(t, "Foundation & Infrastructure", info.Expertise)
}

func TestManager_InfoNotFound(t *testing.T) {
	mgr := newTestManager(t, newTestTeam(t))

	_, err := mgr.Info("nobody")
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestManager_Status(t *testing.T) {
	alpha := newFakeAgent(t, "alpha", "ok", false)
	reg := newTestTeam(t, alpha)
	mgr := newTestManager(t, reg)

	status := mgr.Status()
	assert.Equal(t, "active", status.SupervisorStatus)
	assert.Equal(t, "healthy", status.Health)

	reg.MarkStatus("alpha", StatusDisconnected)
	status = mgr.Status()
	assert.Equal(t, "warning", status.Health)
	assert.Equal(t, 1, status.DisconnectedAgents)
}

func TestManager_BatchAdd(t *testing.T) {
	alpha := newFakeAgent(t, "alpha", "ok", false)
	beta := newFakeAgent(t, "beta", "ok", false)
	mgr := newTestManager(t, newTestTeam(t))

	result, err := mgr.BatchAdd(context.Background(), []AddRequest{
		{URL: alpha.url()},
		{URL: beta.url()},
		{URL: deadAgentURL(t)},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.BatchSize)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Results, 3)
	assert.True(t, result.Results[0].Success)
	assert.False(t, result.Results[2].Success)
	assert.NotEmpty(t, result.Results[2].Error)
}

func TestManager_BatchAddTooLarge(t *testing.T) {
	mgr := newTestManager(t, newTestTeam(t))

	reqs := make([]AddRequest, MaxBatchSize+1)
	for i := range reqs {
		reqs[i] = AddRequest{URL: fmt.Sprintf("http://localhost:%d", 9000+i)}
	}

	_, err := mgr.BatchAdd(context.Background(), reqs)
	require.Error(t, err)
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
}

func TestManager_BatchRemove(t *testing.T) {
	alpha := newFakeAgent(t, "alpha", "ok", false)
	beta := newFakeAgent(t, "beta", "ok", false)
	mgr := newTestManager(t, newTestTeam(t, alpha, beta))

	result, err := mgr.BatchRemove(context.Background(), []RemoveRequest{
		{Name: "alpha"},
		{Name: "ghost"},
		{Name: "beta"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.Results[1].Success)
	assert.Equal(t, "ghost", result.Results[1].Agent)
}

func TestManager_Reconnect(t *testing.T) {
	alpha := newFakeAgent(t, "alpha", "ok", false)
	reg := newTestTeam(t, alpha)
	mgr := newTestManager(t, reg)

	reg.MarkStatus("alpha", StatusDisconnected)
	info, err := mgr.Reconnect(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, string(StatusConnected), info.Status)
}
