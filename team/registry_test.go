package team

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// AGENT REGISTRY TESTS
// ============================================================================

func TestAgentRegistry_RegisterUsesCardName(t *testing.T) {
	agent := newFakeAgent(t, "galahad", "ok", false)
	reg := NewAgentRegistry(nil, nil)
	defer reg.CloseAll()

	entry, err := reg.Register(context.Background(), agent.url(), RegisterOptions{})
	require.NoError(t, err)

	assert.Equal(t, "galahad", entry.Name)
	assert.Equal(t, StatusConnected, entry.Status)
	assert.Equal(t, OriginDynamic, entry.Origin)
	require.NotNil(t, entry.Card)
	assert.Equal(t, "galahad", entry.Card.Name)
}

func TestAgentRegistry_CustomName(t *testing.T) {
	agent := newFakeAgent(t, "galahad", "ok", false)
	reg := NewAgentRegistry(nil, nil)
	defer reg.CloseAll()

	entry, err := reg.Register(context.Background(), agent.url(), RegisterOptions{Name: "knight-1"})
	require.NoError(t, err)
	assert.Equal(t, "knight-1", entry.Name)
}

func TestAgentRegistry_NameDisambiguation(t *testing.T) {
	// Two distinct agents that report the same card name.
	first := newFakeAgent(t, "galahad", "ok", false)
	second := newFakeAgent(t, "galahad", "ok", false)
	third := newFakeAgent(t, "galahad", "ok", false)

	reg := NewAgentRegistry(nil, nil)
	defer reg.CloseAll()
	ctx := context.Background()

	e1, err := reg.Register(ctx, first.url(), RegisterOptions{})
	require.NoError(t, err)
	e2, err := reg.Register(ctx, second.url(), RegisterOptions{})
	require.NoError(t, err)
	e3, err := reg.Register(ctx, third.url(), RegisterOptions{})
	require.NoError(t, err)

	assert.Equal(t, "galahad", e1.Name)
	assert.Equal(t, "galahad-2", e2.Name)
	assert.Equal(t, "galahad-3", e3.Name)
}

func TestAgentRegistry_ExactNameConflict(t *testing.T) {
	first := newFakeAgent(t, "galahad", "ok", false)
	second := newFakeAgent(t, "galahad", "ok", false)

	reg := NewAgentRegistry(nil, nil)
	defer reg.CloseAll()
	ctx := context.Background()

	_, err := reg.Register(ctx, first.url(), RegisterOptions{})
	require.NoError(t, err)

	_, err = reg.Register(ctx, second.url(), RegisterOptions{Name: "galahad", Exact: true})
	require.Error(t, err)
	assert.Equal(t, CodeNameConflict, CodeOf(err))
}

func TestAgentRegistry_DuplicateURL(t *testing.T) {
	agent := newFakeAgent(t, "galahad", "ok", false)
	reg := NewAgentRegistry(nil, nil)
	defer reg.CloseAll()
	ctx := context.Background()

	_, err := reg.Register(ctx, agent.url(), RegisterOptions{})
	require.NoError(t, err)

	_, err = reg.Register(ctx, agent.url()+"/", RegisterOptions{})
	require.Error(t, err)
	assert.Equal(t, CodeNameConflict, CodeOf(err))
	assert.Equal(t, 1, reg.Count())
}

func TestAgentRegistry_UnreachableAgent(t *testing.T) {
	reg := NewAgentRegistry(nil, nil)
	defer reg.CloseAll()

	_, err := reg.Register(context.Background(), deadAgentURL(t), RegisterOptions{})
	require.Error(t, err)
	assert.Equal(t, CodeConnectionFailed, CodeOf(err))
	assert.Equal(t, 0, reg.Count())
}

func TestAgentRegistry_RegisterConfiguredKeepsOfflineAgents(t *testing.T) {
	live := newFakeAgent(t, "galahad", "ok", false)
	reg := NewAgentRegistry(nil, nil)
	defer reg.CloseAll()

	reg.RegisterConfigured(context.Background(), []string{live.url(), deadAgentURL(t)})

	require.Equal(t, 2, reg.Count())
	snapshot := reg.Snapshot()
	assert.Equal(t, StatusConnected, snapshot[0].Status)
	assert.Equal(t, StatusDisconnected, snapshot[1].Status)
	assert.Equal(t, OriginConfigured, snapshot[0].Origin)
	assert.Equal(t, OriginConfigured, snapshot[1].Origin)
}

func TestAgentRegistry_RemoveProtectsConfigured(t *testing.T) {
	agent := newFakeAgent(t, "galahad", "ok", false)
	reg := NewAgentRegistry(nil, nil)
	defer reg.CloseAll()

	entry, err := reg.Register(context.Background(), agent.url(),
		RegisterOptions{Origin: OriginConfigured})
	require.NoError(t, err)

	_, err = reg.Remove(entry.Name)
	require.Error(t, err)
	assert.Equal(t, CodeProtected, CodeOf(err))
	assert.Equal(t, 1, reg.Count())
}

func TestAgentRegistry_RemoveDynamic(t *testing.T) {
	agent := newFakeAgent(t, "galahad", "ok", false)
	reg := NewAgentRegistry(nil, nil)
	defer reg.CloseAll()

	entry, err := reg.Register(context.Background(), agent.url(), RegisterOptions{})
	require.NoError(t, err)

	removed, err := reg.Remove(entry.Name)
	require.NoError(t, err)
	assert.Equal(t, "galahad", removed.Name)
	assert.Equal(t, 0, reg.Count())

	_, err = reg.Remove(entry.Name)
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))

	// Re-registering the same agent restores a usable connected entry
	// under its old name with a fresh registration timestamp.
	again, err := reg.Register(context.Background(), agent.url(), RegisterOptions{})
	require.NoError(t, err)
	assert.Equal(t, "galahad", again.Name)
	assert.Equal(t, StatusConnected, again.Status)
	assert.True(t, again.AddedAt.After(removed.AddedAt) || again.AddedAt.Equal(removed.AddedAt))
	assert.Equal(t, 1, reg.Count())

	conn, err := reg.Connection("galahad")
	require.NoError(t, err)
	require.NotNil(t, conn)
}

// Status updates from in-flight delegations must not race concurrent
// snapshot and lookup readers. Run with -race.
func TestAgentRegistry_ConcurrentStatusAndSnapshot(t *testing.T) {
	agent := newFakeAgent(t, "galahad", "ok", false)
	reg := newTestTeam(t, agent)

	var wg sync.WaitGroup
	done := make(chan struct{})
	for _, status := range []AgentStatus{StatusDisconnected, StatusConnected} {
		wg.Add(1)
		go func(status AgentStatus) {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					reg.MarkStatus("galahad", status)
				}
			}
		}(status)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				for _, e := range reg.Snapshot() {
					_ = e.Status
				}
				if entry, ok := reg.Get("galahad"); ok {
					_ = entry.Status
				}
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()

	entry, ok := reg.Get("galahad")
	require.True(t, ok)
	assert.Contains(t, []AgentStatus{StatusConnected, StatusDisconnected}, entry.Status)
}

func TestAgentRegistry_SnapshotIsolation(t *testing.T) {
	agent := newFakeAgent(t, "galahad", "ok", false)
	reg := newTestTeam(t, agent)

	snapshot := reg.Snapshot()
	require.Len(t, snapshot, 1)

	// Mutating the snapshot must not affect the registry.
	snapshot[0].Status = StatusDisconnected
	snapshot[0].Name = "tampered"

	entry, ok := reg.Get("galahad")
	require.True(t, ok)
	assert.Equal(t, StatusConnected, entry.Status)
	assert.Equal(t, "galahad", entry.Name)
}

func TestAgentRegistry_Reconnect(t *testing.T) {
	agent := newFakeAgent(t, "galahad", "ok", false)
	reg := newTestTeam(t, agent)

	reg.MarkStatus("galahad", StatusDisconnected)

	entry, err := reg.Reconnect(context.Background(), "galahad")
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, entry.Status)

	_, err = reg.Reconnect(context.Background(), "nobody")
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestAgentRegistry_PreservesRegistrationOrder(t *testing.T) {
	a := newFakeAgent(t, "alpha", "ok", false)
	b := newFakeAgent(t, "beta", "ok", false)
	c := newFakeAgent(t, "gamma", "ok", false)
	reg := newTestTeam(t, a, b, c)

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, reg.Names())
}
