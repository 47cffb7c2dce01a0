package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundtable-ai/roundtable/a2a"
	"github.com/roundtable-ai/roundtable/config"
	"github.com/roundtable-ai/roundtable/session"
	"github.com/roundtable-ai/roundtable/supervisor"
	"github.com/roundtable-ai/roundtable/team"
)

// newRemoteAgent serves a minimal remote agent over httptest.
func newRemoteAgent(t *testing.T, name, reply string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/agent.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(a2a.AgentCard{Name: name, Version: "1.0.0"})
	})
	mux.HandleFunc("/task", func(w http.ResponseWriter, r *http.Request) {
		var req a2a.TaskRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		msg := a2a.NewTextMessage("assistant", reply)
		_ = json.NewEncoder(w).Encode(a2a.TaskResponse{
			ID:        req.ID,
			SessionID: req.SessionID,
			Status:    a2a.TaskStatus{State: a2a.TaskStateCompleted, Message: &msg},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newTestServer wires a full supervisor stack behind an httptest server.
func newTestServer(t *testing.T, agentURLs ...string) (*httptest.Server, *team.Manager) {
	t.Helper()
	reg := team.NewAgentRegistry(nil, nil)
	t.Cleanup(func() { _ = reg.CloseAll() })
	for _, u := range agentURLs {
		if _, err := reg.Register(context.Background(), u, team.RegisterOptions{}); err != nil {
			t.Fatalf("failed to register %s: %v", u, err)
		}
	}

	store := session.NewMemoryStore(0, nil)
	t.Cleanup(func() { _ = store.Close() })
	sessions := session.NewBridge(store, 0, nil)

	roster := team.NewRoster(nil)
	selector := team.NewSelector(reg, roster, nil, nil)
	engine := team.NewEngine("supervisor", reg, selector, sessions, nil, nil, nil)
	manager := team.NewManager(reg, roster, sessions, nil, nil)
	handler := supervisor.NewHandler("supervisor", "test supervisor", true, engine, manager, nil)

	srv := New(&config.ServerConfig{Host: "127.0.0.1", Port: 0}, handler, manager,
		prometheus.NewRegistry(), nil)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return ts, manager
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestServer_AgentCard(t *testing.T) {
	remote := newRemoteAgent(t, "alpha", "ok")
	ts, _ := newTestServer(t, remote.URL)

	resp, err := http.Get(ts.URL + "/.well-known/agent.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	card := decodeBody[a2a.AgentCard](t, resp)
	assert.Equal(t, "supervisor", card.Name)
	assert.True(t, card.Capabilities.Streaming)
	require.Len(t, card.Skills, 1)
	assert.Equal(t, "alpha", card.Skills[0].Name)
}

func TestServer_Task(t *testing.T) {
	remote := newRemoteAgent(t, "alpha", "task done")
	ts, _ := newTestServer(t, remote.URL)

	resp := postJSON(t, ts.URL+"/task", a2a.TaskRequest{
		ID:        "t1",
		SessionID: "s1",
		Message:   a2a.NewTextMessage("user", "do it"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	task := decodeBody[a2a.TaskResponse](t, resp)
	assert.Equal(t, "t1", task.ID)
	assert.Equal(t, "s1", task.SessionID)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
	assert.Equal(t, "task done", task.Status.Message.Text())
}

func TestServer_TaskInvalidBody(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/task", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_TaskNoAgentsStillOK(t *testing.T) {
	// Delegation failures are task outcomes, not transport errors.
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/task", a2a.TaskRequest{
		ID:      "t1",
		Message: a2a.NewTextMessage("user", "anything"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	task := decodeBody[a2a.TaskResponse](t, resp)
	assert.Equal(t, a2a.TaskStateFailed, task.Status.State)
}

func TestServer_TaskStream(t *testing.T) {
	remote := newRemoteAgent(t, "alpha", "streamed")
	ts, _ := newTestServer(t, remote.URL)

	resp := postJSON(t, ts.URL+"/task/stream", a2a.TaskRequest{
		ID:      "t1",
		Message: a2a.NewTextMessage("user", "do it"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var frames []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	require.NoError(t, scanner.Err())

	require.GreaterOrEqual(t, len(frames), 3)
	assert.Equal(t, "[DONE]", frames[len(frames)-1])

	var final a2a.StatusEvent
	require.NoError(t, json.Unmarshal([]byte(frames[len(frames)-2]), &final))
	assert.True(t, final.Final)
	assert.Equal(t, a2a.TaskStateCompleted, final.Status.State)
}

func TestServer_TeamAddAndList(t *testing.T) {
	remote := newRemoteAgent(t, "beta", "ok")
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/team/add", team.AddRequest{URL: remote.URL})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decodeBody[team.MemberInfo](t, resp)
	assert.Equal(t, "beta", info.Name)

	listResp, err := http.Get(ts.URL + "/team/list")
	require.NoError(t, err)
	defer listResp.Body.Close()
	list := decodeBody[team.TeamList](t, listResp)
	assert.Equal(t, 1, list.TotalAgents)
	assert.Equal(t, 1, list.DynamicAgents)
}

func TestServer_TeamAddMissingURL(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/team/add", team.AddRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_TeamAddUnreachable(t *testing.T) {
	ts, _ := newTestServer(t)

	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	dead.Close()

	resp := postJSON(t, ts.URL+"/team/add", team.AddRequest{URL: dead.URL})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, string(team.CodeConnectionFailed), body["code"])
}

func TestServer_TeamInfoNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/team/info/nobody")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, string(team.CodeNotFound), body["code"])
	assert.NotEmpty(t, body["error"])
}

func TestServer_TeamRemoveProtected(t *testing.T) {
	remote := newRemoteAgent(t, "alpha", "ok")

	reg := team.NewAgentRegistry(nil, nil)
	t.Cleanup(func() { _ = reg.CloseAll() })
	reg.RegisterConfigured(context.Background(), []string{remote.URL})

	store := session.NewMemoryStore(0, nil)
	t.Cleanup(func() { _ = store.Close() })
	sessions := session.NewBridge(store, 0, nil)
	roster := team.NewRoster(nil)
	selector := team.NewSelector(reg, roster, nil, nil)
	engine := team.NewEngine("supervisor", reg, selector, sessions, nil, nil, nil)
	manager := team.NewManager(reg, roster, sessions, nil, nil)
	handler := supervisor.NewHandler("supervisor", "", true, engine, manager, nil)
	srv := New(&config.ServerConfig{Host: "127.0.0.1", Port: 0}, handler, manager, nil, nil)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)

	resp := postJSON(t, ts.URL+"/team/remove", team.RemoveRequest{Name: "alpha"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_TeamStatus(t *testing.T) {
	remote := newRemoteAgent(t, "alpha", "ok")
	ts, _ := newTestServer(t, remote.URL)

	resp, err := http.Get(ts.URL + "/team/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	status := decodeBody[team.TeamStatus](t, resp)
	assert.Equal(t, "active", status.SupervisorStatus)
	assert.Equal(t, "healthy", status.Health)
	assert.Equal(t, 1, status.TotalAgents)
}

func TestServer_TeamBatchAddTooLarge(t *testing.T) {
	ts, _ := newTestServer(t)

	reqs := make([]team.AddRequest, team.MaxBatchSize+1)
	for i := range reqs {
		reqs[i] = team.AddRequest{URL: fmt.Sprintf("http://localhost:%d", 9100+i)}
	}

	resp := postJSON(t, ts.URL+"/team/batch/add", reqs)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, string(team.CodeInvalidRequest), body["code"])
}

func TestServer_TeamBatchRemove(t *testing.T) {
	alpha := newRemoteAgent(t, "alpha", "ok")
	ts, _ := newTestServer(t, alpha.URL)

	resp := postJSON(t, ts.URL+"/team/batch/remove", []team.RemoveRequest{
		{Name: "alpha"}, {Name: "ghost"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[team.BatchResult](t, resp)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
}

func TestServer_Health(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Metrics(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_MetricsDisabled(t *testing.T) {
	remote := newRemoteAgent(t, "alpha", "ok")

	reg := team.NewAgentRegistry(nil, nil)
	t.Cleanup(func() { _ = reg.CloseAll() })
	_, err := reg.Register(context.Background(), remote.URL, team.RegisterOptions{})
	require.NoError(t, err)

	store := session.NewMemoryStore(0, nil)
	t.Cleanup(func() { _ = store.Close() })
	sessions := session.NewBridge(store, 0, nil)
	roster := team.NewRoster(nil)
	selector := team.NewSelector(reg, roster, nil, nil)
	engine := team.NewEngine("supervisor", reg, selector, sessions, nil, nil, nil)
	manager := team.NewManager(reg, roster, sessions, nil, nil)
	handler := supervisor.NewHandler("supervisor", "", true, engine, manager, nil)
	srv := New(&config.ServerConfig{Host: "127.0.0.1", Port: 0}, handler, manager, nil, nil)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)

	resp, getErr := http.Get(ts.URL + "/metrics")
	require.NoError(t, getErr)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
