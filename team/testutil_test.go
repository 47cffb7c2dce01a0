package team

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/roundtable-ai/roundtable/a2a"
	"github.com/roundtable-ai/roundtable/session"
)

// fakeAgent is an in-process remote agent for tests: it serves a card,
// answers blocking tasks with a canned reply, and counts calls.
type fakeAgent struct {
	server    *httptest.Server
	name      string
	reply     string
	streaming bool
	failTask  atomic.Bool
	taskCalls atomic.Int64
	lastReq   atomic.Pointer[a2a.TaskRequest]
}

func newFakeAgent(t *testing.T, name, reply string, streaming bool) *fakeAgent {
	t.Helper()
	f := &fakeAgent{name: name, reply: reply, streaming: streaming}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/agent.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(a2a.AgentCard{
			Name:         f.name,
			Description:  fmt.Sprintf("%s test agent", f.name),
			Version:      "1.0.0",
			Capabilities: a2a.AgentCapabilities{Streaming: f.streaming},
		})
	})
	mux.HandleFunc("/task", func(w http.ResponseWriter, r *http.Request) {
		f.taskCalls.Add(1)
		var req a2a.TaskRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.lastReq.Store(&req)

		if f.failTask.Load() {
			_ = json.NewEncoder(w).Encode(a2a.TaskResponse{
				ID:        req.ID,
				SessionID: req.SessionID,
				Status:    a2a.TaskStatus{State: a2a.TaskStateFailed, Error: "task processing failed"},
			})
			return
		}
		msg := a2a.NewTextMessage("assistant", f.reply)
		_ = json.NewEncoder(w).Encode(a2a.TaskResponse{
			ID:        req.ID,
			SessionID: req.SessionID,
			Status:    a2a.TaskStatus{State: a2a.TaskStateCompleted, Message: &msg},
		})
	})
	mux.HandleFunc("/task/stream", func(w http.ResponseWriter, r *http.Request) {
		f.taskCalls.Add(1)
		var req a2a.TaskRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.lastReq.Store(&req)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		msg := a2a.NewTextMessage("assistant", f.reply)
		events := []a2a.StatusEvent{
			{TaskID: req.ID, Status: a2a.TaskStatus{State: a2a.TaskStateWorking}},
			{TaskID: req.ID, Status: a2a.TaskStatus{State: a2a.TaskStateCompleted, Message: &msg}, Final: true},
		}
		for _, ev := range events {
			data, _ := json.Marshal(ev)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAgent) url() string {
	return f.server.URL
}

// deadAgentURL returns a URL nothing listens on.
func deadAgentURL(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	ts.Close()
	return ts.URL
}

// fakeCompleter is a scripted Completer.
type fakeCompleter struct {
	answer string
	err    error
	calls  atomic.Int64
	prompt atomic.Pointer[string]
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	f.prompt.Store(&prompt)
	return f.answer, f.err
}

// newTestTeam spins up a registry with the given fake agents registered.
func newTestTeam(t *testing.T, agents ...*fakeAgent) *AgentRegistry {
	t.Helper()
	reg := NewAgentRegistry(nil, nil)
	t.Cleanup(func() { _ = reg.CloseAll() })
	for _, f := range agents {
		if _, err := reg.Register(context.Background(), f.url(), RegisterOptions{}); err != nil {
			t.Fatalf("failed to register %s: %v", f.name, err)
		}
	}
	return reg
}

func newTestSessions(t *testing.T) *session.Bridge {
	t.Helper()
	store := session.NewMemoryStore(0, nil)
	t.Cleanup(func() { _ = store.Close() })
	return session.NewBridge(store, 0, nil)
}
