// Package roundtable provides a supervisor that fronts a team of remote
// A2A agents behind a single task endpoint.
//
// A roundtable supervisor accepts tasks over the same protocol the
// remote agents speak, picks the best specialist for each request, and
// forwards the task with session continuity preserved across turns.
// Selection is deterministic when the request names an agent (or its
// roster codename) and LLM-driven otherwise, with a registration-order
// fallback so a task is always routed while any agent is reachable.
//
// # Quick Start
//
// Install the supervisor:
//
//	go install github.com/roundtable-ai/roundtable/cmd/roundtable@latest
//
// Point it at your agents:
//
//	roundtable serve --agents http://localhost:8001,http://localhost:8002
//
// Or drive everything from a config file:
//
//	supervisor:
//	  name: "supervisor"
//	  llm: "gpt-4o"
//	  agent_urls:
//	    - "http://localhost:8001"
//	    - "http://localhost:8002"
//
//	llms:
//	  gpt-4o:
//	    type: "openai"
//	    model: "gpt-4o-mini"
//	    api_key: "${OPENAI_API_KEY}"
//
//	roundtable serve --config roundtable.yaml
//
// # Architecture
//
// The supervisor is itself just another A2A agent to its callers:
//
//	Caller → Supervisor (card, /task, /task/stream) → Agent Registry → Remote Agents
//
// Teams can be reshaped at runtime through the /team endpoints without
// restarting: agents added dynamically join selection immediately, and
// removed agents release their session bindings.
package roundtable
