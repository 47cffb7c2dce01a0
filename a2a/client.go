package a2a

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ============================================================================
// A2A CLIENT - Call remote A2A agents over HTTP
// ============================================================================

const (
	wellKnownPath = "/.well-known/agent.json"
	taskPath      = "/task"
	streamPath    = "/task/stream"

	// DefaultTimeout bounds a single blocking call to a remote agent.
	DefaultTimeout = 60 * time.Second
)

// ClientConfig contains configuration for the A2A client.
type ClientConfig struct {
	Timeout time.Duration
}

// Client is an A2A protocol client for one remote agent base URL.
// It is safe for concurrent use; calls are stateless apart from the
// underlying connection pool.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a client for the agent served at baseURL.
func NewClient(baseURL string, cfg *ClientConfig) *Client {
	timeout := DefaultTimeout
	if cfg != nil && cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// BaseURL returns the agent base URL this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchCard retrieves the agent's capability descriptor from the
// well-known endpoint.
func (c *Client) FetchCard(ctx context.Context) (*AgentCard, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+wellKnownPath, nil)
	if err != nil {
		return nil, NewError(CodeUnreachable, c.baseURL, "failed to create card request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classifyTransport(err, "failed to fetch agent card")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, NewError(CodeUnreachable, c.baseURL,
			fmt.Sprintf("card endpoint returned %s: %s", resp.Status, string(body)), nil)
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, NewError(CodeInvalidDescriptor, c.baseURL, "failed to decode agent card", err)
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}

	return &card, nil
}

// SendTask sends a task and awaits the single terminal response.
func (c *Client) SendTask(ctx context.Context, req *TaskRequest) (*TaskResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewError(CodeRemoteTask, c.baseURL, "failed to marshal task request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+taskPath, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(CodeUnreachable, c.baseURL, "failed to create task request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.classifyTransport(err, "task call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, NewError(CodeRemoteTask, c.baseURL,
			fmt.Sprintf("task endpoint returned %s: %s", resp.Status, string(respBody)), nil)
	}

	var taskResp TaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&taskResp); err != nil {
		return nil, NewError(CodeRemoteTask, c.baseURL, "failed to decode task response", err)
	}

	if taskResp.Status.State == TaskStateFailed {
		msg := taskResp.Status.Error
		if msg == "" && taskResp.Status.Message != nil {
			msg = taskResp.Status.Message.Text()
		}
		if msg == "" {
			msg = "remote agent reported task failure"
		}
		return &taskResp, NewError(CodeRemoteTask, c.baseURL, msg, nil)
	}

	return &taskResp, nil
}

// StreamTask sends a task and returns a channel of incremental status
// events. The channel is closed after the final event or on error; a
// stream is not restartable, callers re-issue the task instead. The
// caller cancels ctx to stop consuming mid-stream.
func (c *Client) StreamTask(ctx context.Context, req *TaskRequest) (<-chan StatusEvent, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewError(CodeRemoteTask, c.baseURL, "failed to marshal task request", err)
	}

	// The per-call timeout bounds the whole stream, not individual events.
	streamCtx, cancel := context.WithTimeout(ctx, c.timeout)

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL+streamPath, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, NewError(CodeUnreachable, c.baseURL, "failed to create stream request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, c.classifyTransport(err, "stream call failed")
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, NewError(CodeRemoteTask, c.baseURL,
			fmt.Sprintf("stream endpoint returned %s: %s", resp.Status, string(respBody)), nil)
	}

	events := make(chan StatusEvent, 8)
	go func() {
		defer close(events)
		defer cancel()
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" || data == "[DONE]" {
				return
			}

			var event StatusEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				// Skip malformed frames; the stream terminator decides the outcome.
				continue
			}
			if event.TaskID == "" {
				event.TaskID = req.ID
			}

			select {
			case events <- event:
			case <-streamCtx.Done():
				return
			}
			if event.Final {
				return
			}
		}

		if err := scanner.Err(); err != nil && streamCtx.Err() == nil {
			select {
			case events <- StatusEvent{
				TaskID: req.ID,
				Status: TaskStatus{
					State: TaskStateFailed,
					Error: fmt.Sprintf("stream read failed: %v", err),
				},
				Final: true,
			}:
			case <-streamCtx.Done():
			}
		}
	}()

	return events, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// classifyTransport maps a request error onto the A2A error taxonomy.
func (c *Client) classifyTransport(err error, message string) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CodeTimeout, c.baseURL, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(CodeTimeout, c.baseURL, message, err)
	}
	return NewError(CodeUnreachable, c.baseURL, message, err)
}
