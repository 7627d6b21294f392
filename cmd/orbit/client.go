package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// client talks to a running orbit server over its HTTP API
type client struct {
	baseURL string
	http    *http.Client
}

func newClient() (*client, error) {
	base := serverURL
	if base == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		base = fmt.Sprintf("http://%s:%d", cfg.Web.Host, cfg.Web.Port)
	}
	return &client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type createJobPayload struct {
	RepoOwner        string `json:"repo_owner"`
	RepoName         string `json:"repo_name"`
	BaseBranch       string `json:"base_branch,omitempty"`
	WorkingBranch    string `json:"working_branch,omitempty"`
	RequestDocument  string `json:"request_document"`
	TaskList         string `json:"task_list,omitempty"`
	MaxCycles        int    `json:"max_cycles,omitempty"`
	TimeLimitMinutes int    `json:"time_limit_minutes,omitempty"`
	MaxParallelTasks int    `json:"max_parallel_tasks,omitempty"`
}

type jobView struct {
	ID            string    `json:"id"`
	RepoOwner     string    `json:"repo_owner"`
	RepoName      string    `json:"repo_name"`
	BaseBranch    string    `json:"base_branch"`
	WorkingBranch string    `json:"working_branch"`
	Status        string    `json:"status"`
	CurrentCycle  int       `json:"current_cycle"`
	MaxCycles     int       `json:"max_cycles"`
	LastError     string    `json:"last_error"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

type cycleView struct {
	CycleNumber     int    `json:"cycle_number"`
	Phase           string `json:"phase"`
	TasksDiscovered int    `json:"tasks_discovered"`
	TasksCompleted  int    `json:"tasks_completed"`
	TasksFailed     int    `json:"tasks_failed"`
	Summary         string `json:"summary"`
}

func (c *client) CreateJob(ctx context.Context, payload createJobPayload) (*jobView, error) {
	var job jobView
	if err := c.do(ctx, http.MethodPost, "/api/jobs/", "", payload, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *client) ListJobs(ctx context.Context, limit int) ([]jobView, error) {
	var out struct {
		Jobs []jobView `json:"jobs"`
	}
	path := fmt.Sprintf("/api/jobs/?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

func (c *client) GetJob(ctx context.Context, jobID string) (*jobView, []cycleView, error) {
	var out struct {
		Job    jobView     `json:"job"`
		Cycles []cycleView `json:"cycles"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+jobID+"/", "", nil, &out); err != nil {
		return nil, nil, err
	}
	return &out.Job, out.Cycles, nil
}

// Lifecycle issues one of the start/pause/resume/cancel actions
func (c *client) Lifecycle(ctx context.Context, jobID, action, credential string) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+jobID+"/"+action, credential, nil, nil)
}

// Watch streams the job's events to w until the context ends or the server
// closes the stream.
func (c *client) Watch(ctx context.Context, jobID string, w io.Writer) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/ws?job_id=" + jobID
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connecting to event stream: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Fprintln(w, string(msg))
	}
}

func (c *client) do(ctx context.Context, method, path, credential string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server: %s", apiErr.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo must be owner/name, got %q", repo)
	}
	return parts[0], parts[1], nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
