package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orbitworks/orbit/internal/domain"
	"github.com/orbitworks/orbit/internal/orchestrator"
)

type jobJSON struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id"`
	RepoOwner        string     `json:"repo_owner"`
	RepoName         string     `json:"repo_name"`
	BaseBranch       string     `json:"base_branch"`
	WorkingBranch    string     `json:"working_branch"`
	SessionPath      string     `json:"session_path"`
	RequestDocument  string     `json:"request_document"`
	TaskList         string     `json:"task_list"`
	Status           string     `json:"status"`
	Provider         string     `json:"provider,omitempty"`
	CurrentCycle     int        `json:"current_cycle"`
	MaxCycles        int        `json:"max_cycles"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	MaxParallelTasks int        `json:"max_parallel_tasks"`
	LastError        string     `json:"last_error,omitempty"`
	ErrorCount       int        `json:"error_count"`
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

type cycleJSON struct {
	ID              string     `json:"id"`
	JobID           string     `json:"job_id"`
	CycleNumber     int        `json:"cycle_number"`
	Phase           string     `json:"phase"`
	TasksDiscovered int        `json:"tasks_discovered"`
	TasksLaunched   int        `json:"tasks_launched"`
	TasksCompleted  int        `json:"tasks_completed"`
	TasksFailed     int        `json:"tasks_failed"`
	Summary         string     `json:"summary,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

type taskJSON struct {
	ID             string     `json:"id"`
	CycleID        string     `json:"cycle_id"`
	TaskNumber     int        `json:"task_number"`
	Description    string     `json:"description"`
	Context        string     `json:"context,omitempty"`
	Priority       string     `json:"priority,omitempty"`
	CanRunParallel bool       `json:"can_run_parallel"`
	Status         string     `json:"status"`
	ResultSummary  string     `json:"result_summary,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func (s *Server) jobToJSON(j *domain.Job) jobJSON {
	return jobJSON{
		ID:               j.ID,
		OwnerID:          j.OwnerID,
		RepoOwner:        j.RepoOwner,
		RepoName:         j.RepoName,
		BaseBranch:       j.BaseBranch,
		WorkingBranch:    j.WorkingBranch,
		SessionPath:      j.SessionPath,
		RequestDocument:  j.RequestDocument,
		TaskList:         j.TaskList,
		Status:           string(j.Status),
		Provider:         j.Provider,
		CurrentCycle:     j.CurrentCycle,
		MaxCycles:        j.MaxCycles,
		TimeLimitMinutes: j.TimeLimitMinutes,
		MaxParallelTasks: j.MaxParallelTasks,
		LastError:        j.LastError,
		ErrorCount:       j.ErrorCount,
		Active:           s.manager.IsActive(j.ID),
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
	}
}

func cycleToJSON(c *domain.Cycle) cycleJSON {
	return cycleJSON{
		ID:              c.ID,
		JobID:           c.JobID,
		CycleNumber:     c.CycleNumber,
		Phase:           string(c.Phase),
		TasksDiscovered: c.TasksDiscovered,
		TasksLaunched:   c.TasksLaunched,
		TasksCompleted:  c.TasksCompleted,
		TasksFailed:     c.TasksFailed,
		Summary:         c.Summary,
		CreatedAt:       c.CreatedAt,
		CompletedAt:     c.CompletedAt,
	}
}

func taskToJSON(t *domain.Task) taskJSON {
	return taskJSON{
		ID:             t.ID,
		CycleID:        t.CycleID,
		TaskNumber:     t.TaskNumber,
		Description:    t.Description,
		Context:        t.Context,
		Priority:       string(t.Priority),
		CanRunParallel: t.CanRunParallel,
		Status:         string(t.Status),
		ResultSummary:  t.ResultSummary,
		ErrorMessage:   t.ErrorMessage,
		StartedAt:      t.StartedAt,
		CompletedAt:    t.CompletedAt,
	}
}

type createJobRequest struct {
	RepoOwner        string `json:"repo_owner"`
	RepoName         string `json:"repo_name"`
	BaseBranch       string `json:"base_branch"`
	WorkingBranch    string `json:"working_branch"`
	RequestDocument  string `json:"request_document"`
	TaskList         string `json:"task_list"`
	Provider         string `json:"provider"`
	MaxCycles        int    `json:"max_cycles"`
	TimeLimitMinutes int    `json:"time_limit_minutes"`
	MaxParallelTasks int    `json:"max_parallel_tasks"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job, err := s.manager.CreateJob(r.Context(), ownerID(r), orchestrator.CreateJobParams{
		RepoOwner:        req.RepoOwner,
		RepoName:         req.RepoName,
		BaseBranch:       req.BaseBranch,
		WorkingBranch:    req.WorkingBranch,
		RequestDocument:  req.RequestDocument,
		TaskList:         req.TaskList,
		Provider:         req.Provider,
		MaxCycles:        req.MaxCycles,
		TimeLimitMinutes: req.TimeLimitMinutes,
		MaxParallelTasks: req.MaxParallelTasks,
	})
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.jobToJSON(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	jobs, err := s.manager.ListJobs(r.Context(), ownerID(r), limit)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}

	out := make([]jobJSON, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, s.jobToJSON(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, cycles, err := s.manager.GetJobWithCycles(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeLifecycleError(w, err)
		return
	}

	cyclesOut := make([]cycleJSON, 0, len(cycles))
	for _, c := range cycles {
		cyclesOut = append(cyclesOut, cycleToJSON(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job":    s.jobToJSON(job),
		"cycles": cyclesOut,
	})
}

func (s *Server) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	cycle, tasks, err := s.manager.GetCycleWithTasks(r.Context(), chi.URLParam(r, "cycleID"))
	if err != nil {
		writeLifecycleError(w, err)
		return
	}

	tasksOut := make([]taskJSON, 0, len(tasks))
	for _, t := range tasks {
		tasksOut = append(tasksOut, taskToJSON(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cycle": cycleToJSON(cycle),
		"tasks": tasksOut,
	})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.manager.StartJob(r.Context(), jobID, credentialFrom(r)); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "job_id": jobID})
}

func (s *Server) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.manager.PauseJob(r.Context(), jobID); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused", "job_id": jobID})
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.manager.ResumeJob(r.Context(), jobID, credentialFrom(r)); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "resumed", "job_id": jobID})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.manager.CancelJob(r.Context(), jobID); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "job_id": jobID})
}

type documentRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleUpdateRequestDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.manager.UpdateRequestDocument(r.Context(), chi.URLParam(r, "jobID"), req.Content); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleUpdateTaskList(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.manager.UpdateTaskList(r.Context(), chi.URLParam(r, "jobID"), req.Content); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active_sessions": s.hub.ActiveSessions(),
	})
}
