// Package executor provides the default task executors: one that shells out
// to an external agent command per task, and a scripted one for dry runs.
package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/orbitworks/orbit/internal/domain"
	"github.com/orbitworks/orbit/internal/events"
	"github.com/orbitworks/orbit/internal/orchestrator"
)

const (
	logDirName           = ".orbit"
	defaultTailSize      = 20
	defaultProgressLines = 25
)

// Command runs one external process per task. The process gets the task as
// its prompt argument and the job metadata through ORBIT_* environment
// variables; its combined output is streamed to a per-task log file under
// the session workspace.
type Command struct {
	// Binary is the program to run, e.g. an agent CLI.
	Binary string
	// Args are prepended before the prompt argument.
	Args []string
	// SessionRoot is the directory holding per-job workspaces. The working
	// directory for a task is SessionRoot joined with the job's session path.
	SessionRoot string
	// Timeout bounds a single task. Zero means no per-task limit.
	Timeout time.Duration
	// TailLines is how many trailing output lines form the result summary.
	TailLines int
	// Events, when set, receives a task_progress event as output accumulates.
	Events events.Broadcaster
	// ProgressEvery is the line interval between progress events.
	ProgressEvery int

	Logger *slog.Logger
}

func (c *Command) Execute(ctx context.Context, job *domain.Job, task *domain.Task) (string, error) {
	if c.Binary == "" {
		return "", fmt.Errorf("no executor binary configured")
	}

	workDir := filepath.Join(c.SessionRoot, filepath.FromSlash(job.SessionPath))
	if err := os.MkdirAll(filepath.Join(workDir, logDirName), 0o755); err != nil {
		return "", fmt.Errorf("creating session workspace: %w", err)
	}

	logPath := filepath.Join(workDir, logDirName, fmt.Sprintf("task-%03d.log", task.TaskNumber))
	logFile, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("creating log file: %w", err)
	}
	defer logFile.Close()

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, c.Args...), c.prompt(job, task))
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Dir = workDir
	cmd.Env = c.environment(job, task, orchestrator.CredentialFromContext(ctx))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("starting %s: %w", c.Binary, err)
	}
	if c.Logger != nil {
		c.Logger.Debug("task process started", "job_id", job.ID, "task", task.TaskNumber, "pid", cmd.Process.Pid, "log", logPath)
	}

	tail := c.streamOutput(job, task, stdout, logFile)
	waitErr := cmd.Wait()

	summary := strings.Join(tail, "\n")
	if waitErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("task timed out after %s", c.Timeout)
		}
		if summary != "" {
			return "", fmt.Errorf("%s: %w: %s", c.Binary, waitErr, lastLine(tail))
		}
		return "", fmt.Errorf("%s: %w", c.Binary, waitErr)
	}
	return summary, nil
}

func (c *Command) prompt(job *domain.Job, task *domain.Task) string {
	var b strings.Builder
	b.WriteString("Goal:\n")
	b.WriteString(job.RequestDocument)
	b.WriteString("\n\nTask:\n")
	b.WriteString(task.Description)
	if task.Context != "" {
		b.WriteString("\n\nContext:\n")
		b.WriteString(task.Context)
	}
	return b.String()
}

func (c *Command) environment(job *domain.Job, task *domain.Task, credential string) []string {
	env := append(os.Environ(),
		"ORBIT_JOB_ID="+job.ID,
		"ORBIT_TASK_ID="+task.ID,
		"ORBIT_TASK_NUMBER="+strconv.Itoa(task.TaskNumber),
		"ORBIT_CYCLE_ID="+task.CycleID,
		"ORBIT_REPO="+job.RepoOwner+"/"+job.RepoName,
		"ORBIT_BASE_BRANCH="+job.BaseBranch,
		"ORBIT_WORKING_BRANCH="+job.WorkingBranch,
	)
	if credential != "" {
		env = append(env, "ORBIT_TOKEN="+credential)
	}
	return env
}

// streamOutput copies process output to the log file line by line, keeps the
// trailing lines as the result summary, and reports progress every
// ProgressEvery lines when an event sink is configured.
func (c *Command) streamOutput(job *domain.Job, task *domain.Task, r io.Reader, logFile *os.File) []string {
	keep := c.TailLines
	if keep <= 0 {
		keep = defaultTailSize
	}
	every := c.ProgressEvery
	if every <= 0 {
		every = defaultProgressLines
	}

	var tail []string
	lines := 0
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		logFile.WriteString(line + "\n")
		tail = append(tail, line)
		if len(tail) > keep {
			tail = tail[1:]
		}
		lines++
		if c.Events != nil && lines%every == 0 {
			c.Events.Publish(events.New(events.TaskProgress, job.ID, map[string]any{
				"task_id":     task.ID,
				"task_number": task.TaskNumber,
				"lines":       lines,
				"last_line":   line,
			}))
		}
	}
	logFile.Sync()
	return tail
}

func lastLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}
