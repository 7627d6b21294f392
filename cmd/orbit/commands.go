package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/orbitworks/orbit/internal/config"
	"github.com/orbitworks/orbit/internal/events"
	"github.com/orbitworks/orbit/internal/executor"
	"github.com/orbitworks/orbit/internal/janitor"
	"github.com/orbitworks/orbit/internal/jobstore"
	"github.com/orbitworks/orbit/internal/logging"
	"github.com/orbitworks/orbit/internal/notify"
	"github.com/orbitworks/orbit/internal/orchestrator"
	"github.com/orbitworks/orbit/internal/plan"
	"github.com/orbitworks/orbit/web/api"
)

var (
	createRepo          string
	createBaseBranch    string
	createBranch        string
	createRequestFile   string
	createTaskListFile  string
	createMaxCycles     int
	createTimeLimit     int
	createMaxParallel   int
	listLimit           int
	startCredentialEnv  string
	janitorCronSchedule string
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orbit daemon",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&janitorCronSchedule, "janitor-cron", "*/10 * * * *", "cron schedule for the stale job sweep")
	rootCmd.AddCommand(serveCmd)

	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Manage jobs on a running orbit server",
	}
	rootCmd.AddCommand(jobCmd)

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new job",
		RunE:  runJobCreate,
	}
	createCmd.Flags().StringVar(&createRepo, "repo", "", "target repository as owner/name (required)")
	createCmd.Flags().StringVar(&createBaseBranch, "base", "", "base branch (default main)")
	createCmd.Flags().StringVar(&createBranch, "branch", "", "working branch (generated when empty)")
	createCmd.Flags().StringVar(&createRequestFile, "request", "", "path to the request document (required)")
	createCmd.Flags().StringVar(&createTaskListFile, "tasks", "", "path to the initial task list")
	createCmd.Flags().IntVar(&createMaxCycles, "max-cycles", 0, "maximum number of cycles, 0 = unlimited")
	createCmd.Flags().IntVar(&createTimeLimit, "time-limit", 0, "time limit in minutes, 0 = unlimited")
	createCmd.Flags().IntVar(&createMaxParallel, "max-parallel", 0, "parallel task cap per batch")
	createCmd.MarkFlagRequired("repo")
	createCmd.MarkFlagRequired("request")
	jobCmd.AddCommand(createCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE:  runJobList,
	}
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum jobs to list")
	jobCmd.AddCommand(listCmd)

	showCmd := &cobra.Command{
		Use:   "show JOB",
		Short: "Show a job and its cycles",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobShow,
	}
	jobCmd.AddCommand(showCmd)

	startCmd := &cobra.Command{
		Use:   "start JOB",
		Short: "Start a pending or paused job",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobStart,
	}
	startCmd.Flags().StringVar(&startCredentialEnv, "credential-env", "ORBIT_TOKEN", "environment variable holding the execution credential")
	jobCmd.AddCommand(startCmd)

	jobCmd.AddCommand(&cobra.Command{
		Use:   "pause JOB",
		Short: "Pause a running job at the next phase boundary",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobPause,
	})
	jobCmd.AddCommand(&cobra.Command{
		Use:   "resume JOB",
		Short: "Resume a paused job",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobResume,
	})
	jobCmd.AddCommand(&cobra.Command{
		Use:   "cancel JOB",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobCancel,
	})
	jobCmd.AddCommand(&cobra.Command{
		Use:   "watch JOB",
		Short: "Stream a job's events",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobWatch,
	})
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.New(logging.ParseLevel(cfg.General.LogLevel), cfg.General.LogFormat)

	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	store, err := jobstore.New(cfg.General.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening job store: %w", err)
	}
	defer store.Close()

	hub := events.NewHub(logger)
	registry := orchestrator.NewRegistry()

	exec := &executor.Command{
		Binary:      cfg.Executor.Binary,
		Args:        cfg.Executor.Args,
		SessionRoot: cfg.General.SessionRoot,
		Timeout:     cfg.ExecutorTimeout(),
		TailLines:   cfg.Executor.TailLines,
		Events:      hub,
		Logger:      logger,
	}

	manager := orchestrator.NewManager(store, &plan.Discoverer{}, exec, plan.Summarizer{}, hub, registry, logger)
	manager.SetCycleDelay(cfg.CycleDelay())
	manager.SetDefaultMaxParallel(cfg.Jobs.MaxParallelTasks)

	// Slack notifications ride on the event stream.
	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Notifications.SlackWebhook != "" {
		notifier = notify.NewSlackNotifier(cfg.Notifications.SlackWebhook)
	}
	relay := notify.NewRelay(hub, notifier, logger)
	relay.Start()
	defer relay.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jan := janitor.New(store, registry, time.Duration(cfg.Jobs.StaleAfterMinutes)*time.Minute, logger)
	if err := jan.Start(ctx, janitorCronSchedule); err != nil {
		return fmt.Errorf("starting janitor: %w", err)
	}
	defer jan.Stop()

	// Hot-reload tunables that are safe to change mid-flight.
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	if watcher, err := config.NewWatcher(cfgPath, func(next *config.Config) {
		manager.SetCycleDelay(next.CycleDelay())
		manager.SetDefaultMaxParallel(next.Jobs.MaxParallelTasks)
	}, logger); err == nil {
		watcher.Start(ctx)
		defer watcher.Stop()
	} else {
		logger.Warn("config watching disabled", "error", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := api.NewServer(manager, hub, addr, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runJobCreate(cmd *cobra.Command, args []string) error {
	repoOwner, repoName, err := splitRepo(createRepo)
	if err != nil {
		return err
	}

	requestDoc, err := os.ReadFile(createRequestFile)
	if err != nil {
		return fmt.Errorf("reading request document: %w", err)
	}
	var taskList []byte
	if createTaskListFile != "" {
		taskList, err = os.ReadFile(createTaskListFile)
		if err != nil {
			return fmt.Errorf("reading task list: %w", err)
		}
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	job, err := client.CreateJob(cmd.Context(), createJobPayload{
		RepoOwner:        repoOwner,
		RepoName:         repoName,
		BaseBranch:       createBaseBranch,
		WorkingBranch:    createBranch,
		RequestDocument:  string(requestDoc),
		TaskList:         string(taskList),
		MaxCycles:        createMaxCycles,
		TimeLimitMinutes: createTimeLimit,
		MaxParallelTasks: createMaxParallel,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created job %s on %s/%s (%s)\n", job.ID, job.RepoOwner, job.RepoName, job.WorkingBranch)
	return nil
}

func runJobList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	jobs, err := client.ListJobs(cmd.Context(), listLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREPO\tBRANCH\tSTATUS\tCYCLE\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s/%s\t%s\t%s\t%d\t%s\n",
			shortID(j.ID), j.RepoOwner, j.RepoName, j.WorkingBranch,
			j.Status, j.CurrentCycle, j.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runJobShow(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	job, cycles, err := client.GetJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Job:      %s\n", job.ID)
	fmt.Printf("Repo:     %s/%s (%s -> %s)\n", job.RepoOwner, job.RepoName, job.BaseBranch, job.WorkingBranch)
	fmt.Printf("Status:   %s", job.Status)
	if job.Active {
		fmt.Printf(" (active)")
	}
	fmt.Println()
	fmt.Printf("Cycles:   %d", job.CurrentCycle)
	if job.MaxCycles > 0 {
		fmt.Printf(" / %d", job.MaxCycles)
	}
	fmt.Println()
	if job.LastError != "" {
		fmt.Printf("Error:    %s\n", job.LastError)
	}

	if len(cycles) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CYCLE\tPHASE\tDISCOVERED\tCOMPLETED\tFAILED\tSUMMARY")
		for _, c := range cycles {
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\n",
				c.CycleNumber, c.Phase, c.TasksDiscovered, c.TasksCompleted, c.TasksFailed, firstLine(c.Summary))
		}
		w.Flush()
	}
	return nil
}

func runJobStart(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	if err := client.Lifecycle(cmd.Context(), args[0], "start", os.Getenv(startCredentialEnv)); err != nil {
		return err
	}
	fmt.Printf("Started job %s\n", args[0])
	return nil
}

func runJobPause(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	if err := client.Lifecycle(cmd.Context(), args[0], "pause", ""); err != nil {
		return err
	}
	fmt.Printf("Paused job %s\n", args[0])
	return nil
}

func runJobResume(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	if err := client.Lifecycle(cmd.Context(), args[0], "resume", os.Getenv(startCredentialEnv)); err != nil {
		return err
	}
	fmt.Printf("Resumed job %s\n", args[0])
	return nil
}

func runJobCancel(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	if err := client.Lifecycle(cmd.Context(), args[0], "cancel", ""); err != nil {
		return err
	}
	fmt.Printf("Cancelled job %s\n", args[0])
	return nil
}

func runJobWatch(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return client.Watch(cmd.Context(), args[0], os.Stdout)
}
