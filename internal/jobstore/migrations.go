package jobstore

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    repo_owner TEXT NOT NULL,
    repo_name TEXT NOT NULL,
    base_branch TEXT NOT NULL,
    working_branch TEXT NOT NULL,
    session_path TEXT NOT NULL,
    request_document TEXT NOT NULL,
    task_list TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    provider TEXT,
    current_cycle INTEGER NOT NULL DEFAULT 0,
    max_cycles INTEGER NOT NULL DEFAULT 0,
    time_limit_minutes INTEGER NOT NULL DEFAULT 0,
    max_parallel_tasks INTEGER NOT NULL DEFAULT 3,
    last_error TEXT,
    error_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    started_at TIMESTAMP,
    completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs(owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

CREATE TABLE IF NOT EXISTS cycles (
    id TEXT PRIMARY KEY,
    job_id TEXT NOT NULL REFERENCES jobs(id),
    cycle_number INTEGER NOT NULL,
    phase TEXT NOT NULL DEFAULT 'discovery',
    tasks_discovered INTEGER NOT NULL DEFAULT 0,
    tasks_launched INTEGER NOT NULL DEFAULT 0,
    tasks_completed INTEGER NOT NULL DEFAULT 0,
    tasks_failed INTEGER NOT NULL DEFAULT 0,
    summary TEXT,
    created_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    UNIQUE(job_id, cycle_number)
);

CREATE INDEX IF NOT EXISTS idx_cycles_job ON cycles(job_id, cycle_number);

CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    cycle_id TEXT NOT NULL REFERENCES cycles(id),
    job_id TEXT NOT NULL REFERENCES jobs(id),
    task_number INTEGER NOT NULL,
    description TEXT NOT NULL,
    context TEXT,
    priority TEXT,
    can_run_parallel BOOLEAN NOT NULL DEFAULT TRUE,
    status TEXT NOT NULL DEFAULT 'pending',
    result_summary TEXT,
    error_message TEXT,
    retry_count INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP,
    completed_at TIMESTAMP,
    UNIQUE(cycle_id, task_number)
);

CREATE INDEX IF NOT EXISTS idx_tasks_cycle ON tasks(cycle_id, task_number);
CREATE INDEX IF NOT EXISTS idx_tasks_job ON tasks(job_id);
`
