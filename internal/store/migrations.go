package store

import "database/sql"

// schema creates every table Terminal Coder persists, idempotently. Modeled
// on the teacher's versioned CREATE TABLE IF NOT EXISTS migration style
// (internal/store/migrations.go in the teacher repo), collapsed to a single
// step since this schema has no prior released version to migrate from.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL,
	root    TEXT NOT NULL,
	status  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS phases (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL REFERENCES projects(id),
	sequence    INTEGER NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	UNIQUE(project_id, sequence)
);

CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT PRIMARY KEY,
	phase_id      TEXT NOT NULL REFERENCES phases(id),
	sequence      INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	name          TEXT NOT NULL,
	brief_ref     TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	error_context TEXT NOT NULL DEFAULT '',
	UNIQUE(phase_id, sequence)
);

CREATE TABLE IF NOT EXISTS task_dependencies (
	task_id       TEXT NOT NULL REFERENCES tasks(id),
	depends_on_id TEXT NOT NULL REFERENCES tasks(id),
	PRIMARY KEY (task_id, depends_on_id)
);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL REFERENCES tasks(id),
	pane       INTEGER NOT NULL,
	process_id INTEGER NOT NULL,
	started_at DATETIME NOT NULL,
	ended_at   DATETIME,
	exit_code  INTEGER,
	status     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_task ON sessions(task_id);

CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at DATETIME NOT NULL,
	kind       TEXT NOT NULL,
	subject    TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_events_subject ON events(subject);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);

CREATE TABLE IF NOT EXISTS requirements (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL REFERENCES projects(id),
	description TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS requirement_coverage (
	requirement_id TEXT NOT NULL REFERENCES requirements(id),
	task_id        TEXT NOT NULL REFERENCES tasks(id),
	PRIMARY KEY (requirement_id, task_id)
);

CREATE TABLE IF NOT EXISTS session_tokens (
	token      TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	task_id    TEXT NOT NULL REFERENCES tasks(id)
);
`

func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
