package runstore

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    packet_path TEXT NOT NULL,
    run_dir TEXT NOT NULL,
    selection TEXT,
    status TEXT NOT NULL,
    batches_selected INTEGER NOT NULL DEFAULT 0,
    batches_failed INTEGER NOT NULL DEFAULT 0,
    findings INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS batch_outcomes (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    batch INTEGER NOT NULL,
    name TEXT,
    status TEXT NOT NULL,
    exit_code INTEGER,
    elapsed_ms INTEGER,
    category TEXT,
    PRIMARY KEY (run_id, batch)
);

CREATE TABLE IF NOT EXISTS dimension_scores (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    dimension TEXT NOT NULL,
    score REAL NOT NULL,
    weighted_mean REAL,
    floor REAL,
    pressure REAL,
    finding_count INTEGER,
    PRIMARY KEY (run_id, dimension)
);
`
