// Package runstore keeps a SQLite ledger of review runs, their batch
// outcomes and merged dimension scores.
package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hochfrequenz/qualscan/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run ID is unknown
var ErrNotFound = errors.New("run not found")

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

// RunRecord is one review run
type RunRecord struct {
	ID              string
	PacketPath      string
	RunDir          string
	Selection       string
	Status          domain.RunStatus
	BatchesSelected int
	BatchesFailed   int
	Findings        int
	StartedAt       time.Time
	FinishedAt      *time.Time
	Batches         []BatchRecord // only filled by GetRun
	Scores          []ScoreRecord // only filled by GetRun
}

// BatchRecord is the outcome of one batch in a run
type BatchRecord struct {
	Number   int
	Name     string
	Status   domain.BatchStatus
	ExitCode int
	Elapsed  time.Duration
	Category string // failure category, empty on success
}

// ScoreRecord is one merged dimension score
type ScoreRecord struct {
	Dimension    string
	Score        float64
	WeightedMean float64
	Floor        float64
	Pressure     float64
	FindingCount int
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun inserts or replaces a run together with its batches and scores
func (s *Store) RecordRun(run *RunRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var finished sql.NullTime
	if run.FinishedAt != nil {
		finished = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}

	_, err = tx.Exec(`
		INSERT INTO runs (id, packet_path, run_dir, selection, status, batches_selected, batches_failed, findings, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			batches_selected = excluded.batches_selected,
			batches_failed = excluded.batches_failed,
			findings = excluded.findings,
			finished_at = excluded.finished_at
	`,
		run.ID,
		run.PacketPath,
		run.RunDir,
		run.Selection,
		string(run.Status),
		run.BatchesSelected,
		run.BatchesFailed,
		run.Findings,
		run.StartedAt,
		finished,
	)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM batch_outcomes WHERE run_id = ?`, run.ID); err != nil {
		return err
	}
	for _, b := range run.Batches {
		_, err := tx.Exec(`
			INSERT INTO batch_outcomes (run_id, batch, name, status, exit_code, elapsed_ms, category)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ID, b.Number, b.Name, string(b.Status), b.ExitCode, b.Elapsed.Milliseconds(), b.Category)
		if err != nil {
			return fmt.Errorf("saving batch %d: %w", b.Number, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM dimension_scores WHERE run_id = ?`, run.ID); err != nil {
		return err
	}
	for _, sc := range run.Scores {
		_, err := tx.Exec(`
			INSERT INTO dimension_scores (run_id, dimension, score, weighted_mean, floor, pressure, finding_count)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ID, sc.Dimension, sc.Score, sc.WeightedMean, sc.Floor, sc.Pressure, sc.FindingCount)
		if err != nil {
			return fmt.Errorf("saving score %s: %w", sc.Dimension, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, packet_path, run_dir, selection, status, batches_selected, batches_failed, findings, started_at, finished_at`

// ListRuns returns the most recent runs first, without batches or scores
func (s *Store) ListRuns(limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun retrieves a run with its batch outcomes and scores
func (s *Store) GetRun(id string) (*RunRecord, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT batch, name, status, exit_code, elapsed_ms, category
		FROM batch_outcomes WHERE run_id = ? ORDER BY batch
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var b BatchRecord
		var status string
		var elapsedMS int64
		var name, category sql.NullString
		if err := rows.Scan(&b.Number, &name, &status, &b.ExitCode, &elapsedMS, &category); err != nil {
			return nil, err
		}
		b.Name = name.String
		b.Status = domain.BatchStatus(status)
		b.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		b.Category = category.String
		run.Batches = append(run.Batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	scoreRows, err := s.db.Query(`
		SELECT dimension, score, weighted_mean, floor, pressure, finding_count
		FROM dimension_scores WHERE run_id = ? ORDER BY dimension
	`, id)
	if err != nil {
		return nil, err
	}
	defer scoreRows.Close()
	for scoreRows.Next() {
		var sc ScoreRecord
		if err := scoreRows.Scan(&sc.Dimension, &sc.Score, &sc.WeightedMean, &sc.Floor, &sc.Pressure, &sc.FindingCount); err != nil {
			return nil, err
		}
		run.Scores = append(run.Scores, sc)
	}
	return run, scoreRows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var run RunRecord
	var status string
	var selection sql.NullString
	var finished sql.NullTime

	err := row.Scan(&run.ID, &run.PacketPath, &run.RunDir, &selection, &status,
		&run.BatchesSelected, &run.BatchesFailed, &run.Findings, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	run.Selection = selection.String
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}
