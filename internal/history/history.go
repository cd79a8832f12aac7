// Package history keeps a sqlite log of training runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spigell/cv-classifier/internal/training"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("training run not found")

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS training_runs (
    id TEXT PRIMARY KEY,
    family TEXT NOT NULL,
    algorithm TEXT,
    model_type TEXT NOT NULL,
    accuracy REAL NOT NULL,
    train_count INTEGER NOT NULL,
    test_count INTEGER NOT NULL,
    feature_count INTEGER NOT NULL,
    professions TEXT NOT NULL,
    degraded INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL,
    model_name TEXT,
    trained_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS training_runs_trained_at ON training_runs (trained_at);
`

// Run is one recorded training run.
type Run struct {
	ID           string        `json:"id" yaml:"id"`
	Family       string        `json:"family" yaml:"family"`
	Algorithm    string        `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	ModelType    string        `json:"model_type" yaml:"model_type"`
	Accuracy     float64       `json:"accuracy" yaml:"accuracy"`
	TrainCount   int           `json:"train_count" yaml:"train_count"`
	TestCount    int           `json:"test_count" yaml:"test_count"`
	FeatureCount int           `json:"feature_count" yaml:"feature_count"`
	Professions  []string      `json:"professions" yaml:"professions"`
	Degraded     bool          `json:"degraded" yaml:"degraded"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
	ModelName    string        `json:"model_name,omitempty" yaml:"model_name,omitempty"`
	TrainedAt    time.Time     `json:"trained_at" yaml:"trained_at"`
}

// FromReport converts a training report into a run record.
func FromReport(r *training.Report) Run {
	return Run{
		Family:       string(r.Family),
		Algorithm:    string(r.Algorithm),
		ModelType:    r.ModelType,
		Accuracy:     r.Accuracy,
		TrainCount:   r.TrainCount,
		TestCount:    r.TestCount,
		FeatureCount: r.FeatureCount,
		Professions:  r.Professions,
		Degraded:     r.Degraded,
		Duration:     r.Duration,
	}
}

// Store is a sqlite backed run log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores run, assigning its ID and timestamp.
func (s *Store) Record(ctx context.Context, run Run) (Run, error) {
	run.ID = uuid.NewString()
	if run.TrainedAt.IsZero() {
		run.TrainedAt = s.now()
	}
	professions, err := json.Marshal(run.Professions)
	if err != nil {
		return Run{}, fmt.Errorf("encode professions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO training_runs (id, family, algorithm, model_type, accuracy, train_count, test_count,
            feature_count, professions, degraded, duration_ms, model_name, trained_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Family, nullable(run.Algorithm), run.ModelType, run.Accuracy, run.TrainCount, run.TestCount,
		run.FeatureCount, string(professions), run.Degraded, run.Duration.Milliseconds(), nullable(run.ModelName),
		run.TrainedAt.UTC().Format(timeLayout))
	if err != nil {
		return Run{}, fmt.Errorf("record training run: %w", err)
	}
	return run, nil
}

// MarkSaved attaches the registry name a run was saved under.
func (s *Store) MarkSaved(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE training_runs SET model_name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("update training run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// List returns the most recent runs first. A non-positive limit returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, family, algorithm, model_type, accuracy, train_count, test_count,
               feature_count, professions, degraded, duration_ms, model_name, trained_at
        FROM training_runs
        ORDER BY trained_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query training runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                      Run
			algorithm, modelName   sql.NullString
			professions, trainedAt string
			durationMS             int64
		)
		if err := rows.Scan(&r.ID, &r.Family, &algorithm, &r.ModelType, &r.Accuracy, &r.TrainCount, &r.TestCount,
			&r.FeatureCount, &professions, &r.Degraded, &durationMS, &modelName, &trainedAt); err != nil {
			return nil, fmt.Errorf("scan training run: %w", err)
		}
		if err := json.Unmarshal([]byte(professions), &r.Professions); err != nil {
			return nil, fmt.Errorf("decode professions of run %s: %w", r.ID, err)
		}
		if r.TrainedAt, err = time.Parse(timeLayout, trainedAt); err != nil {
			return nil, fmt.Errorf("parse time of run %s: %w", r.ID, err)
		}
		r.Algorithm = algorithm.String
		r.ModelName = modelName.String
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
