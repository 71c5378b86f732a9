// Package ledger keeps an SQLite index of search runs so past experiments can
// be listed and inspected without walking result directories.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/segmentgridgo/internal/objective"
	"github.com/specialistvlad/segmentgridgo/internal/search"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by Run for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS search_runs (
	run_id         TEXT PRIMARY KEY,
	started_at     TEXT NOT NULL,
	duration_ms    INTEGER NOT NULL,
	refit          TEXT NOT NULL,
	objectives     TEXT NOT NULL,
	folds          INTEGER NOT NULL,
	seed           INTEGER NOT NULL,
	configurations INTEGER NOT NULL,
	failed         INTEGER NOT NULL,
	best_params    TEXT,
	best_score     REAL,
	run_dir        TEXT
);

CREATE TABLE IF NOT EXISTS search_scores (
	run_id      TEXT NOT NULL,
	config      INTEGER NOT NULL,
	rank        INTEGER NOT NULL,
	params      TEXT NOT NULL,
	objective   TEXT NOT NULL,
	mean        REAL,
	std         REAL,
	valid_folds INTEGER NOT NULL,
	PRIMARY KEY (run_id, config, objective),
	FOREIGN KEY (run_id) REFERENCES search_runs(run_id)
);

CREATE TABLE IF NOT EXISTS search_failures (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    TEXT NOT NULL,
	config    INTEGER NOT NULL,
	params    TEXT NOT NULL,
	fold      INTEGER NOT NULL,
	objective TEXT,
	error     TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES search_runs(run_id)
);
`

// timeLayout has a fixed width so started_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// Ledger is an SQLite-backed run index.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at path and runs migrations.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record stores a finished run and every configuration score in a single
// transaction.
func (l *Ledger) Record(ctx context.Context, res *search.Result, runDir string) error {
	if res.RunID == "" {
		return errors.New("record: run id is empty")
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var bestParams, bestScore any
	if res.Best != nil {
		bestParams = res.Best.Params.String()
		bestScore = nullable(res.BestScore())
	}
	objectives := make([]string, len(res.Objectives))
	for i, o := range res.Objectives {
		objectives[i] = string(o)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO search_runs (run_id, started_at, duration_ms, refit, objectives, folds, seed,
			configurations, failed, best_params, best_score, run_dir)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.StartedAt.UTC().Format(timeLayout), res.Duration.Milliseconds(),
		string(res.Refit), strings.Join(objectives, ","), res.Folds, res.Seed,
		len(res.Rows)+len(res.Failed), len(res.Failed), bestParams, bestScore, runDir,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, row := range res.Rows {
		params, err := json.Marshal(row.Params.Values())
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		for _, obj := range res.Objectives {
			s := row.Scores[obj]
			_, err = tx.ExecContext(ctx,
				`INSERT INTO search_scores (run_id, config, rank, params, objective, mean, std, valid_folds)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				res.RunID, row.Config, row.Rank, string(params), string(obj), nullable(s.Mean), nullable(s.Std), s.ValidFolds,
			)
			if err != nil {
				return fmt.Errorf("insert score: %w", err)
			}
		}
	}

	for _, f := range res.Failed {
		params, err := json.Marshal(f.Params.Values())
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		for _, e := range f.Errors {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO search_failures (run_id, config, params, fold, objective, error)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				res.RunID, f.Config, string(params), e.Fold, string(e.Objective), e.Err.Error(),
			)
			if err != nil {
				return fmt.Errorf("insert failure: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RunSummary is one row of the run index.
type RunSummary struct {
	RunID          string
	StartedAt      time.Time
	Duration       time.Duration
	Refit          objective.Name
	Objectives     []objective.Name
	Folds          int
	Seed           int64
	Configurations int
	Failed         int
	BestParams     string
	BestScore      float64 // NaN when no configuration succeeded
	RunDir         string
}

// ScoreRecord is one (configuration, objective) aggregate.
type ScoreRecord struct {
	Config     int
	Rank       int
	Params     map[string]string
	Objective  objective.Name
	Mean       float64
	Std        float64
	ValidFolds int
}

// FailureRecord is one recorded unit error of a failed configuration.
type FailureRecord struct {
	Config    int
	Params    map[string]string
	Fold      int
	Objective objective.Name
	Error     string
}

// RunDetail is a run with its scores and failures.
type RunDetail struct {
	RunSummary
	Scores   []ScoreRecord // by rank, then objective order of insertion
	Failures []FailureRecord
}

const runColumns = `run_id, started_at, duration_ms, refit, objectives, folds, seed,
	configurations, failed, best_params, best_score, run_dir`

// Runs lists the most recent runs first. A limit <= 0 lists all runs.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	q := `SELECT ` + runColumns + ` FROM search_runs ORDER BY started_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Run returns one run with its scores and failures.
func (l *Ledger) Run(ctx context.Context, runID string) (*RunDetail, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM search_runs WHERE run_id = ?`, runID)
	summary, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	d := &RunDetail{RunSummary: summary}

	rows, err := l.db.QueryContext(ctx,
		`SELECT config, rank, params, objective, mean, std, valid_folds
		 FROM search_scores WHERE run_id = ? ORDER BY rank, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec ScoreRecord
		var params, obj string
		var mean, std sql.NullFloat64
		if err := rows.Scan(&rec.Config, &rec.Rank, &params, &obj, &mean, &std, &rec.ValidFolds); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
		rec.Objective = objective.Name(obj)
		rec.Mean, rec.Std = fromNullable(mean), fromNullable(std)
		d.Scores = append(d.Scores, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	frows, err := l.db.QueryContext(ctx,
		`SELECT config, params, fold, objective, error FROM search_failures WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer frows.Close()
	for frows.Next() {
		var rec FailureRecord
		var params, obj string
		if err := frows.Scan(&rec.Config, &params, &rec.Fold, &obj, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
		rec.Objective = objective.Name(obj)
		d.Failures = append(d.Failures, rec)
	}
	return d, frows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunSummary, error) {
	var s RunSummary
	var started, refit, objectives string
	var durationMs int64
	var bestParams, runDir sql.NullString
	var bestScore sql.NullFloat64
	err := sc.Scan(&s.RunID, &started, &durationMs, &refit, &objectives, &s.Folds, &s.Seed,
		&s.Configurations, &s.Failed, &bestParams, &bestScore, &runDir)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, err
		}
		return s, fmt.Errorf("scan run: %w", err)
	}
	if s.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return s, fmt.Errorf("parse started_at: %w", err)
	}
	s.Duration = time.Duration(durationMs) * time.Millisecond
	s.Refit = objective.Name(refit)
	for _, o := range strings.Split(objectives, ",") {
		if o != "" {
			s.Objectives = append(s.Objectives, objective.Name(o))
		}
	}
	s.BestParams = bestParams.String
	s.BestScore = fromNullable(bestScore)
	s.RunDir = runDir.String
	return s, nil
}

// nullable maps NaN to SQL NULL.
func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
