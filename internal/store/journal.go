// Package store keeps an optional SQLite journal of runs and verdicts.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/tdh8316/handlescout/internal/check"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	platform   TEXT NOT NULL,
	total      INTEGER NOT NULL,
	processed  INTEGER NOT NULL DEFAULT 0,
	stop       TEXT NOT NULL DEFAULT 'running',
	started_at INTEGER NOT NULL,
	ended_at   INTEGER
);
CREATE TABLE IF NOT EXISTS verdicts (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	seq        INTEGER NOT NULL,
	candidate  TEXT NOT NULL,
	verdict    TEXT NOT NULL,
	category   TEXT NOT NULL,
	message    TEXT NOT NULL,
	checked_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS verdicts_candidate ON verdicts(candidate, verdict);
`

// Journal records every result line of every run it is attached to.
type Journal struct {
	db  *sql.DB
	log *logrus.Entry

	mu   sync.Mutex
	runs map[string]bool
}

// Open opens or creates the journal at path; ":memory:" works for tests.
func Open(path string, log *logrus.Entry) (*Journal, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "journal: mkdir")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "journal: open")
	}
	// One connection keeps ":memory:" a single database and serializes writes.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 10000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range append(pragmas, schema) {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "journal: init")
		}
	}
	return &Journal{db: db, log: log, runs: make(map[string]bool)}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Sink records events and passes them on to next. Write failures are logged
// and never reach the run.
func (j *Journal) Sink(next check.Sink) check.Sink {
	return func(ev check.Event) {
		if err := j.record(ev); err != nil {
			j.log.WithError(err).WithField("run_id", ev.RunID).Warn("journal write failed")
		}
		if next != nil {
			next(ev)
		}
	}
}

func (j *Journal) record(ev check.Event) error {
	if ev.RunID == "" {
		return nil
	}
	ctx := context.Background()
	if err := j.ensureRun(ctx, ev); err != nil {
		return err
	}

	switch ev.Kind {
	case check.EventResult:
		_, err := j.db.ExecContext(ctx,
			`INSERT INTO verdicts (run_id, seq, candidate, verdict, category, message, checked_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.RunID, ev.Progress, ev.Candidate, ev.Verdict.String(), string(ev.Category), ev.Message, ev.Time.UnixMilli())
		return errors.Wrap(err, "insert verdict")

	case check.EventDone:
		_, err := j.db.ExecContext(ctx,
			`UPDATE runs SET processed = ?, stop = ?, ended_at = ? WHERE id = ?`,
			ev.Progress, ev.Stop.String(), ev.Time.UnixMilli(), ev.RunID)
		return errors.Wrap(err, "finish run")
	}
	return nil
}

func (j *Journal) ensureRun(ctx context.Context, ev check.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.runs[ev.RunID] {
		return nil
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (id, platform, total, started_at) VALUES (?, ?, ?, ?)`,
		ev.RunID, ev.Platform, ev.Total, ev.Time.UnixMilli())
	if err != nil {
		return errors.Wrap(err, "insert run")
	}
	j.runs[ev.RunID] = true
	return nil
}

// Record is one journaled verdict.
type Record struct {
	Seq       int
	Candidate string
	Verdict   string
	Category  string
	Message   string
	CheckedAt time.Time
}

// Run is one journaled run.
type Run struct {
	ID        string
	Platform  string
	Total     int
	Processed int
	Stop      string
}

func (j *Journal) Run(ctx context.Context, id string) (Run, error) {
	var r Run
	err := j.db.QueryRowContext(ctx,
		`SELECT id, platform, total, processed, stop FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &r.Platform, &r.Total, &r.Processed, &r.Stop)
	if err != nil {
		return Run{}, errors.Wrapf(err, "run %s", id)
	}
	return r, nil
}

// Records lists a run's verdicts in progress order.
func (j *Journal) Records(ctx context.Context, runID string) ([]Record, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, candidate, verdict, category, message, checked_at FROM verdicts WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query verdicts")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var ms int64
		if err := rows.Scan(&r.Seq, &r.Candidate, &r.Verdict, &r.Category, &r.Message, &ms); err != nil {
			return nil, errors.Wrap(err, "scan verdict")
		}
		r.CheckedAt = time.UnixMilli(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Checked returns candidates that already have a terminal verdict (Available,
// Taken or Unclear) on platform from any earlier run.
func (j *Journal) Checked(ctx context.Context, platform string) (map[string]bool, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT DISTINCT v.candidate FROM verdicts v JOIN runs r ON r.id = v.run_id
		WHERE r.platform = ? AND v.verdict IN (?, ?, ?)`,
		platform, check.Available.String(), check.Taken.String(), check.Unclear.String())
	if err != nil {
		return nil, errors.Wrap(err, "query checked")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errors.Wrap(err, "scan candidate")
		}
		out[c] = true
	}
	return out, rows.Err()
}
