// Package history persists analysis runs in sqlite. Each run keeps its
// summary counts in columns and its issues as msgpack payloads.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

var _ ports.HistoryStore = (*Store)(nil)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

// Open creates or opens the store at path. A zero busyTimeout uses 2s.
func Open(path string, busyTimeout ...time.Duration) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	busy := 2 * time.Second
	if len(busyTimeout) > 0 && busyTimeout[0] > 0 {
		busy = busyTimeout[0]
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath, busy.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun stores run and its issues in one transaction and returns the run id.
func (s *Store) SaveRun(run ports.HistoryRun, issues []issue.Issue) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := strings.TrimSpace(run.FilePath)
	if filePath == "" {
		filePath = issue.BufferPath
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now().UTC()
	}
	if run.IssueCount == 0 {
		run.IssueCount = len(issues)
	}

	payloads := make([][]byte, len(issues))
	for i, is := range issues {
		blob, err := msgpack.Marshal(is)
		if err != nil {
			return 0, fmt.Errorf("encode issue %s: %w", is.ID, err)
		}
		payloads[i] = blob
	}

	var id int64
	err := s.withRetry("save run", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		res, err := tx.Exec(`
INSERT INTO runs (
  file_path, source_digest, ts_utc, duration_ns, issue_count,
  info_count, warning_count, error_count, critical_count, truncated, malformed, error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			filePath,
			run.SourceDigest,
			run.Timestamp.UTC().Format(time.RFC3339Nano),
			int64(run.Duration),
			run.IssueCount,
			run.BySeverity[issue.SeverityInfo],
			run.BySeverity[issue.SeverityWarning],
			run.BySeverity[issue.SeverityError],
			run.BySeverity[issue.SeverityCritical],
			run.Truncated,
			run.Malformed,
			run.Error,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		runID, err := res.LastInsertId()
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		for i, is := range issues {
			if _, err := tx.Exec(
				`INSERT INTO issues (run_id, seq, rule_id, severity, start_line, payload) VALUES (?, ?, ?, ?, ?, ?)`,
				runID, i, is.RuleID, is.Severity.String(), is.Location.StartLine, payloads[i],
			); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		id = runID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// LoadRuns returns the runs for filePath at or after since, oldest first. An
// empty filePath returns runs for every file.
func (s *Store) LoadRuns(filePath string, since time.Time) ([]ports.HistoryRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := `
SELECT
  id, file_path, source_digest, ts_utc, duration_ns, issue_count,
  info_count, warning_count, error_count, critical_count, truncated, malformed, error
FROM runs
WHERE 1 = 1`
	args := make([]any, 0, 2)
	if filePath = strings.TrimSpace(filePath); filePath != "" {
		base += " AND file_path = ?"
		args = append(args, filePath)
	}
	if !since.IsZero() {
		base += " AND ts_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	base += " ORDER BY ts_utc ASC, id ASC"

	var rows *sql.Rows
	err := s.withRetry("load runs", func() error {
		var qErr error
		rows, qErr = s.db.Query(base, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]ports.HistoryRun, 0)
	for rows.Next() {
		var (
			run        ports.HistoryRun
			tsRaw      string
			durationNS int64
			info, warn int
			errs, crit int
		)
		if err := rows.Scan(
			&run.ID,
			&run.FilePath,
			&run.SourceDigest,
			&tsRaw,
			&durationNS,
			&run.IssueCount,
			&info, &warn, &errs, &crit,
			&run.Truncated,
			&run.Malformed,
			&run.Error,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse run timestamp %q: %w", tsRaw, err)
		}
		run.Timestamp = ts.UTC()
		run.Duration = time.Duration(durationNS)
		run.BySeverity = map[issue.Severity]int{
			issue.SeverityInfo:     info,
			issue.SeverityWarning:  warn,
			issue.SeverityError:    errs,
			issue.SeverityCritical: crit,
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// LoadIssues decodes the issues stored for runID in their original order.
func (s *Store) LoadIssues(runID int64) ([]issue.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("load issues", func() error {
		var qErr error
		rows, qErr = s.db.Query(`SELECT payload FROM issues WHERE run_id = ? ORDER BY seq ASC`, runID)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]issue.Issue, 0)
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan issue row: %w", err)
		}
		var is issue.Issue
		if err := msgpack.Unmarshal(blob, &is); err != nil {
			return nil, fmt.Errorf("decode issue payload: %w", err)
		}
		out = append(out, is)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issue rows: %w", err)
	}
	return out, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
