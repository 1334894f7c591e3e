package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/satyaki-up/issueboard/internal/db"
	"github.com/satyaki-up/issueboard/internal/issues"
)

var _ issues.Store = (*SQLiteStore)(nil)

// ErrMalformedRecord marks a row that cannot be decoded into an Issue.
var ErrMalformedRecord = errors.New("malformed issue record")

const writeRetryMaxElapsed = 3 * time.Second

type SQLiteStore struct {
	db      *sql.DB
	path    string
	project string
	newID   func(prefix string) (string, error)
	logger  *slog.Logger

	feed    *feed
	watcher *dbWatcher
}

func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)
	database, err := db.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{
		db:      database,
		path:    path,
		project: o.project,
		newID:   o.newID,
		logger:  o.logger,
	}
	s.feed = newFeed(s.List, o.logger)
	if o.watch {
		w, err := watchDB(path, o.debounce, s.feed.notify, o.logger)
		if err != nil {
			// Same-process writes still publish; only foreign writers go unseen.
			o.logger.Warn("cross-process change detection disabled", "path", path, "err", err)
		} else {
			s.watcher = w
		}
	}
	return s, nil
}

func (s *SQLiteStore) Put(ctx context.Context, issue issues.Issue) (string, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id, err := s.newID(s.project)
		if err != nil {
			return "", err
		}
		var inserted int64
		err = s.withRetry(ctx, func() error {
			res, err := s.db.ExecContext(ctx, `
				INSERT INTO issues(id, title, description, priority, status, assigned_to, created_by, created_at)
				SELECT ?, ?, ?, ?, ?, ?, ?, ?
				WHERE NOT EXISTS (SELECT 1 FROM retired_ids WHERE id = ?)
			`, id, issue.Title, issue.Description, string(issue.Priority), string(issue.Status),
				issue.AssignedTo, issue.CreatedBy, issue.CreatedAt.UnixMilli(), id)
			if err != nil {
				return err
			}
			inserted, _ = res.RowsAffected()
			return nil
		})
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return "", err
		}
		if inserted == 0 {
			// Deleted ids stay retired.
			continue
		}
		s.feed.notify()
		return id, nil
	}
	return "", fmt.Errorf("failed to allocate issue id after %d attempts", maxCreateAttempts)
}

func (s *SQLiteStore) Patch(ctx context.Context, id string, p issues.Patch) error {
	if p.Status == nil {
		return nil
	}
	var affected int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE issues SET status = ? WHERE id = ?`, string(*p.Status), id)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: issue %q not found", issues.ErrNotFound, id)
	}
	s.feed.notify()
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	var affected int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM issues WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: issue %q not found", issues.ErrNotFound, id)
	}
	s.feed.notify()
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*issues.Issue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, title, description, priority, status, assigned_to, created_by, created_at
		FROM issues
		WHERE id = ?
	`, id)
	is, err := scanIssue(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: issue %q not found", issues.ErrNotFound, id)
		}
		return nil, err
	}
	return &is, nil
}

// List reads the revision and the rows in one read transaction so the
// snapshot version always matches its content.
func (s *SQLiteStore) List(ctx context.Context) (issues.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return issues.Snapshot{}, err
	}
	defer tx.Rollback()

	rev, err := db.Revision(ctx, tx)
	if err != nil {
		return issues.Snapshot{}, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT seq, id, title, description, priority, status, assigned_to, created_by, created_at
		FROM issues
		ORDER BY created_at DESC, seq DESC
	`)
	if err != nil {
		return issues.Snapshot{}, err
	}
	defer rows.Close()

	out := make([]issues.Issue, 0)
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			if errors.Is(err, ErrMalformedRecord) {
				s.logger.Warn("skipping undecodable issue row", "err", err)
				continue
			}
			return issues.Snapshot{}, err
		}
		out = append(out, is)
	}
	if err := rows.Err(); err != nil {
		return issues.Snapshot{}, err
	}
	issues.SortIssues(out)
	return issues.Snapshot{Version: rev, Issues: out}, nil
}

func (s *SQLiteStore) Subscribe(fn func(issues.Snapshot)) (func(), error) {
	return s.feed.subscribe(fn)
}

func (s *SQLiteStore) Close() error {
	if s.watcher != nil {
		s.watcher.close()
	}
	s.feed.close()
	return s.db.Close()
}

func (s *SQLiteStore) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 25 * time.Millisecond
	bo.MaxElapsedTime = writeRetryMaxElapsed
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isBusy(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

type scanner interface {
	Scan(dest ...any) error
}

// scanIssue decodes a row at the store boundary. Unknown priorities default
// to Medium; unknown statuses are rejected since they cannot be placed on
// the workflow.
func scanIssue(row scanner) (issues.Issue, error) {
	var is issues.Issue
	var priority, status string
	var createdMillis int64
	if err := row.Scan(
		&is.Seq,
		&is.ID,
		&is.Title,
		&is.Description,
		&priority,
		&status,
		&is.AssignedTo,
		&is.CreatedBy,
		&createdMillis,
	); err != nil {
		return issues.Issue{}, err
	}

	is.Status = issues.Status(status)
	if !issues.IsValidStatus(is.Status) {
		parsed, err := issues.ParseStatus(status)
		if err != nil {
			return issues.Issue{}, fmt.Errorf("%w: issue %s has status %q", ErrMalformedRecord, is.ID, status)
		}
		is.Status = parsed
	}
	is.Priority = issues.Priority(priority)
	if !issues.IsValidPriority(is.Priority) {
		p, err := issues.ParsePriority(priority)
		if err != nil {
			p = issues.PriorityMedium
		}
		is.Priority = p
	}
	if strings.TrimSpace(is.Title) == "" {
		return issues.Issue{}, fmt.Errorf("%w: issue %s has an empty title", ErrMalformedRecord, is.ID)
	}
	is.CreatedAt = time.UnixMilli(createdMillis).UTC()
	return is, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

func (s *SQLiteStore) Path() string {
	return s.path
}
