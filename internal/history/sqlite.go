package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/space-downloader/spacedl/internal/model"

	_ "modernc.org/sqlite"
)

// fixed width, so text comparison orders rows in time
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schemaSQL = `CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL,
	url TEXT NOT NULL,
	format TEXT NOT NULL,
	title TEXT,
	uploader TEXT,
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	file_path TEXT,
	error_code TEXT,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_downloads_job_id ON downloads(job_id);`

const selectColumns = `id, job_id, url, format, title, uploader, status, started_at, ended_at, file_path, error_code, error_message`

type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storeErr("opening database", err)
	}
	// a single connection keeps writers serialized without SQLITE_BUSY
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
		schemaSQL,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, storeErr("initializing database", err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) RecordQueued(ctx context.Context, jobID uuid.UUID, url string, format model.AudioFormat) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO downloads (job_id, url, format, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		jobID.String(), url, format.String(), model.JobStatusQueued.String(), formatTime(time.Now()),
	)
	if err != nil {
		return 0, storeErr("executing sql insert failed", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr("fetching row id failed", err)
	}
	return id, nil
}

func (s *SQLite) UpdateMetadata(ctx context.Context, jobID uuid.UUID, title, uploader *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE downloads SET title = COALESCE(?, title), uploader = COALESCE(?, uploader) WHERE job_id = ?`,
		title, uploader, jobID.String(),
	)
	if err != nil {
		return storeErr("executing sql update failed", err)
	}
	return expectRows(res)
}

func (s *SQLite) MarkCompleted(ctx context.Context, jobID uuid.UUID, status model.JobStatus, filePath, errorCode, errorMessage *string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("beginning transaction failed", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Calling `tx.Rollback()` failed.", slog.String("job_id", jobID.String()))
		}
	}()

	var endedAt *string
	err = tx.QueryRowContext(ctx,
		`SELECT ended_at FROM downloads WHERE job_id = ?`, jobID.String(),
	).Scan(&endedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return storeErr("executing sql query failed", err)
	case endedAt != nil:
		return ErrAlreadyFinished
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE downloads
		 SET
			status = ?,
			ended_at = ?,
			file_path = ?,
			error_code = ?,
			error_message = ?
		 WHERE job_id = ?`,
		status.String(), formatTime(time.Now()), filePath, errorCode, errorMessage, jobID.String(),
	)
	if err != nil {
		return storeErr("executing sql update failed", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("committing transaction failed", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, jobID uuid.UUID) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM downloads WHERE job_id = ?`, jobID.String(),
	)
	e, err := scanEntry(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Entry{}, ErrNotFound
	case err != nil:
		return Entry{}, storeErr("executing sql query failed", err)
	}
	return e, nil
}

func (s *SQLite) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM downloads ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, storeErr("executing sql query failed", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, storeErr("scanning row failed", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterating rows failed", err)
	}
	return out, nil
}

func (s *SQLite) PruneBefore(ctx context.Context, t time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM downloads WHERE ended_at IS NOT NULL AND ended_at < ?`, formatTime(t),
	)
	if err != nil {
		return 0, storeErr("executing sql delete failed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("fetching affected rows failed", err)
	}
	return int(n), nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e                 Entry
		jobID, format     string
		status, startedAt string
		endedAt           *string
	)
	err := row.Scan(
		&e.ID,
		&jobID,
		&e.URL,
		&format,
		&e.Title,
		&e.Uploader,
		&status,
		&startedAt,
		&endedAt,
		&e.FilePath,
		&e.ErrorCode,
		&e.ErrorMessage,
	)
	if err != nil {
		return Entry{}, err
	}
	if e.JobID, err = uuid.Parse(jobID); err != nil {
		return Entry{}, fmt.Errorf("parsing job_id: %w", err)
	}
	e.Format = model.AudioFormat(format)
	e.Status = model.ParseJobStatus(status)
	if e.StartedAt, err = parseTime(startedAt); err != nil {
		return Entry{}, err
	}
	if endedAt != nil {
		t, err := parseTime(*endedAt)
		if err != nil {
			return Entry{}, err
		}
		e.EndedAt = &t
	}
	return e, nil
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("fetching affected rows failed", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
