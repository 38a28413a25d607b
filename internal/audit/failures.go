package audit

import (
	"database/sql"
	"fmt"
	"time"
)

type FailureRecord struct {
	ID         int64
	OccurredAt time.Time
	MIME       string
	LoaderExec string
	Kind       string
	Message    string
	ExitCode   *int
	Signal     *int
	StderrTail string
}

func (s *Store) RecordFailure(mime, loaderExec, kind, message string, exitCode, signal *int, stderrTail string) error {
	_, err := s.db.Exec(
		`INSERT INTO decode_failures (mime, loader_exec, kind, message, exit_code, signal, stderr_tail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mime, loaderExec, kind, message, exitCode, signal, stderrTail,
	)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

func (s *Store) ListByMIME(mime string) ([]*FailureRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, occurred_at, mime, loader_exec, kind, message, exit_code, signal, stderr_tail
		 FROM decode_failures WHERE mime = ? ORDER BY occurred_at DESC`,
		mime,
	)
	if err != nil {
		return nil, fmt.Errorf("list by mime: %w", err)
	}
	defer rows.Close()
	return scanFailures(rows)
}

func (s *Store) ListByLoader(loaderExec string) ([]*FailureRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, occurred_at, mime, loader_exec, kind, message, exit_code, signal, stderr_tail
		 FROM decode_failures WHERE loader_exec = ? ORDER BY occurred_at DESC`,
		loaderExec,
	)
	if err != nil {
		return nil, fmt.Errorf("list by loader: %w", err)
	}
	defer rows.Close()
	return scanFailures(rows)
}

func (s *Store) Recent(limit int) ([]*FailureRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, occurred_at, mime, loader_exec, kind, message, exit_code, signal, stderr_tail
		 FROM decode_failures ORDER BY occurred_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	defer rows.Close()
	return scanFailures(rows)
}

func scanFailures(rows *sql.Rows) ([]*FailureRecord, error) {
	var out []*FailureRecord
	for rows.Next() {
		r := &FailureRecord{}
		if err := rows.Scan(&r.ID, &r.OccurredAt, &r.MIME, &r.LoaderExec, &r.Kind, &r.Message, &r.ExitCode, &r.Signal, &r.StderrTail); err != nil {
			return nil, fmt.Errorf("scan failure row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure rows: %w", err)
	}
	return out, nil
}
