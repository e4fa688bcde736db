package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"threadwatch/internal/forum"
)

// maxErrorLength bounds stored error messages.
const maxErrorLength = 500

// LogRequest appends one outbound fetch record.
func (s *SQLite) LogRequest(ctx context.Context, entry forum.RequestLog) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = s.opts.now()
	}
	_, err := s.execWithRetry(ctx, `INSERT INTO request_log (ts, kind, source, url, duration_ms, success, status_code, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(ts),
		string(entry.Kind),
		nullableString(entry.Source),
		entry.URL,
		entry.Duration.Milliseconds(),
		boolToInt(entry.Success),
		entry.StatusCode,
		nullableString(truncate(entry.Error, maxErrorLength)),
	)
	if err != nil {
		return fmt.Errorf("log request: %w", err)
	}
	return nil
}

// RecentRequests returns the newest request log entries first.
func (s *SQLite) RecentRequests(ctx context.Context, limit int) ([]forum.RequestLog, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, ts, kind, source, url, duration_ms, success, status_code, error FROM request_log ORDER BY id DESC LIMIT ?",
		clampLimit(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []forum.RequestLog
	for rows.Next() {
		var (
			entry      forum.RequestLog
			tsRaw      string
			kind       string
			source     sql.NullString
			durationMS int64
			success    int
			errMsg     sql.NullString
		)
		if err := rows.Scan(&entry.ID, &tsRaw, &kind, &source, &entry.URL, &durationMS, &success, &entry.StatusCode, &errMsg); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		if ts, err := parseTimeString(tsRaw); err == nil {
			entry.Timestamp = ts
		}
		entry.Kind = forum.RequestKind(kind)
		entry.Source = source.String
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entry.Success = success != 0
		entry.Error = errMsg.String
		out = append(out, entry)
	}
	return out, rows.Err()
}
