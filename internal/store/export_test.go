package store

import "context"

// SetSchemaVersionForTest rewrites the recorded schema version.
func (s *SQLite) SetSchemaVersionForTest(ctx context.Context, version int) error {
	_, err := s.db.ExecContext(ctx, "UPDATE schema_version SET version = ?", version)
	return err
}

// ResetForTest empties every table so contract tests start clean.
func (s *Postgres) ResetForTest(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "TRUNCATE request_log, comments, posts RESTART IDENTITY CASCADE")
	return err
}
