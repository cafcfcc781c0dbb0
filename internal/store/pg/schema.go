package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RequiredSchemaVersion is the migration version this binary expects.
const RequiredSchemaVersion uint = 1

// SchemaStatus is the result of a schema compatibility check.
type SchemaStatus struct {
	CurrentVersion  uint
	RequiredVersion uint
	Dirty           bool
	Compatible      bool
	NeedsMigration  bool
}

// CheckSchema reads schema_migrations and compares it to
// RequiredSchemaVersion. A missing table reads as "needs migration".
func CheckSchema(ctx context.Context, db *sql.DB) (*SchemaStatus, error) {
	s := &SchemaStatus{RequiredVersion: RequiredSchemaVersion}

	err := db.QueryRowContext(ctx, "SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&s.CurrentVersion, &s.Dirty)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) && !isUndefinedTable(err) {
			return nil, fmt.Errorf("read schema version: %w", err)
		}
		s.NeedsMigration = true
		return s, nil
	}
	evaluate(s)
	return s, nil
}

func evaluate(s *SchemaStatus) {
	if s.Dirty {
		return
	}
	switch {
	case s.CurrentVersion == s.RequiredVersion:
		s.Compatible = true
	case s.CurrentVersion < s.RequiredVersion:
		s.NeedsMigration = true
	}
}

// Describe returns a one-line operator hint for s.
func (s *SchemaStatus) Describe() string {
	switch {
	case s.Dirty:
		return fmt.Sprintf("v%d dirty (run: goturn migrate force %d)", s.CurrentVersion, s.CurrentVersion-1)
	case s.Compatible:
		return fmt.Sprintf("v%d (up to date)", s.CurrentVersion)
	case s.NeedsMigration:
		return fmt.Sprintf("v%d, requires v%d (run: goturn migrate up)", s.CurrentVersion, s.RequiredVersion)
	default:
		return fmt.Sprintf("v%d is newer than this binary (requires v%d)", s.CurrentVersion, s.RequiredVersion)
	}
}

// isUndefinedTable matches Postgres error 42P01 without importing pgconn.
func isUndefinedTable(err error) bool {
	var coded interface{ SQLState() string }
	return errors.As(err, &coded) && coded.SQLState() == "42P01"
}
