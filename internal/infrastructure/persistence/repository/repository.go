// Package repository provides the sqlite implementations of the application's
// storage ports. All writes that modify existing rows are version checked:
// the UPDATE carries the version the caller read, and zero affected rows
// surfaces as ErrConflict. There are no cross-row transactions; the
// orchestration layer sequences its writes and owns the recovery story.
package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// parseUUID converts a stored TEXT id back into a uuid
func parseUUID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return id, nil
}

// nullUUID maps an optional uuid to its TEXT column
func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

// nullTime maps an optional timestamp to its DATETIME column
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullJSON maps an optional JSON document to its TEXT column
func nullJSON(doc json.RawMessage) sql.NullString {
	if len(doc) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(doc), Valid: true}
}
