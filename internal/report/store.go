// Package report provides PostgreSQL-backed storage for abuse reports.
// Rows are append-only: the engine creates them and never mutates or
// deletes them; retention is a collaborator concern.
package report

import (
	"context"
	"database/sql"
	"fmt"
)

// validReasons is the set of allowed reason values.
var validReasons = map[string]bool{
	"harassment": true,
	"spam":       true,
	"explicit":   true,
	"underage":   true,
	"other":      true,
}

// NormalizeReason maps an unknown reason to "other" so the bot edge can pass
// free-form reasons without failing the insert.
func NormalizeReason(reason string) string {
	if validReasons[reason] {
		return reason
	}
	return "other"
}

// Report captures who reported whom and why.
type Report struct {
	ReporterID string
	ReportedID string
	Reason     string
}

// Store manages abuse reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create appends a report row.
func (s *Store) Create(ctx context.Context, r *Report) error {
	const query = `
		INSERT INTO reports (reporter_id, reported_id, reason)
		VALUES ($1, $2, $3)`

	_, err := s.db.ExecContext(ctx, query, r.ReporterID, r.ReportedID, NormalizeReason(r.Reason))
	if err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}
