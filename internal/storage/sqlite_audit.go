package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/heyhotcake/shelfeye/internal/model"
)

// SQLiteAudit implements AuditSink on the shared database.
type SQLiteAudit struct {
	db *sql.DB
}

// Record implements AuditSink.Record
func (s *SQLiteAudit) Record(ctx context.Context, tr *model.Transition) error {
	if tr == nil || tr.ID == "" || tr.EntryID == "" || !tr.To.Valid() {
		return ErrValidation
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_audit (id, entry_id, from_status, to_status, reason, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tr.ID,
		tr.EntryID,
		nullString(string(tr.From)),
		string(tr.To),
		nullString(tr.Reason),
		tr.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// ListByEntry implements AuditSink.ListByEntry
func (s *SQLiteAudit) ListByEntry(ctx context.Context, entryID string) ([]model.Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_id, from_status, to_status, reason, at
		FROM alert_audit
		WHERE entry_id = ?
		ORDER BY at ASC`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	var transitions []model.Transition
	for rows.Next() {
		var tr model.Transition
		var from, reason sql.NullString
		var to string
		if err := rows.Scan(&tr.ID, &tr.EntryID, &from, &to, &reason, &tr.At); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		if from.Valid {
			tr.From = model.AlertStatus(from.String)
		}
		tr.To = model.AlertStatus(to)
		if reason.Valid {
			tr.Reason = reason.String
		}
		tr.At = tr.At.UTC()
		transitions = append(transitions, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return transitions, nil
}
