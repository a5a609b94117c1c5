package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/heyhotcake/shelfeye/internal/model"
)

const alertColumns = `id, rule_id, type, subject_kind, subject_id, message,
	status, priority, created_at, scheduled_at, sent_at, retry_count, last_error`

// SQLiteAlerts implements AlertStore on the shared database.
type SQLiteAlerts struct {
	db *sql.DB
}

// Create implements AlertStore.Create
func (s *SQLiteAlerts) Create(ctx context.Context, entry *model.AlertQueueEntry) error {
	if entry == nil || entry.ID == "" {
		return ErrValidation
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_queue (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.RuleID,
		string(entry.Type),
		string(entry.SubjectKind),
		entry.SubjectID,
		entry.Message,
		string(entry.Status),
		string(entry.Priority),
		entry.CreatedAt.UTC(),
		entry.ScheduledAt.UTC(),
		nullTime(entry.SentAt),
		entry.RetryCount,
		nullString(entry.LastError),
	)
	if err != nil {
		return fmt.Errorf("failed to create alert entry: %w", err)
	}
	return nil
}

// Update implements AlertStore.Update
func (s *SQLiteAlerts) Update(ctx context.Context, entry *model.AlertQueueEntry) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alert_queue SET
			status = ?,
			scheduled_at = ?,
			sent_at = ?,
			retry_count = ?,
			last_error = ?
		WHERE id = ?`,
		string(entry.Status),
		entry.ScheduledAt.UTC(),
		nullTime(entry.SentAt),
		entry.RetryCount,
		nullString(entry.LastError),
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get implements AlertStore.Get
func (s *SQLiteAlerts) Get(ctx context.Context, id string) (*model.AlertQueueEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alert_queue WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanAlert(rows)
}

// FindOpen implements AlertStore.FindOpen
func (s *SQLiteAlerts) FindOpen(ctx context.Context, ruleType model.RuleType, subjectID string, maxRetries int) (*model.AlertQueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alertColumns+` FROM alert_queue
		WHERE type = ? AND subject_id = ?
		  AND (status = 'pending' OR (status = 'failed' AND retry_count < ?))
		ORDER BY created_at DESC
		LIMIT 1`,
		string(ruleType), subjectID, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to find open alert entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanAlert(rows)
}

// ListDue implements AlertStore.ListDue
func (s *SQLiteAlerts) ListDue(ctx context.Context, now time.Time, maxRetries int) ([]*model.AlertQueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alertColumns+` FROM alert_queue
		WHERE scheduled_at <= ?
		  AND (status = 'pending' OR (status = 'failed' AND retry_count < ?))
		ORDER BY scheduled_at ASC`,
		now.UTC(), maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to list due alert entries: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// List implements AlertStore.List
func (s *SQLiteAlerts) List(ctx context.Context, filters AlertFilters, offset, limit int) ([]*model.AlertQueueEntry, error) {
	query := `SELECT ` + alertColumns + ` FROM alert_queue`
	args := make([]interface{}, 0, 5)
	where := ""

	appendCond := func(cond string, arg interface{}) {
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
		args = append(args, arg)
	}

	if filters.Status != "" {
		appendCond("status = ?", string(filters.Status))
	}
	if filters.Type != "" {
		appendCond("type = ?", string(filters.Type))
	}
	if filters.SubjectID != "" {
		appendCond("subject_id = ?", filters.SubjectID)
	}

	query += where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert entries: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

func collectAlerts(rows *sql.Rows) ([]*model.AlertQueueEntry, error) {
	var entries []*model.AlertQueueEntry
	for rows.Next() {
		entry, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return entries, nil
}

func scanAlert(rows *sql.Rows) (*model.AlertQueueEntry, error) {
	var entry model.AlertQueueEntry
	var ruleType, subjectKind, status, priority string
	var sentAt sql.NullTime
	var lastError sql.NullString

	err := rows.Scan(
		&entry.ID,
		&entry.RuleID,
		&ruleType,
		&subjectKind,
		&entry.SubjectID,
		&entry.Message,
		&status,
		&priority,
		&entry.CreatedAt,
		&entry.ScheduledAt,
		&sentAt,
		&entry.RetryCount,
		&lastError,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert entry: %w", err)
	}

	entry.Type = model.RuleType(ruleType)
	entry.SubjectKind = model.SubjectKind(subjectKind)
	entry.Status = model.AlertStatus(status)
	entry.Priority = model.Priority(priority)
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.ScheduledAt = entry.ScheduledAt.UTC()
	if sentAt.Valid {
		t := sentAt.Time.UTC()
		entry.SentAt = &t
	}
	if lastError.Valid {
		entry.LastError = lastError.String
	}
	return &entry, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
