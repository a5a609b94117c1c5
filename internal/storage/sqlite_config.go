package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/heyhotcake/shelfeye/internal/model"
)

// Rules and slots are low-volume configuration records; they are stored
// as JSON payloads with only the lookup columns broken out.

// SQLiteRules implements RuleStore on the shared database.
type SQLiteRules struct {
	db *sql.DB
}

// ListEnabled implements RuleStore.ListEnabled
func (s *SQLiteRules) ListEnabled(ctx context.Context) ([]*model.AlertRule, error) {
	return s.listRules(ctx, `SELECT payload FROM alert_rules WHERE enabled = 1 ORDER BY id`)
}

// List implements RuleStore.List
func (s *SQLiteRules) List(ctx context.Context) ([]*model.AlertRule, error) {
	return s.listRules(ctx, `SELECT payload FROM alert_rules ORDER BY id`)
}

func (s *SQLiteRules) listRules(ctx context.Context, query string) ([]*model.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*model.AlertRule
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		var rule model.AlertRule
		if err := json.Unmarshal([]byte(payload), &rule); err != nil {
			return nil, fmt.Errorf("failed to decode rule: %w", err)
		}
		rules = append(rules, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return rules, nil
}

// Get implements RuleStore.Get
func (s *SQLiteRules) Get(ctx context.Context, id string) (*model.AlertRule, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM alert_rules WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	var rule model.AlertRule
	if err := json.Unmarshal([]byte(payload), &rule); err != nil {
		return nil, fmt.Errorf("failed to decode rule: %w", err)
	}
	return &rule, nil
}

// Upsert implements RuleStore.Upsert
func (s *SQLiteRules) Upsert(ctx context.Context, rule *model.AlertRule) error {
	if rule == nil {
		return ErrValidation
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	payload, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_rules (id, payload, enabled, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		rule.ID, string(payload), enabled, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert rule: %w", err)
	}
	return nil
}

// Delete implements RuleStore.Delete
func (s *SQLiteRules) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
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

// SQLiteSlots implements SlotStore on the shared database.
type SQLiteSlots struct {
	db *sql.DB
}

// List implements SlotStore.List
func (s *SQLiteSlots) List(ctx context.Context) ([]*model.Slot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM slots ORDER BY slot_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	var slots []*model.Slot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		var slot model.Slot
		if err := json.Unmarshal([]byte(payload), &slot); err != nil {
			return nil, fmt.Errorf("failed to decode slot: %w", err)
		}
		slots = append(slots, &slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return slots, nil
}

// Get implements SlotStore.Get
func (s *SQLiteSlots) Get(ctx context.Context, id string) (*model.Slot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM slots WHERE slot_id = ?`, id).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	var slot model.Slot
	if err := json.Unmarshal([]byte(payload), &slot); err != nil {
		return nil, fmt.Errorf("failed to decode slot: %w", err)
	}
	return &slot, nil
}

// Upsert implements SlotStore.Upsert
func (s *SQLiteSlots) Upsert(ctx context.Context, slot *model.Slot) error {
	if slot == nil || slot.SlotID == "" {
		return ErrValidation
	}

	payload, err := json.Marshal(slot)
	if err != nil {
		return fmt.Errorf("failed to encode slot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO slots (slot_id, payload) VALUES (?, ?)
		ON CONFLICT(slot_id) DO UPDATE SET payload = excluded.payload`,
		slot.SlotID, string(payload))
	if err != nil {
		return fmt.Errorf("failed to upsert slot: %w", err)
	}
	return nil
}
