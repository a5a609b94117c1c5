package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/heyhotcake/shelfeye/internal/model"
)

// SQLiteHistory implements DetectionHistory on the shared database.
type SQLiteHistory struct {
	db *sql.DB
}

// Append implements DetectionHistory.Append
func (s *SQLiteHistory) Append(ctx context.Context, obs *model.DetectionObservation) error {
	if err := validateObservation(obs); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO detection_history (
			slot_id, camera_id, timestamp, state, confidence,
			qr_payload, failure_reason, ssim_empty, ssim_full
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obs.SlotID,
		obs.CameraID,
		obs.Timestamp.UTC(),
		string(obs.State),
		obs.Confidence,
		nullString(obs.QRPayload),
		nullString(obs.FailureReason),
		nullFloat(obs.SSIMEmpty),
		nullFloat(obs.SSIMFull),
	)
	if err != nil {
		return fmt.Errorf("failed to append observation: %w", err)
	}
	return nil
}

// Query implements DetectionHistory.Query
func (s *SQLiteHistory) Query(ctx context.Context, slotID string, since time.Time) ([]model.DetectionObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slot_id, camera_id, timestamp, state, confidence,
		       qr_payload, failure_reason, ssim_empty, ssim_full
		FROM detection_history
		WHERE slot_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC`,
		slotID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query detection history: %w", err)
	}
	defer rows.Close()

	var observations []model.DetectionObservation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, *obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return observations, nil
}

// LatestBefore implements DetectionHistory.LatestBefore
func (s *SQLiteHistory) LatestBefore(ctx context.Context, slotID string, t time.Time) (*model.DetectionObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slot_id, camera_id, timestamp, state, confidence,
		       qr_payload, failure_reason, ssim_empty, ssim_full
		FROM detection_history
		WHERE slot_id = ? AND timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT 1`,
		slotID, t.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query latest observation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanObservation(rows)
}

func scanObservation(rows *sql.Rows) (*model.DetectionObservation, error) {
	var obs model.DetectionObservation
	var state string
	var qrPayload, failureReason sql.NullString
	var ssimEmpty, ssimFull sql.NullFloat64

	err := rows.Scan(
		&obs.SlotID,
		&obs.CameraID,
		&obs.Timestamp,
		&state,
		&obs.Confidence,
		&qrPayload,
		&failureReason,
		&ssimEmpty,
		&ssimFull,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan observation: %w", err)
	}

	obs.State = model.SlotState(state)
	obs.Timestamp = obs.Timestamp.UTC()
	if qrPayload.Valid {
		obs.QRPayload = qrPayload.String
	}
	if failureReason.Valid {
		obs.FailureReason = failureReason.String
	}
	if ssimEmpty.Valid {
		v := ssimEmpty.Float64
		obs.SSIMEmpty = &v
	}
	if ssimFull.Valid {
		v := ssimFull.Float64
		obs.SSIMFull = &v
	}
	return &obs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
