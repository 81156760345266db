package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/afikmenashe/alert-engine/internal/alerts"
)

const stateColumns = `alert_id, count, active, last_updated, full_object`

func loadState(ctx context.Context, q querier, query string, alertID int64) (*alerts.AlertState, error) {
	var (
		state       alerts.AlertState
		lastUpdated sql.NullTime
		fullObject  []byte
	)
	err := q.QueryRowContext(ctx, query, alertID).Scan(
		&state.AlertID,
		&state.Count,
		&state.Active,
		&lastUpdated,
		&fullObject,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: state of alert %d", alerts.ErrNotFound, alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert state: %w", err)
	}

	if lastUpdated.Valid {
		ts := lastUpdated.Time.UTC()
		state.LastUpdated = &ts
	}
	if len(fullObject) > 0 {
		var obj alerts.StateObject
		if err := json.Unmarshal(fullObject, &obj); err != nil {
			return nil, fmt.Errorf("failed to unmarshal state of alert %d: %w", alertID, err)
		}
		state.FullObject = &obj
	}
	return &state, nil
}

func saveState(ctx context.Context, q querier, state *alerts.AlertState) error {
	var fullObject any // NULL unless a window is kept
	if state.FullObject != nil {
		data, err := json.Marshal(state.FullObject)
		if err != nil {
			return fmt.Errorf("failed to marshal state of alert %d: %w", state.AlertID, err)
		}
		fullObject = string(data)
	}
	var lastUpdated sql.NullTime
	if state.LastUpdated != nil {
		lastUpdated = sql.NullTime{Time: *state.LastUpdated, Valid: true}
	}

	query := `
		UPDATE alert_states
		SET count = $2, active = $3, last_updated = $4, full_object = $5
		WHERE alert_id = $1
	`
	result, err := q.ExecContext(ctx, query, state.AlertID, state.Count, state.Active, lastUpdated, fullObject)
	if err != nil {
		return fmt.Errorf("failed to store alert state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: state of alert %d", alerts.ErrNotFound, state.AlertID)
	}
	return nil
}

// GetAlertState retrieves the trigger state of an alert.
func (db *DB) GetAlertState(ctx context.Context, alertID int64) (*alerts.AlertState, error) {
	return loadState(ctx, db.conn, `SELECT `+stateColumns+` FROM alert_states WHERE alert_id = $1`, alertID)
}

// StoreAlertState writes all state fields of an alert in one statement.
func (db *DB) StoreAlertState(ctx context.Context, state *alerts.AlertState) error {
	return saveState(ctx, db.conn, state)
}

// UpdateAlertState locks the state row, runs fn on it and writes it back when
// fn reports a change. The whole read-modify-write is one transaction; an
// error from fn or a cancelled context leaves the row untouched.
func (db *DB) UpdateAlertState(ctx context.Context, alertID int64, fn func(*alerts.AlertState) (bool, error)) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + stateColumns + ` FROM alert_states WHERE alert_id = $1 FOR UPDATE`
		state, err := loadState(ctx, tx, query, alertID)
		if err != nil {
			return err
		}

		changed, err := fn(state)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		state.AlertID = alertID
		return saveState(ctx, tx, state)
	})
}

// EnrichAlert attaches the current state of an alert to its read model.
func (db *DB) EnrichAlert(ctx context.Context, a *alerts.AlertConfig) error {
	state, err := db.GetAlertState(ctx, a.ID)
	if errors.Is(err, alerts.ErrNotFound) {
		a.Enrich(nil)
		return nil
	}
	if err != nil {
		return err
	}
	a.Enrich(state)
	return nil
}
