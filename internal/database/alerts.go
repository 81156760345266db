package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/afikmenashe/alert-engine/internal/alerts"
)

const alertColumns = `id, project, name, definition, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanAlert reads an alert row. The row identity columns win over the
// values stored in the definition document.
func scanAlert(row rowScanner, extra ...any) (*alerts.AlertConfig, error) {
	var (
		id         int64
		project    string
		name       string
		definition []byte
		createdAt  time.Time
		updatedAt  time.Time
	)
	dest := append([]any{&id, &project, &name, &definition, &createdAt, &updatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	var a alerts.AlertConfig
	if err := json.Unmarshal(definition, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert %d: %w", id, err)
	}
	a.ID = id
	a.Project = project
	a.Name = name
	a.Created = createdAt.UTC()
	a.Updated = updatedAt.UTC()
	return &a, nil
}

// marshalDefinition encodes the definition without its read-only enrichment.
func marshalDefinition(a *alerts.AlertConfig) ([]byte, error) {
	c := *a
	c.State = ""
	c.Count = 0
	data, err := json.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert %s: %w", a.Name, err)
	}
	return data, nil
}

// CreateAlert inserts the alert and its inactive state row in one transaction.
// Returns the alert with its generated id.
func (db *DB) CreateAlert(ctx context.Context, a *alerts.AlertConfig) (*alerts.AlertConfig, error) {
	definition, err := marshalDefinition(a)
	if err != nil {
		return nil, err
	}

	created := *a
	err = db.inTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO alert_configs (project, name, definition, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`
		if err := tx.QueryRowContext(ctx, query, a.Project, a.Name, string(definition), a.Created, a.Updated).Scan(&created.ID); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("%w: alert %s for project %s already exists", alerts.ErrConflict, a.Name, a.Project)
			}
			return fmt.Errorf("failed to create alert: %w", err)
		}

		stateQuery := `INSERT INTO alert_states (alert_id, count, active) VALUES ($1, 0, FALSE)`
		if _, err := tx.ExecContext(ctx, stateQuery, created.ID); err != nil {
			return fmt.Errorf("failed to create alert state: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// StoreAlert replaces the definition of an existing alert.
func (db *DB) StoreAlert(ctx context.Context, a *alerts.AlertConfig) (*alerts.AlertConfig, error) {
	definition, err := marshalDefinition(a)
	if err != nil {
		return nil, err
	}

	query := `UPDATE alert_configs SET definition = $2, updated_at = $3 WHERE id = $1`
	result, err := db.conn.ExecContext(ctx, query, a.ID, string(definition), a.Updated)
	if err != nil {
		return nil, fmt.Errorf("failed to store alert: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: alert %d", alerts.ErrNotFound, a.ID)
	}

	stored := *a
	return &stored, nil
}

// GetAlert retrieves an alert by project and name.
func (db *DB) GetAlert(ctx context.Context, project, name string) (*alerts.AlertConfig, error) {
	query := `SELECT ` + alertColumns + ` FROM alert_configs WHERE project = $1 AND name = $2`
	a, err := scanAlert(db.conn.QueryRowContext(ctx, query, project, name))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: alert %s for project %s", alerts.ErrNotFound, name, project)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// GetAlertByID retrieves an alert by id.
func (db *DB) GetAlertByID(ctx context.Context, alertID int64) (*alerts.AlertConfig, error) {
	query := `SELECT ` + alertColumns + ` FROM alert_configs WHERE id = $1`
	a, err := scanAlert(db.conn.QueryRowContext(ctx, query, alertID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: alert %d", alerts.ErrNotFound, alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// DeleteAlert deletes an alert and its state. Deleting a missing alert is not an error.
func (db *DB) DeleteAlert(ctx context.Context, alertID int64) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM alert_states WHERE alert_id = $1`, alertID); err != nil {
			return fmt.Errorf("failed to delete alert state: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM alert_configs WHERE id = $1`, alertID); err != nil {
			return fmt.Errorf("failed to delete alert: %w", err)
		}
		return nil
	})
}

// DeleteProjectAlerts deletes every alert of a project and returns the deleted alerts.
func (db *DB) DeleteProjectAlerts(ctx context.Context, project string) ([]*alerts.AlertConfig, error) {
	var deleted []*alerts.AlertConfig
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		stateQuery := `DELETE FROM alert_states WHERE alert_id IN (SELECT id FROM alert_configs WHERE project = $1)`
		if _, err := tx.ExecContext(ctx, stateQuery, project); err != nil {
			return fmt.Errorf("failed to delete alert states: %w", err)
		}

		query := `DELETE FROM alert_configs WHERE project = $1 RETURNING ` + alertColumns
		rows, err := tx.QueryContext(ctx, query, project)
		if err != nil {
			return fmt.Errorf("failed to delete alerts: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			a, err := scanAlert(rows)
			if err != nil {
				return fmt.Errorf("failed to scan alert: %w", err)
			}
			deleted = append(deleted, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// ListAlerts retrieves the alerts of a project ordered by id, enriched with
// their state.
func (db *DB) ListAlerts(ctx context.Context, project string) ([]*alerts.AlertConfig, error) {
	query := `
		SELECT c.id, c.project, c.name, c.definition, c.created_at, c.updated_at, s.count, s.active
		FROM alert_configs c
		LEFT JOIN alert_states s ON s.alert_id = c.id
		WHERE c.project = $1
		ORDER BY c.id
	`
	rows, err := db.conn.QueryContext(ctx, query, project)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var result []*alerts.AlertConfig
	for rows.Next() {
		var (
			count  sql.NullInt64
			active sql.NullBool
		)
		a, err := scanAlert(rows, &count, &active)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if count.Valid {
			a.Enrich(&alerts.AlertState{AlertID: a.ID, Count: int(count.Int64), Active: active.Bool})
		} else {
			a.Enrich(nil)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// ListAllAlerts retrieves every alert ordered by id.
func (db *DB) ListAllAlerts(ctx context.Context) ([]*alerts.AlertConfig, error) {
	query := `SELECT ` + alertColumns + ` FROM alert_configs ORDER BY id`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var result []*alerts.AlertConfig
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
