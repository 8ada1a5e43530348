package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/svenbledt/invoiceninja-vscode/internal/models"
)

// TimerRepository persists the single active-timer record. Every
// mutation is a full document write; readers get a decoded copy.
type TimerRepository struct {
	db *sql.DB
}

func NewTimerRepository(db *sql.DB) *TimerRepository {
	return &TimerRepository{db: db}
}

// GetActiveTimer returns the persisted timer record, or nil when no
// timer is running. A record that fails to decode is treated as absent
// rather than surfaced: a corrupt document must not wedge the timer.
func (r *TimerRepository) GetActiveTimer() (*models.ActiveTimerSession, error) {
	var data string
	err := r.db.QueryRow(`SELECT timer_data FROM active_timer WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read active timer: %w", err)
	}

	var timer models.ActiveTimerSession
	if err := json.Unmarshal([]byte(data), &timer); err != nil {
		return nil, nil
	}
	return &timer, nil
}

// SaveActiveTimer writes the full timer record, replacing any previous
// one.
func (r *TimerRepository) SaveActiveTimer(timer *models.ActiveTimerSession) error {
	data, err := json.Marshal(timer)
	if err != nil {
		return fmt.Errorf("failed to marshal active timer: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO active_timer (id, timer_data, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET timer_data = excluded.timer_data, updated_at = CURRENT_TIMESTAMP
	`, string(data))
	if err != nil {
		return fmt.Errorf("failed to save active timer: %w", err)
	}
	return nil
}

// ClearActiveTimer removes the timer record. Clearing an already-empty
// store is not an error.
func (r *TimerRepository) ClearActiveTimer() error {
	if _, err := r.db.Exec(`DELETE FROM active_timer WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear active timer: %w", err)
	}
	return nil
}
