package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/svenbledt/invoiceninja-vscode/internal/models"
)

// ReminderRepository persists the pending reminder list, one JSON
// document row per reminder, ordered by creation time.
type ReminderRepository struct {
	db *sql.DB
}

func NewReminderRepository(db *sql.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// List returns all persisted reminders in creation order. Rows that
// fail to decode are dropped and removed.
func (r *ReminderRepository) List() ([]models.TaskReminder, error) {
	rows, err := r.db.Query(`SELECT id, reminder_data FROM task_reminders ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()

	var reminders []models.TaskReminder
	var corrupted []string
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}

		var reminder models.TaskReminder
		if err := json.Unmarshal([]byte(data), &reminder); err != nil {
			corrupted = append(corrupted, id)
			continue
		}
		reminders = append(reminders, reminder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminders: %w", err)
	}

	for _, id := range corrupted {
		r.db.Exec(`DELETE FROM task_reminders WHERE id = ?`, id)
	}

	return reminders, nil
}

// Get returns a single reminder by id, or nil when absent.
func (r *ReminderRepository) Get(id string) (*models.TaskReminder, error) {
	var data string
	err := r.db.QueryRow(`SELECT reminder_data FROM task_reminders WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read reminder: %w", err)
	}

	var reminder models.TaskReminder
	if err := json.Unmarshal([]byte(data), &reminder); err != nil {
		return nil, nil
	}
	return &reminder, nil
}

// Add persists a new reminder.
func (r *ReminderRepository) Add(reminder models.TaskReminder) error {
	data, err := json.Marshal(reminder)
	if err != nil {
		return fmt.Errorf("failed to marshal reminder: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO task_reminders (id, account_key, task_id, reminder_data)
		VALUES (?, ?, ?, ?)
	`, reminder.ID, reminder.AccountKey, reminder.TaskID, string(data))
	if err != nil {
		return fmt.Errorf("failed to add reminder: %w", err)
	}
	return nil
}

// Remove deletes a reminder by id. Removing a missing reminder is not
// an error.
func (r *ReminderRepository) Remove(id string) error {
	if _, err := r.db.Exec(`DELETE FROM task_reminders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove reminder: %w", err)
	}
	return nil
}

// RemoveByTask deletes every reminder bound to the given account and
// task, returning the ids that were removed so the scheduler can
// cancel their alarms.
func (r *ReminderRepository) RemoveByTask(accountKey, taskID string) ([]string, error) {
	rows, err := r.db.Query(`SELECT id FROM task_reminders WHERE account_key = ? AND task_id = ?`, accountKey, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders for task: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan reminder id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminder ids: %w", err)
	}

	if len(ids) > 0 {
		if _, err := r.db.Exec(`DELETE FROM task_reminders WHERE account_key = ? AND task_id = ?`, accountKey, taskID); err != nil {
			return nil, fmt.Errorf("failed to remove reminders for task: %w", err)
		}
	}

	return ids, nil
}
