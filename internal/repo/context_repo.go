package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vborodin/procflow/internal/domain"
)

// AppendContext добавляет запись в журнал контекста.
// Журнал append-only: UPDATE и DELETE по process_context не существуют.
func (d *DB) AppendContext(ctx context.Context, processID int64, stepName string, payload map[string]any) error {
	data, err := marshalJSON(payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO process_context (process_instance_id, step_name, payload)
		VALUES ($1, $2, COALESCE($3::jsonb, '{}'::jsonb))
	`
	if _, err := d.pool.Exec(ctx, query, processID, stepName, data); err != nil {
		return fmt.Errorf("append context: %w", err)
	}
	return nil
}

// ListContext возвращает записи журнала в порядке возрастания ID.
func (d *DB) ListContext(ctx context.Context, processID int64) ([]domain.ContextEntry, error) {
	query := `
		SELECT id, process_instance_id, step_name, payload, created_at
		FROM process_context
		WHERE process_instance_id = $1
		ORDER BY id
	`
	rows, err := d.pool.Query(ctx, query, processID)
	if err != nil {
		return nil, fmt.Errorf("list context: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListContextUntil возвращает записи с ID не больше максимального ID,
// записанного шагом stepName. Если шаг ничего не писал, подзапрос
// возвращает NULL и результат пуст.
func (d *DB) ListContextUntil(ctx context.Context, processID int64, stepName string) ([]domain.ContextEntry, error) {
	query := `
		SELECT id, process_instance_id, step_name, payload, created_at
		FROM process_context
		WHERE process_instance_id = $1
		  AND id <= (
			SELECT MAX(id)
			FROM process_context
			WHERE process_instance_id = $1 AND step_name = $2
		  )
		ORDER BY id
	`
	rows, err := d.pool.Query(ctx, query, processID, stepName)
	if err != nil {
		return nil, fmt.Errorf("list context until: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]domain.ContextEntry, error) {
	var entries []domain.ContextEntry
	for rows.Next() {
		var entry domain.ContextEntry
		var payload []byte

		err := rows.Scan(
			&entry.ID,
			&entry.ProcessInstanceID,
			&entry.StepName,
			&payload,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan context entry: %w", err)
		}
		if entry.Payload, err = unmarshalJSON(payload); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
