package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vborodin/procflow/internal/domain"
	"github.com/vborodin/procflow/internal/store"
)

const stepColumns = `id, process_instance_id, step_name, status, attempt, join_group,
	input_payload, output_payload, locked_at, last_error, created_at, finished_at`

// GetStep возвращает шаг без блокировки.
func (d *DB) GetStep(ctx context.Context, processID int64, stepName string) (*domain.ProcessStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM process_step
		WHERE process_instance_id = $1 AND step_name = $2
	`
	return scanStep(d.pool.QueryRow(ctx, query, processID, stepName))
}

// ListSteps возвращает все шаги экземпляра в порядке создания.
func (d *DB) ListSteps(ctx context.Context, processID int64) ([]domain.ProcessStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM process_step
		WHERE process_instance_id = $1
		ORDER BY id
	`
	rows, err := d.pool.Query(ctx, query, processID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.ProcessStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *step)
	}
	return steps, rows.Err()
}

// InsertStepIfAbsent вставляет шаг, если его ещё нет.
// Возвращает true, если вставка реально произошла — только в этом
// случае вызывающая сторона диспатчит run-сообщение.
func (t *pgTx) InsertStepIfAbsent(ctx context.Context, step *domain.ProcessStep) (bool, error) {
	input, err := marshalJSON(step.InputPayload)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO process_step (process_instance_id, step_name, status, attempt, join_group, input_payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (process_instance_id, step_name) DO NOTHING
	`
	tag, err := t.tx.Exec(ctx, query,
		step.ProcessInstanceID,
		step.StepName,
		domain.StepStatusPending,
		step.Attempt,
		nullString(step.JoinGroup),
		input,
	)
	if err != nil {
		return false, fmt.Errorf("insert step: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// LockStep читает шаг под row lock.
func (t *pgTx) LockStep(ctx context.Context, processID int64, stepName string) (*domain.ProcessStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM process_step
		WHERE process_instance_id = $1 AND step_name = $2
		FOR UPDATE
	`
	return scanStep(t.tx.QueryRow(ctx, query, processID, stepName))
}

// ClaimStep — условный перевод PENDING → RUNNING.
// Guard по статусу делает claim атомарным: из N конкурентных
// обработчиков ровно один получит RowsAffected == 1.
func (t *pgTx) ClaimStep(ctx context.Context, stepID int64) (bool, error) {
	query := `
		UPDATE process_step
		SET status = $2, attempt = attempt + 1, locked_at = now()
		WHERE id = $1 AND status = $3
	`
	tag, err := t.tx.Exec(ctx, query, stepID, domain.StepStatusRunning, domain.StepStatusPending)
	if err != nil {
		return false, fmt.Errorf("claim step: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FinishStepDone переводит шаг в DONE с записью результата.
func (t *pgTx) FinishStepDone(ctx context.Context, stepID int64, output map[string]any) error {
	out, err := marshalJSON(output)
	if err != nil {
		return err
	}

	query := `
		UPDATE process_step
		SET status = $2, output_payload = $3, finished_at = now()
		WHERE id = $1 AND status != $2
	`
	if _, err := t.tx.Exec(ctx, query, stepID, domain.StepStatusDone, out); err != nil {
		return fmt.Errorf("finish step done: %w", err)
	}
	return nil
}

// FinishStepFailed переводит шаг в FAILED; DONE не перезаписывается.
func (t *pgTx) FinishStepFailed(ctx context.Context, stepID int64, lastError string) error {
	query := `
		UPDATE process_step
		SET status = $2, last_error = $3, finished_at = now()
		WHERE id = $1 AND status != $4
	`
	_, err := t.tx.Exec(ctx, query, stepID, domain.StepStatusFailed, lastError, domain.StepStatusDone)
	if err != nil {
		return fmt.Errorf("finish step failed: %w", err)
	}
	return nil
}

// LockJoinGroup читает все шаги join-группы под row lock.
func (t *pgTx) LockJoinGroup(ctx context.Context, processID int64, joinGroup string) ([]domain.ProcessStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM process_step
		WHERE process_instance_id = $1 AND join_group = $2
		ORDER BY id
		FOR UPDATE
	`
	rows, err := t.tx.Query(ctx, query, processID, joinGroup)
	if err != nil {
		return nil, fmt.Errorf("lock join group: %w", err)
	}
	defer rows.Close()

	var steps []domain.ProcessStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *step)
	}
	return steps, rows.Err()
}

// scanStep сканирует одну строку в ProcessStep.
func scanStep(row pgx.Row) (*domain.ProcessStep, error) {
	var step domain.ProcessStep
	var joinGroup, lastError *string
	var input, output []byte

	err := row.Scan(
		&step.ID,
		&step.ProcessInstanceID,
		&step.StepName,
		&step.Status,
		&step.Attempt,
		&joinGroup,
		&input,
		&output,
		&step.LockedAt,
		&lastError,
		&step.CreatedAt,
		&step.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan step: %w", err)
	}

	if joinGroup != nil {
		step.JoinGroup = *joinGroup
	}
	if lastError != nil {
		step.LastError = *lastError
	}
	if step.InputPayload, err = unmarshalJSON(input); err != nil {
		return nil, err
	}
	if step.OutputPayload, err = unmarshalJSON(output); err != nil {
		return nil, err
	}
	return &step, nil
}
