package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vborodin/procflow/internal/domain"
	"github.com/vborodin/procflow/internal/store"
)

const instanceColumns = `id, process_type, business_key, status, payload, source_job_id, started_at, finished_at`

// GetInstance возвращает экземпляр процесса по ID.
func (d *DB) GetInstance(ctx context.Context, id int64) (*domain.ProcessInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM process_instance WHERE id = $1`
	return scanInstance(d.pool.QueryRow(ctx, query, id))
}

// GetInstance возвращает экземпляр процесса по ID в рамках транзакции.
func (t *pgTx) GetInstance(ctx context.Context, id int64) (*domain.ProcessInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM process_instance WHERE id = $1`
	return scanInstance(t.tx.QueryRow(ctx, query, id))
}

// LockInstanceByKey читает экземпляр по бизнес-ключу под row lock.
func (t *pgTx) LockInstanceByKey(ctx context.Context, processType, businessKey string) (*domain.ProcessInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM process_instance
		WHERE process_type = $1 AND business_key = $2
		FOR UPDATE
	`
	return scanInstance(t.tx.QueryRow(ctx, query, processType, businessKey))
}

// GetInstanceByKey читает экземпляр по бизнес-ключу без блокировки.
// Используется для разрешения гонки вставки в StartProcess.
func (t *pgTx) GetInstanceByKey(ctx context.Context, processType, businessKey string) (*domain.ProcessInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM process_instance
		WHERE process_type = $1 AND business_key = $2
	`
	return scanInstance(t.tx.QueryRow(ctx, query, processType, businessKey))
}

// InsertInstance вставляет экземпляр процесса.
// store.ErrDuplicateKey при гонке на (process_type, business_key).
func (t *pgTx) InsertInstance(ctx context.Context, inst *domain.ProcessInstance) (int64, error) {
	payload, err := marshalJSON(inst.Payload)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO process_instance (process_type, business_key, status, payload, source_job_id, started_at)
		VALUES ($1, $2, $3, COALESCE($4::jsonb, '{}'::jsonb), $5, $6)
		RETURNING id
	`
	var id int64
	err = t.tx.QueryRow(ctx, query,
		inst.ProcessType,
		inst.BusinessKey,
		inst.Status,
		payload,
		inst.SourceJobID,
		inst.StartedAt,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, store.ErrDuplicateKey
	}
	if err != nil {
		return 0, fmt.Errorf("insert instance: %w", err)
	}
	return id, nil
}

// CompleteInstance переводит экземпляр в COMPLETED.
func (t *pgTx) CompleteInstance(ctx context.Context, processID int64) error {
	query := `
		UPDATE process_instance
		SET status = $2, finished_at = now()
		WHERE id = $1
	`
	if _, err := t.tx.Exec(ctx, query, processID, domain.ProcessStatusCompleted); err != nil {
		return fmt.Errorf("complete instance: %w", err)
	}
	return nil
}

// FailInstance переводит экземпляр в FAILED, если он ещё не терминален.
func (t *pgTx) FailInstance(ctx context.Context, processID int64) error {
	query := `
		UPDATE process_instance
		SET status = $2
		WHERE id = $1 AND status NOT IN ($3, $4)
	`
	_, err := t.tx.Exec(ctx, query, processID,
		domain.ProcessStatusFailed,
		domain.ProcessStatusCompleted,
		domain.ProcessStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("fail instance: %w", err)
	}
	return nil
}

// scanInstance сканирует одну строку в ProcessInstance.
func scanInstance(row pgx.Row) (*domain.ProcessInstance, error) {
	var inst domain.ProcessInstance
	var payload []byte

	err := row.Scan(
		&inst.ID,
		&inst.ProcessType,
		&inst.BusinessKey,
		&inst.Status,
		&payload,
		&inst.SourceJobID,
		&inst.StartedAt,
		&inst.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan instance: %w", err)
	}

	if inst.Payload, err = unmarshalJSON(payload); err != nil {
		return nil, err
	}
	return &inst, nil
}
