package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/vborodin/procflow/internal/domain"
)

// InsertJob добавляет отложенное задание.
func (d *DB) InsertJob(ctx context.Context, job *domain.ScheduledJob) (int64, error) {
	payload, err := marshalJSON(job.Payload)
	if err != nil {
		return 0, err
	}

	status := job.Status
	if status == "" {
		status = domain.JobStatusNew
	}

	query := `
		INSERT INTO scheduled_jobs (job_type, process_type, business_key, payload, cron_expr, scheduled_at, status)
		VALUES ($1, $2, $3, COALESCE($4::jsonb, '{}'::jsonb), $5, $6, $7)
		RETURNING id
	`
	var id int64
	err = d.pool.QueryRow(ctx, query,
		job.JobType,
		job.ProcessType,
		job.BusinessKey,
		payload,
		nullString(job.CronExpr),
		job.ScheduledAt,
		status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// ClaimDueJobs захватывает батч due-заданий.
//
// FOR UPDATE SKIP LOCKED позволяет нескольким планировщикам делить
// работу без взаимной блокировки: строки, захваченные конкурентом,
// просто пропускаются. Захваченные задания переводятся в LOCKED
// в той же транзакции.
func (d *DB) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledJob, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		SELECT id, job_type, process_type, business_key, payload, cron_expr, scheduled_at, status, locked_at
		FROM scheduled_jobs
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at
		FOR UPDATE SKIP LOCKED
		LIMIT $3
	`
	rows, err := tx.Query(ctx, query, domain.JobStatusNew, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due jobs: %w", err)
	}

	var jobs []domain.ScheduledJob
	for rows.Next() {
		var job domain.ScheduledJob
		var payload []byte
		var cronExpr *string

		err := rows.Scan(
			&job.ID,
			&job.JobType,
			&job.ProcessType,
			&job.BusinessKey,
			&payload,
			&cronExpr,
			&job.ScheduledAt,
			&job.Status,
			&job.LockedAt,
		)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if cronExpr != nil {
			job.CronExpr = *cronExpr
		}
		if job.Payload, err = unmarshalJSON(payload); err != nil {
			rows.Close()
			return nil, err
		}
		jobs = append(jobs, job)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due jobs: %w", err)
	}

	for i := range jobs {
		_, err := tx.Exec(ctx,
			`UPDATE scheduled_jobs SET status = $2, locked_at = now() WHERE id = $1`,
			jobs[i].ID, domain.JobStatusLocked,
		)
		if err != nil {
			return nil, fmt.Errorf("lock job %d: %w", jobs[i].ID, err)
		}
		jobs[i].Status = domain.JobStatusLocked
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return jobs, nil
}

// MarkJobDone переводит задание в DONE.
func (d *DB) MarkJobDone(ctx context.Context, jobID int64) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE scheduled_jobs SET status = $2 WHERE id = $1`,
		jobID, domain.JobStatusDone,
	)
	if err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	return nil
}
