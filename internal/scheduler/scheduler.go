package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vborodin/procflow/internal/domain"
	"github.com/vborodin/procflow/internal/store"
	"github.com/vborodin/procflow/internal/telemetry"
)

// Starter запускает процесс по заданию планировщика.
type Starter interface {
	StartProcess(ctx context.Context, processType, businessKey string, payload map[string]any, sourceJobID *int64) (int64, error)
}

// Scheduler опрашивает отложенные задания и запускает процессы.
type Scheduler struct {
	store     store.Store
	starter   Starter
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
}

// Config — конфигурация Scheduler.
type Config struct {
	Store   store.Store
	Starter Starter
	Logger  *slog.Logger

	// BatchSize — количество заданий за один тик (default: 10).
	BatchSize int

	// Interval — период опроса таблицы заданий (default: 5s).
	Interval time.Duration
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		store:     cfg.Store,
		starter:   cfg.Starter,
		logger:    logger,
		batchSize: batchSize,
		interval:  interval,
	}
}

// Run запускает цикл опроса до отмены контекста.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval, "batch_size", s.batchSize)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Захватывает пачку due-заданий (NEW → LOCKED, SKIP LOCKED).
// 2. Для каждого задания запускает процесс.
// 3. Переводит задание в DONE.
// 4. Для повторяющихся заданий ставит следующее вхождение.
//
// Ошибка одного задания не блокирует обработку остальных:
// такое задание остаётся в LOCKED для ручного разбора.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	jobs, err := s.store.ClaimDueJobs(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("claim due jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	s.logger.Debug("claimed due jobs", "count", len(jobs))

	var processed int
	for i := range jobs {
		job := &jobs[i]

		if err := s.processJob(ctx, job, now); err != nil {
			telemetry.SchedulerJobs.WithLabelValues("failed").Inc()
			s.logger.Error("failed to process job",
				"job_id", job.ID,
				"job_type", job.JobType,
				"business_key", job.BusinessKey,
				"error", err,
			)
			// Задание остаётся LOCKED
			continue
		}

		telemetry.SchedulerJobs.WithLabelValues("done").Inc()
		processed++
	}

	s.logger.Info("scheduler tick completed", "claimed", len(jobs), "processed", processed)
	return nil
}

// processJob обрабатывает одно захваченное задание.
func (s *Scheduler) processJob(ctx context.Context, job *domain.ScheduledJob, now time.Time) error {
	if job.JobType != domain.JobTypeStartProcess {
		return fmt.Errorf("unknown job type %q", job.JobType)
	}

	// Бизнес-ключ конкретного вхождения: для повторяющихся заданий
	// каждое вхождение запускает отдельный экземпляр процесса
	businessKey := job.BusinessKey
	if job.IsRecurring() {
		businessKey = fmt.Sprintf("%s-%d", job.BusinessKey, job.ScheduledAt.Unix())
	}

	processID, err := s.starter.StartProcess(ctx, job.ProcessType, businessKey, job.Payload, &job.ID)
	if err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	if err := s.store.MarkJobDone(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}

	s.logger.Info("job processed",
		"job_id", job.ID,
		"process_id", processID,
		"process_type", job.ProcessType,
		"business_key", businessKey,
	)

	if job.IsRecurring() {
		if err := s.enqueueNext(ctx, job, now); err != nil {
			// Не фатально для текущего вхождения, но повторения
			// прервутся — пишем громко
			s.logger.Error("failed to enqueue next occurrence",
				"job_id", job.ID,
				"cron_expr", job.CronExpr,
				"error", err,
			)
		}
	}
	return nil
}

// enqueueNext ставит следующее вхождение повторяющегося задания.
func (s *Scheduler) enqueueNext(ctx context.Context, job *domain.ScheduledJob, now time.Time) error {
	next, err := NextDue(job.CronExpr, now)
	if err != nil {
		return err
	}

	nextJob := &domain.ScheduledJob{
		JobType:     job.JobType,
		ProcessType: job.ProcessType,
		BusinessKey: job.BusinessKey,
		Payload:     job.Payload,
		CronExpr:    job.CronExpr,
		ScheduledAt: next,
		Status:      domain.JobStatusNew,
	}

	id, err := s.store.InsertJob(ctx, nextJob)
	if err != nil {
		return err
	}

	s.logger.Debug("enqueued next occurrence", "job_id", id, "scheduled_at", next)
	return nil
}
