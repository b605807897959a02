package store

import (
	"context"
	"errors"
	"time"

	"github.com/vborodin/procflow/internal/domain"
)

// Общие ошибки хранилища.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey — нарушение уникального ограничения.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Store — транзакционное хранилище состояния процессов.
//
// Единственные примитивы синхронизации движка — row lock, условное
// обновление, insert-if-absent и skip-locked выборка; все они выражены
// методами этого интерфейса и Tx. Реализации: internal/repo (PostgreSQL)
// и store/memory (для тестов и локальной разработки).
type Store interface {
	// WithTx выполняет fn в транзакции. Ошибка fn откатывает транзакцию.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// GetInstance возвращает экземпляр процесса по ID.
	GetInstance(ctx context.Context, id int64) (*domain.ProcessInstance, error)

	// GetStep возвращает шаг по (processID, stepName) без блокировки.
	GetStep(ctx context.Context, processID int64, stepName string) (*domain.ProcessStep, error)

	// ListSteps возвращает все шаги экземпляра в порядке создания.
	ListSteps(ctx context.Context, processID int64) ([]domain.ProcessStep, error)

	// AppendContext добавляет запись в append-only журнал контекста.
	AppendContext(ctx context.Context, processID int64, stepName string, payload map[string]any) error

	// ListContext возвращает записи журнала в порядке возрастания ID.
	ListContext(ctx context.Context, processID int64) ([]domain.ContextEntry, error)

	// ListContextUntil возвращает записи с ID не больше максимального ID,
	// записанного шагом stepName. Если шаг ничего не писал — пустой список.
	ListContextUntil(ctx context.Context, processID int64, stepName string) ([]domain.ContextEntry, error)

	// InsertJob добавляет отложенное задание и возвращает его ID.
	InsertJob(ctx context.Context, job *domain.ScheduledJob) (int64, error)

	// ClaimDueJobs захватывает до limit заданий со статусом NEW и
	// scheduled_at <= now. Выборка неблокирующая: строки, захваченные
	// конкурентным планировщиком, пропускаются. Захваченные задания
	// переводятся в LOCKED.
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledJob, error)

	// MarkJobDone переводит задание в DONE.
	MarkJobDone(ctx context.Context, jobID int64) error
}

// Tx — операции внутри одной транзакции.
//
// Lock-методы берут row lock до конца транзакции (FOR UPDATE).
type Tx interface {
	// GetInstance возвращает экземпляр процесса по ID.
	GetInstance(ctx context.Context, id int64) (*domain.ProcessInstance, error)

	// LockInstanceByKey читает экземпляр по (processType, businessKey)
	// под row lock. ErrNotFound, если экземпляра нет.
	LockInstanceByKey(ctx context.Context, processType, businessKey string) (*domain.ProcessInstance, error)

	// GetInstanceByKey читает экземпляр по ключу без блокировки.
	GetInstanceByKey(ctx context.Context, processType, businessKey string) (*domain.ProcessInstance, error)

	// InsertInstance вставляет экземпляр и возвращает его ID.
	// ErrDuplicateKey при гонке на (processType, businessKey).
	InsertInstance(ctx context.Context, inst *domain.ProcessInstance) (int64, error)

	// CompleteInstance переводит экземпляр в COMPLETED и ставит finished_at.
	CompleteInstance(ctx context.Context, processID int64) error

	// FailInstance переводит экземпляр в FAILED, если он ещё не терминален.
	FailInstance(ctx context.Context, processID int64) error

	// InsertStepIfAbsent вставляет шаг, если строки (processID, stepName)
	// ещё нет. Возвращает true, если вставка реально произошла.
	InsertStepIfAbsent(ctx context.Context, step *domain.ProcessStep) (bool, error)

	// LockStep читает шаг по (processID, stepName) под row lock.
	LockStep(ctx context.Context, processID int64, stepName string) (*domain.ProcessStep, error)

	// ClaimStep — условный перевод PENDING → RUNNING с инкрементом
	// attempt и отметкой locked_at. Возвращает true, если строка
	// была обновлена (claim выигран).
	ClaimStep(ctx context.Context, stepID int64) (bool, error)

	// FinishStepDone переводит шаг в DONE с записью output_payload.
	// Шаг в DONE не трогается.
	FinishStepDone(ctx context.Context, stepID int64, output map[string]any) error

	// FinishStepFailed переводит шаг в FAILED с записью last_error.
	// Шаг в DONE не трогается: DONE побеждает поздний сигнал об ошибке.
	FinishStepFailed(ctx context.Context, stepID int64, lastError string) error

	// LockJoinGroup читает все шаги join-группы под row lock,
	// в порядке возрастания ID.
	LockJoinGroup(ctx context.Context, processID int64, joinGroup string) ([]domain.ProcessStep, error)
}
