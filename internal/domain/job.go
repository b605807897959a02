package domain

import "time"

// JobStatus — статус отложенного задания планировщика.
//
// Жизненный цикл:
//
//	NEW → LOCKED → DONE
//
// Задание, на котором StartProcess упал, остаётся в LOCKED
// для ручного разбора; остальные задания батча оно не блокирует.
type JobStatus string

const (
	// JobStatusNew — задание ожидает обработки.
	JobStatusNew JobStatus = "NEW"

	// JobStatusLocked — задание захвачено планировщиком.
	JobStatusLocked JobStatus = "LOCKED"

	// JobStatusDone — задание обработано.
	JobStatusDone JobStatus = "DONE"
)

// JobTypeStartProcess — единственный поддерживаемый тип задания:
// запуск нового экземпляра процесса.
const JobTypeStartProcess = "START_PROCESS"

// ScheduledJob — отложенное задание на запуск процесса.
//
// Создаётся внешней системой или через CLI (job seed); потребляется
// планировщиком ровно один раз. Задание с CronExpr — повторяющееся:
// после обработки планировщик ставит следующее вхождение.
type ScheduledJob struct {
	// ID — идентификатор задания (bigserial).
	ID int64 `json:"id"`

	// JobType — тип задания (START_PROCESS).
	JobType string `json:"job_type"`

	// ProcessType — тип запускаемого процесса.
	ProcessType string `json:"process_type"`

	// BusinessKey — бизнес-ключ процесса. Для повторяющихся заданий —
	// префикс, к которому добавляется unix-время вхождения.
	BusinessKey string `json:"business_key"`

	// Payload — исходные данные для процесса.
	Payload map[string]any `json:"payload,omitempty"`

	// CronExpr — cron-выражение для повторяющихся заданий (опционально).
	CronExpr string `json:"cron_expr,omitempty"`

	// ScheduledAt — время, начиная с которого задание считается due.
	ScheduledAt time.Time `json:"scheduled_at"`

	// Status — текущий статус задания.
	Status JobStatus `json:"status"`

	// LockedAt — время захвата планировщиком.
	LockedAt *time.Time `json:"locked_at,omitempty"`
}

// IsRecurring возвращает true для повторяющихся заданий.
func (j *ScheduledJob) IsRecurring() bool {
	return j.CronExpr != ""
}
