package domain

import "time"

// ProcessStatus — статус экземпляра процесса.
//
// Жизненный цикл:
//
//	RUNNING → COMPLETED
//	        ↘ FAILED
type ProcessStatus string

const (
	// ProcessStatusRunning — процесс выполняется.
	ProcessStatusRunning ProcessStatus = "RUNNING"

	// ProcessStatusCompleted — терминальный шаг завершён, процесс успешен.
	ProcessStatusCompleted ProcessStatus = "COMPLETED"

	// ProcessStatusFailed — один из шагов завершился с ошибкой.
	ProcessStatusFailed ProcessStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s ProcessStatus) IsTerminal() bool {
	switch s {
	case ProcessStatusCompleted, ProcessStatusFailed:
		return true
	default:
		return false
	}
}

// ProcessInstance — одно выполнение процесса указанного типа
// для конкретного бизнес-ключа.
//
// Пара (ProcessType, BusinessKey) уникальна — это естественный ключ
// идемпотентности для запуска процесса. Запись никогда не удаляется;
// статус меняет только оркестратор.
type ProcessInstance struct {
	// ID — идентификатор экземпляра (bigserial).
	ID int64 `json:"id"`

	// ProcessType — тип процесса (имя графа), например "order_fulfillment".
	ProcessType string `json:"process_type"`

	// BusinessKey — бизнес-ключ, уникален в рамках ProcessType.
	BusinessKey string `json:"business_key"`

	// Status — текущий статус процесса.
	Status ProcessStatus `json:"status"`

	// Payload — исходные данные триггера.
	Payload map[string]any `json:"payload,omitempty"`

	// SourceJobID — ссылка на ScheduledJob, породивший процесс.
	// Прокидывается в каждое run-сообщение для трассировки.
	SourceJobID *int64 `json:"source_job_id,omitempty"`

	// StartedAt — время создания экземпляра.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения (COMPLETED).
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
