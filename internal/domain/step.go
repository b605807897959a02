package domain

import "time"

// StepStatus — статус шага процесса.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → DONE
//	                  ↘ FAILED
//
// DONE и FAILED терминальны и поглощающие: повторные операции над
// завершённым шагом — no-op, а не ошибка. Это защита от дублей
// доставки при at-least-once семантике очереди.
type StepStatus string

const (
	// StepStatusPending — шаг создан, ожидает claim.
	StepStatusPending StepStatus = "PENDING"

	// StepStatusRunning — шаг захвачен воркером.
	StepStatusRunning StepStatus = "RUNNING"

	// StepStatusDone — шаг успешно завершён.
	StepStatusDone StepStatus = "DONE"

	// StepStatusFailed — шаг завершился с ошибкой.
	StepStatusFailed StepStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusDone, StepStatusFailed:
		return true
	default:
		return false
	}
}

// ProcessStep — один узел графа в рамках экземпляра процесса.
//
// Инвариант: не больше одной строки на (ProcessInstanceID, StepName),
// обеспечивается уникальным ограничением в БД. Строка шага — точка
// взаимного исключения: claim выполняется условным обновлением
// под row lock, а не через очередь.
type ProcessStep struct {
	// ID — идентификатор шага (bigserial).
	ID int64 `json:"id"`

	// ProcessInstanceID — ссылка на экземпляр процесса.
	ProcessInstanceID int64 `json:"process_instance_id"`

	// StepName — имя узла графа, уникально в рамках экземпляра.
	StepName string `json:"step_name"`

	// Status — текущий статус шага.
	Status StepStatus `json:"status"`

	// Attempt — счётчик попыток, инкрементируется при каждом claim.
	Attempt int `json:"attempt"`

	// JoinGroup — группа синхронизации; не пуста, если шаг — участник fan-out.
	JoinGroup string `json:"join_group,omitempty"`

	// InputPayload — входные данные шага.
	InputPayload map[string]any `json:"input_payload,omitempty"`

	// OutputPayload — результат выполнения шага.
	OutputPayload map[string]any `json:"output_payload,omitempty"`

	// LockedAt — время последнего claim.
	LockedAt *time.Time `json:"locked_at,omitempty"`

	// LastError — текст последней ошибки (усечён до 4000 символов).
	LastError string `json:"last_error,omitempty"`

	// CreatedAt — время создания строки.
	CreatedAt time.Time `json:"created_at"`

	// FinishedAt — время перехода в DONE или FAILED.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
