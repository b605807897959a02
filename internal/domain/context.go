package domain

import "time"

// ContextEntry — одна запись append-only журнала контекста процесса.
//
// Журнал никогда не обновляется и не удаляется: каждый шаг только
// добавляет запись со своим именем. Поэтому параллельные fan-out ветви
// не конкурируют за общие данные — гонок на запись нет по построению.
//
// Слитый контекст процесса — это shallow-объединение payload'ов всех
// записей в порядке возрастания ID; поздние записи перекрывают ранние
// по совпадающим ключам.
type ContextEntry struct {
	// ID — монотонный идентификатор записи (bigserial), задаёт порядок слияния.
	ID int64 `json:"id"`

	// ProcessInstanceID — ссылка на экземпляр процесса.
	ProcessInstanceID int64 `json:"process_instance_id"`

	// StepName — шаг, записавший payload.
	StepName string `json:"step_name"`

	// Payload — кусок контекста, добавленный шагом.
	Payload map[string]any `json:"payload"`

	// CreatedAt — время записи.
	CreatedAt time.Time `json:"created_at"`
}
