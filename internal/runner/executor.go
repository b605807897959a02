package runner

import "context"

// Executor — бизнес-логика одного шага процесса.
//
// Реализации регистрируются по имени шага; узлы графа без
// зарегистрированного executor'а (fan-out и join хабы) считаются
// успешными с пустым output'ом.
type Executor interface {
	Execute(ctx context.Context, sc *StepContext) (map[string]any, error)
}

// Registry — реестр executor'ов по имени шага.
//
// Заполняется один раз при старте, дальше только читается.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register добавляет executor для шага.
func (r *Registry) Register(stepName string, executor Executor) {
	r.executors[stepName] = executor
}

// Get возвращает executor шага, если он зарегистрирован.
func (r *Registry) Get(stepName string) (Executor, bool) {
	executor, ok := r.executors[stepName]
	return executor, ok
}
