package runner

import "maps"

// StepContext — данные, доступные бизнес-логике шага.
//
// Собирается на каждый вызов: input шага поверх слитого общего
// контекста процесса. Set меняет только локальную копию текущего
// вызова — в общий журнал попадает исключительно output, возвращённый
// executor'ом.
type StepContext struct {
	// ProcessID — экземпляр процесса.
	ProcessID int64

	// StepName — выполняемый шаг.
	StepName string

	data map[string]any
}

// NewStepContext строит контекст вызова.
// input накладывается поверх merged (input приоритетнее).
func NewStepContext(processID int64, stepName string, input, merged map[string]any) *StepContext {
	data := make(map[string]any, len(merged)+len(input))
	maps.Copy(data, merged)
	maps.Copy(data, input)

	return &StepContext{
		ProcessID: processID,
		StepName:  stepName,
		data:      data,
	}
}

// Get возвращает значение по ключу.
func (c *StepContext) Get(key string) (any, bool) {
	v, ok := c.data[key]
	return v, ok
}

// GetDefault возвращает значение по ключу или def, если ключа нет.
func (c *StepContext) GetDefault(key string, def any) any {
	if v, ok := c.data[key]; ok {
		return v
	}
	return def
}

// Set записывает значение в локальные данные вызова.
func (c *StepContext) Set(key string, value any) {
	c.data[key] = value
}

// Data возвращает копию данных контекста.
func (c *StepContext) Data() map[string]any {
	return maps.Clone(c.data)
}
