package steps

import (
	"context"
	"time"

	"github.com/vborodin/procflow/internal/runner"
)

// StepPrepare — имя шага подготовки заказа.
const StepPrepare = "prepare"

// PrepareStep — первый шаг процесса order_fulfillment.
//
// Фиксирует момент начала обработки заказа.
//
// Outputs:
//
//	{
//	    "preparedAt": "2026-08-31T12:00:00Z"
//	}
type PrepareStep struct {
	// now позволяет подменить источник времени в тестах.
	now func() time.Time
}

// NewPrepareStep создаёт новый PrepareStep.
func NewPrepareStep() *PrepareStep {
	return &PrepareStep{now: time.Now}
}

// Execute выполняет подготовку.
func (s *PrepareStep) Execute(ctx context.Context, sc *runner.StepContext) (map[string]any, error) {
	return map[string]any{
		"preparedAt": s.now().UTC().Format(time.RFC3339),
	}, nil
}
