package steps

import (
	"context"

	"github.com/vborodin/procflow/internal/runner"
)

// StepFinalize — имя завершающего шага процесса.
const StepFinalize = "finalize"

// FinalizeStep — терминальный шаг процесса order_fulfillment.
//
// После его успешного завершения оркестратор переводит экземпляр
// процесса в COMPLETED.
//
// Outputs:
//
//	{"finalized": true}
type FinalizeStep struct{}

// NewFinalizeStep создаёт новый FinalizeStep.
func NewFinalizeStep() *FinalizeStep {
	return &FinalizeStep{}
}

// Execute завершает процесс.
func (s *FinalizeStep) Execute(ctx context.Context, sc *runner.StepContext) (map[string]any, error) {
	return map[string]any{"finalized": true}, nil
}
