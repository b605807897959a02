package steps

import (
	"context"
	"math/rand"

	"github.com/vborodin/procflow/internal/runner"
)

// Имена шагов параллельной группы dispatch_group.
const (
	StepCallAPIA    = "call_api_a"
	StepCallAPIB    = "call_api_b"
	StepGenerateDoc = "generate_doc"
)

// CallAPIAStep — вызов внешней системы A.
//
// Outputs:
//
//	{"apiA": "ok"}
type CallAPIAStep struct{}

// NewCallAPIAStep создаёт новый CallAPIAStep.
func NewCallAPIAStep() *CallAPIAStep {
	return &CallAPIAStep{}
}

// Execute выполняет вызов системы A.
func (s *CallAPIAStep) Execute(ctx context.Context, sc *runner.StepContext) (map[string]any, error) {
	return map[string]any{"apiA": "ok"}, nil
}

// CallAPIBStep — вызов внешней системы B.
//
// Outputs:
//
//	{"apiB": "ok"}
type CallAPIBStep struct{}

// NewCallAPIBStep создаёт новый CallAPIBStep.
func NewCallAPIBStep() *CallAPIBStep {
	return &CallAPIBStep{}
}

// Execute выполняет вызов системы B.
func (s *CallAPIBStep) Execute(ctx context.Context, sc *runner.StepContext) (map[string]any, error) {
	return map[string]any{"apiB": "ok"}, nil
}

// GenerateDocStep — генерация сопроводительного документа.
//
// Outputs:
//
//	{"documentId": 4217}
type GenerateDocStep struct {
	// docID позволяет подменить генератор идентификаторов в тестах.
	docID func() int
}

// NewGenerateDocStep создаёт новый GenerateDocStep.
func NewGenerateDocStep() *GenerateDocStep {
	return &GenerateDocStep{
		docID: func() int { return 1000 + rand.Intn(9000) },
	}
}

// Execute генерирует документ.
func (s *GenerateDocStep) Execute(ctx context.Context, sc *runner.StepContext) (map[string]any, error) {
	return map[string]any{"documentId": s.docID()}, nil
}
