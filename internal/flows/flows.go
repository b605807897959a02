// Package flows содержит статический каталог процессов: графы
// переходов и привязку бизнес-исполнителей к именам шагов.
package flows

import (
	"github.com/vborodin/procflow/internal/graph"
	"github.com/vborodin/procflow/internal/runner"
	"github.com/vborodin/procflow/internal/steps"
)

// ProcessOrderFulfillment — тип процесса обработки заказа.
const ProcessOrderFulfillment = "order_fulfillment"

// OrderFulfillment строит граф процесса обработки заказа.
//
// Топология:
//
//	prepare ──┬─> call_api_a   ──┐
//	          ├─> call_api_b   ──┼─> post_dispatch ──┬─> archive_db    ──┬─> finalize
//	          └─> generate_doc ──┘                   └─> archive_files ──┘
func OrderFulfillment() *graph.Graph {
	return graph.MustNew(ProcessOrderFulfillment, steps.StepPrepare, steps.StepFinalize,
		map[string]graph.Transition{
			steps.StepPrepare: {
				FanOut: &graph.FanOut{
					Group:  "dispatch_group",
					Steps:  []string{steps.StepCallAPIA, steps.StepCallAPIB, steps.StepGenerateDoc},
					JoinTo: steps.StepPostDispatch,
				},
			},
			steps.StepCallAPIA:    {},
			steps.StepCallAPIB:    {},
			steps.StepGenerateDoc: {},
			steps.StepPostDispatch: {
				FanOut: &graph.FanOut{
					Group:  "archive_group",
					Steps:  []string{steps.StepArchiveDB, steps.StepArchiveFiles},
					JoinTo: steps.StepFinalize,
				},
			},
			steps.StepArchiveDB:    {},
			steps.StepArchiveFiles: {},
			steps.StepFinalize:     {},
		})
}

// Graphs возвращает реестр всех известных процессов.
func Graphs() *graph.Registry {
	r := graph.NewRegistry()
	r.Register(OrderFulfillment())
	return r
}

// Executors возвращает реестр бизнес-исполнителей всех шагов.
func Executors() *runner.Registry {
	r := runner.NewRegistry()
	r.Register(steps.StepPrepare, steps.NewPrepareStep())
	r.Register(steps.StepCallAPIA, steps.NewCallAPIAStep())
	r.Register(steps.StepCallAPIB, steps.NewCallAPIBStep())
	r.Register(steps.StepGenerateDoc, steps.NewGenerateDocStep())
	r.Register(steps.StepPostDispatch, steps.NewPostDispatchStep())
	r.Register(steps.StepArchiveDB, steps.NewArchiveDBStep())
	r.Register(steps.StepArchiveFiles, steps.NewArchiveFilesStep())
	r.Register(steps.StepFinalize, steps.NewFinalizeStep())
	return r
}
