package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/vborodin/procflow/internal/ctxstore"
	"github.com/vborodin/procflow/internal/domain"
	"github.com/vborodin/procflow/internal/graph"
	"github.com/vborodin/procflow/internal/mq"
	"github.com/vborodin/procflow/internal/orchestrator"
	"github.com/vborodin/procflow/internal/store"
	"github.com/vborodin/procflow/internal/store/memory"
)

// fakeDispatcher накапливает отправленные run-сообщения.
type fakeDispatcher struct {
	mu       sync.Mutex
	messages []mq.RunStepPayload
}

func (d *fakeDispatcher) PublishRunStep(ctx context.Context, payload mq.RunStepPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, payload)
	return nil
}

func (d *fakeDispatcher) countFor(stepName string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, m := range d.messages {
		if m.StepName == stepName {
			n++
		}
	}
	return n
}

// countingExecutor считает вызовы и возвращает фиксированный output.
type countingExecutor struct {
	calls  atomic.Int64
	output map[string]any
	err    error
}

func (e *countingExecutor) Execute(ctx context.Context, sc *StepContext) (map[string]any, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return e.output, nil
}

type env struct {
	db       *memory.Store
	orch     *orchestrator.Orchestrator
	runner   *Runner
	dispatch *fakeDispatcher
}

// newEnv собирает Runner поверх линейного графа a → b.
func newEnv(t *testing.T, executors *Registry) *env {
	t.Helper()

	g := graph.MustNew("linear", "a", "b", map[string]graph.Transition{
		"a": {Next: "b"},
		"b": {},
	})
	graphs := graph.NewRegistry()
	graphs.Register(g)

	db := memory.New()
	dispatch := &fakeDispatcher{}

	orch := orchestrator.New(orchestrator.Config{
		Store:      db,
		Graphs:     graphs,
		Dispatcher: dispatch,
	})

	r := New(Config{
		Store:        db,
		ContextStore: ctxstore.New(db),
		Orchestrator: orch,
		Graphs:       graphs,
		Executors:    executors,
	})

	return &env{db: db, orch: orch, runner: r, dispatch: dispatch}
}

func TestRunStep_ExecutesAndTransitions(t *testing.T) {
	ctx := context.Background()

	exec := &countingExecutor{output: map[string]any{"result": "ok"}}
	executors := NewRegistry()
	executors.Register("a", exec)

	e := newEnv(t, executors)

	id, err := e.orch.StartProcess(ctx, "linear", "key-1", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := e.runner.RunStep(ctx, mq.RunStepPayload{ProcessID: id, StepName: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if exec.calls.Load() != 1 {
		t.Errorf("expected one execution, got %d", exec.calls.Load())
	}

	step, err := e.db.GetStep(ctx, id, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.Status != domain.StepStatusDone {
		t.Errorf("expected DONE, got %s", step.Status)
	}
	if step.Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", step.Attempt)
	}
	if step.OutputPayload["result"] != "ok" {
		t.Errorf("unexpected output: %v", step.OutputPayload)
	}

	// Переход a → b: шаг создан и отдиспатчен с output'ом a
	next, err := e.db.GetStep(ctx, id, "b")
	if err != nil {
		t.Fatalf("next step not created: %v", err)
	}
	if next.InputPayload["result"] != "ok" {
		t.Errorf("expected output of a as input of b, got %v", next.InputPayload)
	}
	if e.dispatch.countFor("b") != 1 {
		t.Errorf("expected one dispatch of b, got %d", e.dispatch.countFor("b"))
	}

	// Output дописан в журнал контекста
	merged, err := ctxstore.New(e.db).Load(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged["result"] != "ok" {
		t.Errorf("expected context to contain result, got %v", merged)
	}
}

func TestRunStep_DuplicateDeliveryDropped(t *testing.T) {
	ctx := context.Background()

	exec := &countingExecutor{output: map[string]any{"result": "ok"}}
	executors := NewRegistry()
	executors.Register("a", exec)

	e := newEnv(t, executors)

	id, _ := e.orch.StartProcess(ctx, "linear", "key-1", nil, nil)
	msg := mq.RunStepPayload{ProcessID: id, StepName: "a"}

	if err := e.runner.RunStep(ctx, msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Повторная доставка того же сообщения
	if err := e.runner.RunStep(ctx, msg); err != nil {
		t.Fatalf("duplicate delivery should be silent, got %v", err)
	}

	if exec.calls.Load() != 1 {
		t.Errorf("expected single execution, got %d", exec.calls.Load())
	}
	if e.dispatch.countFor("b") != 1 {
		t.Errorf("expected single dispatch of b, got %d", e.dispatch.countFor("b"))
	}
}

func TestRunStep_UnknownStepDropped(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, NewRegistry())

	id, _ := e.orch.StartProcess(ctx, "linear", "key-1", nil, nil)

	// Сообщение про шаг, строки которого нет
	err := e.runner.RunStep(ctx, mq.RunStepPayload{ProcessID: id, StepName: "ghost"})
	if err != nil {
		t.Errorf("expected silent drop, got %v", err)
	}
}

func TestRunStep_ConcurrentClaimExactlyOne(t *testing.T) {
	ctx := context.Background()

	exec := &countingExecutor{output: map[string]any{"result": "ok"}}
	executors := NewRegistry()
	executors.Register("a", exec)

	e := newEnv(t, executors)

	id, _ := e.orch.StartProcess(ctx, "linear", "key-1", nil, nil)
	msg := mq.RunStepPayload{ProcessID: id, StepName: "a"}

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.runner.RunStep(ctx, msg); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if exec.calls.Load() != 1 {
		t.Errorf("expected exactly one execution, got %d", exec.calls.Load())
	}
	if e.dispatch.countFor("b") != 1 {
		t.Errorf("expected exactly one dispatch of b, got %d", e.dispatch.countFor("b"))
	}
}

func TestRunStep_FailureMarksStepAndInstance(t *testing.T) {
	ctx := context.Background()

	exec := &countingExecutor{err: errors.New("boom")}
	executors := NewRegistry()
	executors.Register("a", exec)

	e := newEnv(t, executors)

	id, _ := e.orch.StartProcess(ctx, "linear", "key-1", nil, nil)

	err := e.runner.RunStep(ctx, mq.RunStepPayload{ProcessID: id, StepName: "a"})
	if err == nil {
		t.Fatal("expected execution error to propagate")
	}

	step, _ := e.db.GetStep(ctx, id, "a")
	if step.Status != domain.StepStatusFailed {
		t.Errorf("expected FAILED, got %s", step.Status)
	}
	if step.LastError != "boom" {
		t.Errorf("expected last error boom, got %q", step.LastError)
	}

	inst, _ := e.db.GetInstance(ctx, id)
	if inst.Status != domain.ProcessStatusFailed {
		t.Errorf("expected FAILED instance, got %s", inst.Status)
	}

	// Переход не выполняется
	if e.dispatch.countFor("b") != 0 {
		t.Errorf("expected no dispatch of b, got %d", e.dispatch.countFor("b"))
	}
}

// Повторная доставка после падения воркера: шаг RUNNING с первой
// попыткой выполняется заново.
func TestRunStep_RedeliveryAfterCrashProceeds(t *testing.T) {
	ctx := context.Background()

	exec := &countingExecutor{output: map[string]any{"result": "ok"}}
	executors := NewRegistry()
	executors.Register("a", exec)

	e := newEnv(t, executors)

	id, _ := e.orch.StartProcess(ctx, "linear", "key-1", nil, nil)

	// Имитируем упавший воркер: claim прошёл, завершения не было
	err := e.db.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		step, err := tx.LockStep(ctx, id, "a")
		if err != nil {
			return err
		}
		_, err = tx.ClaimStep(ctx, step.ID)
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := e.runner.RunStep(ctx, mq.RunStepPayload{ProcessID: id, StepName: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if exec.calls.Load() != 1 {
		t.Errorf("expected re-execution, got %d calls", exec.calls.Load())
	}

	step, _ := e.db.GetStep(ctx, id, "a")
	if step.Status != domain.StepStatusDone {
		t.Errorf("expected DONE, got %s", step.Status)
	}
}

// Шаг без зарегистрированного исполнителя завершается с пустым output'ом.
func TestRunStep_NoExecutorIsNoop(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, NewRegistry())

	id, _ := e.orch.StartProcess(ctx, "linear", "key-1", nil, nil)

	if err := e.runner.RunStep(ctx, mq.RunStepPayload{ProcessID: id, StepName: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step, _ := e.db.GetStep(ctx, id, "a")
	if step.Status != domain.StepStatusDone {
		t.Errorf("expected DONE, got %s", step.Status)
	}
}
