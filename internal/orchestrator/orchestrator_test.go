package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/vborodin/procflow/internal/domain"
	"github.com/vborodin/procflow/internal/graph"
	"github.com/vborodin/procflow/internal/mq"
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

func (d *fakeDispatcher) sent() []mq.RunStepPayload {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]mq.RunStepPayload(nil), d.messages...)
}

func (d *fakeDispatcher) countFor(stepName string) int {
	n := 0
	for _, m := range d.sent() {
		if m.StepName == stepName {
			n++
		}
	}
	return n
}

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()

	return graph.MustNew("test_process", "first", "last", map[string]graph.Transition{
		"first": {
			FanOut: &graph.FanOut{
				Group:  "pair",
				Steps:  []string{"left", "right"},
				JoinTo: "last",
			},
		},
		"left":  {},
		"right": {},
		"last":  {},
	})
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *memory.Store, *fakeDispatcher) {
	t.Helper()

	db := memory.New()
	dispatch := &fakeDispatcher{}
	graphs := graph.NewRegistry()
	graphs.Register(testGraph(t))

	orch := New(Config{
		Store:      db,
		Graphs:     graphs,
		Dispatcher: dispatch,
	})
	return orch, db, dispatch
}

// StartProcess Tests

func TestStartProcess_CreatesInstanceAndInitialStep(t *testing.T) {
	ctx := context.Background()
	orch, db, dispatch := newTestOrchestrator(t)

	id, err := orch.StartProcess(ctx, "test_process", "order-1", map[string]any{"k": "v"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inst, err := db.GetInstance(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Status != domain.ProcessStatusRunning {
		t.Errorf("expected RUNNING, got %s", inst.Status)
	}
	if inst.BusinessKey != "order-1" {
		t.Errorf("expected business key order-1, got %q", inst.BusinessKey)
	}

	step, err := db.GetStep(ctx, id, "first")
	if err != nil {
		t.Fatalf("initial step not created: %v", err)
	}
	if step.Status != domain.StepStatusPending {
		t.Errorf("expected PENDING, got %s", step.Status)
	}

	if dispatch.countFor("first") != 1 {
		t.Errorf("expected one dispatch of first, got %d", dispatch.countFor("first"))
	}
}

func TestStartProcess_IdempotentByBusinessKey(t *testing.T) {
	ctx := context.Background()
	orch, db, dispatch := newTestOrchestrator(t)

	id1, err := orch.StartProcess(ctx, "test_process", "order-1", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := orch.StartProcess(ctx, "test_process", "order-1", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if id1 != id2 {
		t.Errorf("expected same instance, got %d and %d", id1, id2)
	}

	steps, err := db.ListSteps(ctx, id1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(steps) != 1 {
		t.Errorf("expected single initial step, got %d", len(steps))
	}

	// Второй вызов не диспатчит повторно
	if dispatch.countFor("first") != 1 {
		t.Errorf("expected one dispatch, got %d", dispatch.countFor("first"))
	}
}

func TestStartProcess_ConcurrentSameKey(t *testing.T) {
	ctx := context.Background()
	orch, db, dispatch := newTestOrchestrator(t)

	const workers = 8
	ids := make([]int64, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = orch.StartProcess(ctx, "test_process", "order-1", nil, nil)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("worker %d got different instance %d", i, ids[i])
		}
	}

	steps, err := db.ListSteps(ctx, ids[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(steps) != 1 {
		t.Errorf("expected single initial step, got %d", len(steps))
	}
	if dispatch.countFor("first") != 1 {
		t.Errorf("expected one dispatch, got %d", dispatch.countFor("first"))
	}
}

func TestStartProcess_UnknownType(t *testing.T) {
	ctx := context.Background()
	orch, _, _ := newTestOrchestrator(t)

	_, err := orch.StartProcess(ctx, "nope", "order-1", nil, nil)
	if !errors.Is(err, graph.ErrUnknownProcessType) {
		t.Errorf("expected ErrUnknownProcessType, got %v", err)
	}
}

func TestStartProcess_CarriesSourceJobID(t *testing.T) {
	ctx := context.Background()
	orch, _, dispatch := newTestOrchestrator(t)

	jobID := int64(42)
	if _, err := orch.StartProcess(ctx, "test_process", "order-1", nil, &jobID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := dispatch.sent()
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	if msgs[0].SourceJobID == nil || *msgs[0].SourceJobID != jobID {
		t.Errorf("expected source job id %d, got %v", jobID, msgs[0].SourceJobID)
	}
}

// CreateStep / FanOut Tests

func TestCreateStep_DispatchOnlyOnInsert(t *testing.T) {
	ctx := context.Background()
	orch, _, dispatch := newTestOrchestrator(t)

	id, err := orch.StartProcess(ctx, "test_process", "order-1", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := orch.CreateStep(ctx, id, "left", map[string]any{"in": 1}, "pair"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := orch.CreateStep(ctx, id, "left", map[string]any{"in": 1}, "pair"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dispatch.countFor("left") != 1 {
		t.Errorf("expected one dispatch of left, got %d", dispatch.countFor("left"))
	}
}

func TestFanOut_IdempotentOnRetry(t *testing.T) {
	ctx := context.Background()
	orch, db, dispatch := newTestOrchestrator(t)

	id, err := orch.StartProcess(ctx, "test_process", "order-1", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := map[string]any{"from": "first"}
	if err := orch.FanOut(ctx, id, "pair", []string{"left", "right"}, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Повторная доставка сообщения, вызвавшего fan-out
	if err := orch.FanOut(ctx, id, "pair", []string{"left", "right"}, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	steps, err := db.ListSteps(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(steps) != 3 { // first + left + right
		t.Errorf("expected 3 steps, got %d", len(steps))
	}

	if dispatch.countFor("left") != 1 || dispatch.countFor("right") != 1 {
		t.Errorf("expected one dispatch per member, got left=%d right=%d",
			dispatch.countFor("left"), dispatch.countFor("right"))
	}

	left, err := db.GetStep(ctx, id, "left")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if left.JoinGroup != "pair" {
		t.Errorf("expected join group pair, got %q", left.JoinGroup)
	}
}

// TryJoin Tests

func TestTryJoin_WaitsForAllMembers(t *testing.T) {
	ctx := context.Background()
	orch, db, dispatch := newTestOrchestrator(t)

	id, _ := orch.StartProcess(ctx, "test_process", "order-1", nil, nil)
	orch.FanOut(ctx, id, "pair", []string{"left", "right"}, nil)

	if err := orch.MarkStepDone(ctx, id, "left", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := orch.TryJoin(ctx, id, "pair", "last"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// right ещё не DONE — last не создаётся
	if _, err := db.GetStep(ctx, id, "last"); err == nil {
		t.Fatal("join target created before all members are done")
	}

	if err := orch.MarkStepDone(ctx, id, "right", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := orch.TryJoin(ctx, id, "pair", "last"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := db.GetStep(ctx, id, "last"); err != nil {
		t.Fatalf("join target not created: %v", err)
	}
	if dispatch.countFor("last") != 1 {
		t.Errorf("expected one dispatch of last, got %d", dispatch.countFor("last"))
	}
}

func TestTryJoin_ConcurrentExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	orch, _, dispatch := newTestOrchestrator(t)

	id, _ := orch.StartProcess(ctx, "test_process", "order-1", nil, nil)
	orch.FanOut(ctx, id, "pair", []string{"left", "right"}, nil)
	orch.MarkStepDone(ctx, id, "left", nil)
	orch.MarkStepDone(ctx, id, "right", nil)

	const racers = 8
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := orch.TryJoin(ctx, id, "pair", "last"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if dispatch.countFor("last") != 1 {
		t.Errorf("expected exactly one dispatch of last, got %d", dispatch.countFor("last"))
	}
}

func TestTryJoin_EmptyGroup(t *testing.T) {
	ctx := context.Background()
	orch, _, _ := newTestOrchestrator(t)

	id, _ := orch.StartProcess(ctx, "test_process", "order-1", nil, nil)

	err := orch.TryJoin(ctx, id, "ghost", "last")
	if !errors.Is(err, ErrJoinGroupEmpty) {
		t.Errorf("expected ErrJoinGroupEmpty, got %v", err)
	}
}

// MarkStepDone / MarkStepFailed Tests

func TestMarkStepDone_Idempotent(t *testing.T) {
	ctx := context.Background()
	orch, db, _ := newTestOrchestrator(t)

	id, _ := orch.StartProcess(ctx, "test_process", "order-1", nil, nil)

	if err := orch.MarkStepDone(ctx, id, "first", map[string]any{"out": 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Повторный сигнал завершения не перетирает результат
	if err := orch.MarkStepDone(ctx, id, "first", map[string]any{"out": 999}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step, err := db.GetStep(ctx, id, "first")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.Status != domain.StepStatusDone {
		t.Errorf("expected DONE, got %s", step.Status)
	}
	if step.OutputPayload["out"] != 1 {
		t.Errorf("expected first output preserved, got %v", step.OutputPayload)
	}
}

func TestMarkStepDone_UnknownStep(t *testing.T) {
	ctx := context.Background()
	orch, _, _ := newTestOrchestrator(t)

	id, _ := orch.StartProcess(ctx, "test_process", "order-1", nil, nil)

	err := orch.MarkStepDone(ctx, id, "ghost", nil)
	if !errors.Is(err, ErrStepNotFound) {
		t.Errorf("expected ErrStepNotFound, got %v", err)
	}
}

func TestMarkStepDone_TerminalCompletesInstance(t *testing.T) {
	ctx := context.Background()
	orch, db, _ := newTestOrchestrator(t)

	id, _ := orch.StartProcess(ctx, "test_process", "order-1", nil, nil)
	orch.FanOut(ctx, id, "pair", []string{"left", "right"}, nil)
	orch.MarkStepDone(ctx, id, "left", nil)
	orch.MarkStepDone(ctx, id, "right", nil)
	orch.TryJoin(ctx, id, "pair", "last")
	orch.MarkStepDone(ctx, id, "first", nil)

	if err := orch.MarkStepDone(ctx, id, "last", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inst, err := db.GetInstance(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Status != domain.ProcessStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", inst.Status)
	}
	if inst.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
}

func TestMarkStepFailed_FailsInstance(t *testing.T) {
	ctx := context.Background()
	orch, db, _ := newTestOrchestrator(t)

	id, _ := orch.StartProcess(ctx, "test_process", "order-1", nil, nil)

	if err := orch.MarkStepFailed(ctx, id, "first", "boom"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step, _ := db.GetStep(ctx, id, "first")
	if step.Status != domain.StepStatusFailed {
		t.Errorf("expected FAILED, got %s", step.Status)
	}
	if step.LastError != "boom" {
		t.Errorf("expected last error boom, got %q", step.LastError)
	}

	inst, _ := db.GetInstance(ctx, id)
	if inst.Status != domain.ProcessStatusFailed {
		t.Errorf("expected FAILED instance, got %s", inst.Status)
	}
}

func TestMarkStepFailed_DoneWins(t *testing.T) {
	ctx := context.Background()
	orch, db, _ := newTestOrchestrator(t)

	id, _ := orch.StartProcess(ctx, "test_process", "order-1", nil, nil)
	orch.MarkStepDone(ctx, id, "first", map[string]any{"out": 1})

	// Поздний сигнал об ошибке после успешного завершения
	if err := orch.MarkStepFailed(ctx, id, "first", "late failure"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step, _ := db.GetStep(ctx, id, "first")
	if step.Status != domain.StepStatusDone {
		t.Errorf("expected DONE to win, got %s", step.Status)
	}

	inst, _ := db.GetInstance(ctx, id)
	if inst.Status != domain.ProcessStatusRunning {
		t.Errorf("expected instance untouched, got %s", inst.Status)
	}
}

func TestMarkStepFailed_TruncatesError(t *testing.T) {
	ctx := context.Background()
	orch, db, _ := newTestOrchestrator(t)

	id, _ := orch.StartProcess(ctx, "test_process", "order-1", nil, nil)

	long := strings.Repeat("x", maxErrorLen+500)
	if err := orch.MarkStepFailed(ctx, id, "first", long); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step, _ := db.GetStep(ctx, id, "first")
	if len(step.LastError) != maxErrorLen {
		t.Errorf("expected error truncated to %d, got %d", maxErrorLen, len(step.LastError))
	}
}
