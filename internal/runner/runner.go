package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vborodin/procflow/internal/ctxstore"
	"github.com/vborodin/procflow/internal/domain"
	"github.com/vborodin/procflow/internal/graph"
	"github.com/vborodin/procflow/internal/mq"
	"github.com/vborodin/procflow/internal/orchestrator"
	"github.com/vborodin/procflow/internal/store"
	"github.com/vborodin/procflow/internal/telemetry"
)

// errDrop — внутренний маркер "отбросить сообщение без ошибки".
// Дубли доставки и проигранные claim-гонки — штатные ситуации.
var errDrop = errors.New("drop message")

// Runner выполняет run-сообщения шагов.
type Runner struct {
	store     store.Store
	ctxStore  *ctxstore.Store
	orch      *orchestrator.Orchestrator
	graphs    *graph.Registry
	executors *Registry
	logger    *slog.Logger
}

// Config — конфигурация Runner.
type Config struct {
	Store        store.Store
	ContextStore *ctxstore.Store
	Orchestrator *orchestrator.Orchestrator
	Graphs       *graph.Registry
	Executors    *Registry
	Logger       *slog.Logger
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	executors := cfg.Executors
	if executors == nil {
		executors = NewRegistry()
	}

	return &Runner{
		store:     cfg.Store,
		ctxStore:  cfg.ContextStore,
		orch:      cfg.Orchestrator,
		graphs:    cfg.Graphs,
		executors: executors,
		logger:    logger,
	}
}

// RunStep обрабатывает одно run-сообщение.
//
// nil возвращается и при успехе, и при молчаливом отбрасывании
// (дубль доставки, проигранный claim). Ошибка означает провал
// бизнес-выполнения: шаг уже помечен FAILED, а вызывающая сторона
// должна применить свою retry-политику (nack → redelivery).
func (r *Runner) RunStep(ctx context.Context, msg mq.RunStepPayload) error {
	logger := r.logger.With("process_id", msg.ProcessID, "step", msg.StepName)

	claimed, err := r.claim(ctx, msg)
	if errors.Is(err, errDrop) {
		telemetry.StepsTotal.WithLabelValues(msg.StepName, "dropped").Inc()
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("step claimed", "attempt", claimed.Attempt)

	started := time.Now()
	output, execErr := r.execute(ctx, claimed, msg)
	telemetry.StepDuration.WithLabelValues(msg.StepName).Observe(time.Since(started).Seconds())

	if execErr != nil {
		telemetry.StepsTotal.WithLabelValues(msg.StepName, "failed").Inc()
		logger.Error("step failed", "error", execErr)

		if err := r.orch.MarkStepFailed(ctx, msg.ProcessID, msg.StepName, execErr.Error()); err != nil {
			logger.Error("failed to mark step failed", "error", err)
		}
		// Ре-сигнал наружу: инфраструктура доставки применит
		// собственный retry/backoff
		return execErr
	}

	if err := r.finish(ctx, claimed, output); err != nil {
		telemetry.StepsTotal.WithLabelValues(msg.StepName, "failed").Inc()
		logger.Error("step finalization failed", "error", err)

		if markErr := r.orch.MarkStepFailed(ctx, msg.ProcessID, msg.StepName, err.Error()); markErr != nil {
			logger.Error("failed to mark step failed", "error", markErr)
		}
		return err
	}

	telemetry.StepsTotal.WithLabelValues(msg.StepName, "done").Inc()
	logger.Info("step done")
	return nil
}

// claim — транзакция захвата шага.
//
// Guard'ы в порядке проверки:
//   - нет строки → дубль/мусорное сообщение, отбросить;
//   - DONE или FAILED → работа уже завершена, отбросить;
//   - RUNNING при attempt > 1 → шагом владеет более ранняя попытка,
//     отбросить;
//   - условный UPDATE не сработал и статус был не RUNNING →
//     claim проигран конкуренту, отбросить.
//
// RUNNING при attempt == 1 проходит дальше без нового claim'а:
// это повторная доставка после падения воркера между claim'ом
// и завершением — единственный встроенный путь повтора.
func (r *Runner) claim(ctx context.Context, msg mq.RunStepPayload) (*domain.ProcessStep, error) {
	var claimed *domain.ProcessStep

	err := r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		step, err := tx.LockStep(ctx, msg.ProcessID, msg.StepName)
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Debug("unknown step reference, dropping",
				"process_id", msg.ProcessID,
				"step", msg.StepName,
			)
			return errDrop
		}
		if err != nil {
			return err
		}

		if step.Status.IsTerminal() {
			return errDrop
		}

		if step.Status == domain.StepStatusRunning && step.Attempt > 1 {
			return errDrop
		}

		ok, err := tx.ClaimStep(ctx, step.ID)
		if err != nil {
			return err
		}
		if !ok && step.Status != domain.StepStatusRunning {
			return errDrop
		}
		if ok {
			step.Status = domain.StepStatusRunning
			step.Attempt++
		}

		claimed = step
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// execute — бизнес-выполнение вне каких-либо транзакций БД.
func (r *Runner) execute(ctx context.Context, step *domain.ProcessStep, msg mq.RunStepPayload) (map[string]any, error) {
	merged, err := r.ctxStore.Load(ctx, msg.ProcessID)
	if err != nil {
		return nil, err
	}

	// Input берётся из строки шага: она авторитетна,
	// сообщение могло быть отправлено старым кодом без input'а
	sc := NewStepContext(msg.ProcessID, step.StepName, step.InputPayload, merged)

	output := map[string]any{}
	if executor, ok := r.executors.Get(step.StepName); ok {
		out, err := executor.Execute(ctx, sc)
		if err != nil {
			return nil, err
		}
		output = out
	}
	return output, nil
}

// finish — дозапись результата и переходы графа.
func (r *Runner) finish(ctx context.Context, step *domain.ProcessStep, output map[string]any) error {
	processID := step.ProcessInstanceID

	if err := r.ctxStore.Append(ctx, processID, step.StepName, output); err != nil {
		return err
	}

	if err := r.orch.MarkStepDone(ctx, processID, step.StepName, output); err != nil {
		return err
	}

	inst, err := r.store.GetInstance(ctx, processID)
	if err != nil {
		return err
	}
	g, err := r.graphs.Get(inst.ProcessType)
	if err != nil {
		return err
	}

	if t, ok := g.TransitionFor(step.StepName); ok {
		switch {
		case t.Next != "":
			if err := r.orch.CreateStep(ctx, processID, t.Next, output, ""); err != nil {
				return err
			}
		case t.FanOut != nil:
			if err := r.orch.FanOut(ctx, processID, t.FanOut.Group, t.FanOut.Steps, output); err != nil {
				return err
			}
		}
	}

	// Участник fan-out пробует закрыть свою join-группу
	if step.JoinGroup != "" {
		if target, ok := g.ResolveJoinTarget(step.JoinGroup); ok {
			if err := r.orch.TryJoin(ctx, processID, step.JoinGroup, target); err != nil {
				return err
			}
		}
	}
	return nil
}
