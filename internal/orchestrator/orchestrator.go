package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vborodin/procflow/internal/domain"
	"github.com/vborodin/procflow/internal/graph"
	"github.com/vborodin/procflow/internal/mq"
	"github.com/vborodin/procflow/internal/store"
	"github.com/vborodin/procflow/internal/telemetry"
)

// maxErrorLen — предел длины last_error на шаге.
const maxErrorLen = 4000

// Dispatcher отправляет run-сообщения в очередь.
// Боевая реализация — mq.Publisher.
type Dispatcher interface {
	PublishRunStep(ctx context.Context, payload mq.RunStepPayload) error
}

// Orchestrator — владелец переходов состояния процессов.
type Orchestrator struct {
	store    store.Store
	graphs   *graph.Registry
	dispatch Dispatcher
	logger   *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	Store      store.Store
	Graphs     *graph.Registry
	Dispatcher Dispatcher
	Logger     *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		store:    cfg.Store,
		graphs:   cfg.Graphs,
		dispatch: cfg.Dispatcher,
		logger:   logger,
	}
}

// StartProcess запускает экземпляр процесса для бизнес-ключа.
//
// Идемпотентен и безопасен при конкурентных вызовах с одним ключом:
// существующий экземпляр ищется под row lock; гонка вставки на
// уникальном ограничении (processType, businessKey) разрешается
// повторным чтением строки, вставленной конкурентом. Возвращает ID
// экземпляра — нового или уже существующего.
func (o *Orchestrator) StartProcess(ctx context.Context, processType, businessKey string, payload map[string]any, sourceJobID *int64) (int64, error) {
	g, err := o.graphs.Get(processType)
	if err != nil {
		return 0, err
	}

	var processID int64
	var createdInstance, createdInitial bool

	err = o.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		inst, err := tx.LockInstanceByKey(ctx, processType, businessKey)
		switch {
		case err == nil:
			processID = inst.ID

		case errors.Is(err, store.ErrNotFound):
			id, err := tx.InsertInstance(ctx, &domain.ProcessInstance{
				ProcessType: processType,
				BusinessKey: businessKey,
				Status:      domain.ProcessStatusRunning,
				Payload:     payload,
				SourceJobID: sourceJobID,
				StartedAt:   time.Now(),
			})
			if errors.Is(err, store.ErrDuplicateKey) {
				// Конкурент вставил строку между нашим lock-чтением
				// и вставкой — перечитываем его экземпляр
				existing, err := tx.GetInstanceByKey(ctx, processType, businessKey)
				if err != nil {
					return fmt.Errorf("refetch instance after duplicate: %w", err)
				}
				processID = existing.ID
				break
			}
			if err != nil {
				return err
			}
			processID = id
			createdInstance = true

		default:
			return err
		}

		created, err := tx.InsertStepIfAbsent(ctx, &domain.ProcessStep{
			ProcessInstanceID: processID,
			StepName:          g.Initial(),
		})
		if err != nil {
			return err
		}
		createdInitial = created
		return nil
	})
	if err != nil {
		return 0, err
	}

	if createdInstance {
		telemetry.ProcessesStarted.WithLabelValues(processType).Inc()
		o.logger.Info("process started",
			"process_id", processID,
			"process_type", processType,
			"business_key", businessKey,
		)
	}

	if createdInitial {
		if err := o.dispatchStep(ctx, processID, g.Initial(), nil); err != nil {
			return 0, err
		}
	}

	return processID, nil
}

// CreateStep идемпотентно создаёт шаг и диспатчит его run-сообщение,
// только если вставка реально произошла — даже если сам вызов
// ретраится, сообщение на логическое создание шага уйдёт не более
// одного раза.
func (o *Orchestrator) CreateStep(ctx context.Context, processID int64, stepName string, input map[string]any, joinGroup string) error {
	var created bool

	err := o.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		created, err = tx.InsertStepIfAbsent(ctx, &domain.ProcessStep{
			ProcessInstanceID: processID,
			StepName:          stepName,
			JoinGroup:         joinGroup,
			InputPayload:      input,
		})
		return err
	})
	if err != nil {
		return err
	}

	if created {
		return o.dispatchStep(ctx, processID, stepName, input)
	}
	return nil
}

// FanOut в одной транзакции создаёт шаги-участники с общей
// join-группой, после коммита диспатчит только реально вставленные.
func (o *Orchestrator) FanOut(ctx context.Context, processID int64, joinGroup string, steps []string, payload map[string]any) error {
	var created []string

	err := o.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		created = created[:0]
		for _, stepName := range steps {
			ok, err := tx.InsertStepIfAbsent(ctx, &domain.ProcessStep{
				ProcessInstanceID: processID,
				StepName:          stepName,
				JoinGroup:         joinGroup,
				InputPayload:      payload,
			})
			if err != nil {
				return err
			}
			if ok {
				created = append(created, stepName)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, stepName := range created {
		if err := o.dispatchStep(ctx, processID, stepName, payload); err != nil {
			return err
		}
	}
	return nil
}

// TryJoin — кооперативная синхронизация fan-out ветвей.
//
// Все шаги группы блокируются FOR UPDATE; если хоть один не DONE —
// коммит без эффекта (join повторит ветвь, которая завершится позже).
// Если все DONE, nextStep вставляется insert-if-absent: из N гоняющихся
// завершений ровно одно наблюдает "все DONE и вставил именно я" —
// это точка линеаризации перехода.
func (o *Orchestrator) TryJoin(ctx context.Context, processID int64, joinGroup, nextStep string) error {
	var shouldDispatch bool

	err := o.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		members, err := tx.LockJoinGroup(ctx, processID, joinGroup)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return fmt.Errorf("%w: %q in process %d", ErrJoinGroupEmpty, joinGroup, processID)
		}

		for _, member := range members {
			if member.Status != domain.StepStatusDone {
				return nil
			}
		}

		created, err := tx.InsertStepIfAbsent(ctx, &domain.ProcessStep{
			ProcessInstanceID: processID,
			StepName:          nextStep,
		})
		if err != nil {
			return err
		}
		shouldDispatch = created
		return nil
	})
	if err != nil {
		return err
	}

	if shouldDispatch {
		o.logger.Debug("join completed",
			"process_id", processID,
			"join_group", joinGroup,
			"next_step", nextStep,
		)
		return o.dispatchStep(ctx, processID, nextStep, nil)
	}
	return nil
}

// MarkStepDone переводит шаг в DONE с записью результата.
// Повторный вызов — no-op. Завершение терминального шага графа
// переводит экземпляр в COMPLETED.
func (o *Orchestrator) MarkStepDone(ctx context.Context, processID int64, stepName string, output map[string]any) error {
	return o.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		step, err := tx.LockStep(ctx, processID, stepName)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %d/%s", ErrStepNotFound, processID, stepName)
		}
		if err != nil {
			return err
		}

		if step.Status == domain.StepStatusDone {
			return nil
		}

		if err := tx.FinishStepDone(ctx, step.ID, output); err != nil {
			return err
		}

		inst, err := tx.GetInstance(ctx, processID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrInstanceNotFound, processID)
		}
		if err != nil {
			return err
		}

		g, err := o.graphs.Get(inst.ProcessType)
		if err != nil {
			return err
		}

		if stepName == g.Terminal() {
			if err := tx.CompleteInstance(ctx, processID); err != nil {
				return err
			}
			o.logger.Info("process completed", "process_id", processID)
		}
		return nil
	})
}

// MarkStepFailed переводит шаг в FAILED и проваливает экземпляр,
// если тот ещё не терминален. DONE побеждает поздний сигнал об ошибке:
// для завершённого шага вызов — no-op.
func (o *Orchestrator) MarkStepFailed(ctx context.Context, processID int64, stepName, errMsg string) error {
	return o.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		step, err := tx.LockStep(ctx, processID, stepName)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %d/%s", ErrStepNotFound, processID, stepName)
		}
		if err != nil {
			return err
		}

		if step.Status == domain.StepStatusDone {
			return nil
		}

		if err := tx.FinishStepFailed(ctx, step.ID, truncate(errMsg, maxErrorLen)); err != nil {
			return err
		}
		if err := tx.FailInstance(ctx, processID); err != nil {
			return err
		}

		o.logger.Warn("step failed",
			"process_id", processID,
			"step", stepName,
			"error", errMsg,
		)
		return nil
	})
}

// dispatchStep — единственный путь отправки run-сообщений.
//
// source_job_id хранится на экземпляре и перечитывается перед каждым
// диспатчем: все сообщения одного процесса несут одно и то же
// причинное происхождение.
func (o *Orchestrator) dispatchStep(ctx context.Context, processID int64, stepName string, input map[string]any) error {
	inst, err := o.store.GetInstance(ctx, processID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrInstanceNotFound, processID)
		}
		return err
	}

	return o.dispatch.PublishRunStep(ctx, mq.RunStepPayload{
		ProcessID:   processID,
		StepName:    stepName,
		Input:       input,
		SourceJobID: inst.SourceJobID,
	})
}

// truncate обрезает строку до limit рун.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
