package memory

import (
	"context"
	"maps"
	"time"

	"github.com/vborodin/procflow/internal/domain"
	"github.com/vborodin/procflow/internal/store"
)

// memTx — транзакция над снимком состояния.
// Работает под мьютексом Store, поэтому собственной синхронизации нет.
type memTx struct {
	st *state
}

func (t *memTx) GetInstance(ctx context.Context, id int64) (*domain.ProcessInstance, error) {
	for i := range t.st.instances {
		if t.st.instances[i].ID == id {
			inst := cloneInstance(t.st.instances[i])
			return &inst, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) LockInstanceByKey(ctx context.Context, processType, businessKey string) (*domain.ProcessInstance, error) {
	return t.GetInstanceByKey(ctx, processType, businessKey)
}

func (t *memTx) GetInstanceByKey(ctx context.Context, processType, businessKey string) (*domain.ProcessInstance, error) {
	for i := range t.st.instances {
		if t.st.instances[i].ProcessType == processType && t.st.instances[i].BusinessKey == businessKey {
			inst := cloneInstance(t.st.instances[i])
			return &inst, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) InsertInstance(ctx context.Context, inst *domain.ProcessInstance) (int64, error) {
	for i := range t.st.instances {
		if t.st.instances[i].ProcessType == inst.ProcessType && t.st.instances[i].BusinessKey == inst.BusinessKey {
			return 0, store.ErrDuplicateKey
		}
	}

	t.st.instanceSeq++
	row := cloneInstance(*inst)
	row.ID = t.st.instanceSeq
	t.st.instances = append(t.st.instances, row)
	return row.ID, nil
}

func (t *memTx) CompleteInstance(ctx context.Context, processID int64) error {
	for i := range t.st.instances {
		if t.st.instances[i].ID == processID {
			now := time.Now()
			t.st.instances[i].Status = domain.ProcessStatusCompleted
			t.st.instances[i].FinishedAt = &now
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *memTx) FailInstance(ctx context.Context, processID int64) error {
	for i := range t.st.instances {
		if t.st.instances[i].ID == processID {
			if t.st.instances[i].Status.IsTerminal() {
				return nil
			}
			t.st.instances[i].Status = domain.ProcessStatusFailed
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *memTx) InsertStepIfAbsent(ctx context.Context, step *domain.ProcessStep) (bool, error) {
	for i := range t.st.steps {
		if t.st.steps[i].ProcessInstanceID == step.ProcessInstanceID && t.st.steps[i].StepName == step.StepName {
			return false, nil
		}
	}

	t.st.stepSeq++
	row := cloneStep(*step)
	row.ID = t.st.stepSeq
	if row.Status == "" {
		row.Status = domain.StepStatusPending
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	t.st.steps = append(t.st.steps, row)
	return true, nil
}

func (t *memTx) LockStep(ctx context.Context, processID int64, stepName string) (*domain.ProcessStep, error) {
	for i := range t.st.steps {
		if t.st.steps[i].ProcessInstanceID == processID && t.st.steps[i].StepName == stepName {
			step := cloneStep(t.st.steps[i])
			return &step, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) ClaimStep(ctx context.Context, stepID int64) (bool, error) {
	for i := range t.st.steps {
		if t.st.steps[i].ID != stepID {
			continue
		}
		if t.st.steps[i].Status != domain.StepStatusPending {
			return false, nil
		}
		now := time.Now()
		t.st.steps[i].Status = domain.StepStatusRunning
		t.st.steps[i].Attempt++
		t.st.steps[i].LockedAt = &now
		return true, nil
	}
	return false, nil
}

func (t *memTx) FinishStepDone(ctx context.Context, stepID int64, output map[string]any) error {
	for i := range t.st.steps {
		if t.st.steps[i].ID != stepID {
			continue
		}
		if t.st.steps[i].Status == domain.StepStatusDone {
			return nil
		}
		now := time.Now()
		t.st.steps[i].Status = domain.StepStatusDone
		t.st.steps[i].OutputPayload = maps.Clone(output)
		t.st.steps[i].FinishedAt = &now
		return nil
	}
	return store.ErrNotFound
}

func (t *memTx) FinishStepFailed(ctx context.Context, stepID int64, lastError string) error {
	for i := range t.st.steps {
		if t.st.steps[i].ID != stepID {
			continue
		}
		if t.st.steps[i].Status == domain.StepStatusDone {
			return nil
		}
		now := time.Now()
		t.st.steps[i].Status = domain.StepStatusFailed
		t.st.steps[i].LastError = lastError
		t.st.steps[i].FinishedAt = &now
		return nil
	}
	return store.ErrNotFound
}

func (t *memTx) LockJoinGroup(ctx context.Context, processID int64, joinGroup string) ([]domain.ProcessStep, error) {
	var out []domain.ProcessStep
	for i := range t.st.steps {
		if t.st.steps[i].ProcessInstanceID == processID && t.st.steps[i].JoinGroup == joinGroup {
			out = append(out, cloneStep(t.st.steps[i]))
		}
	}
	return out, nil
}
