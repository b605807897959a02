// Package memory — хранилище состояния процессов в памяти.
//
// Реализует store.Store для тестов и локальной разработки без PostgreSQL.
// Транзакции сериализуются глобальным мьютексом и работают на копии
// состояния: при ошибке fn изменения отбрасываются целиком, при успехе
// копия атомарно заменяет состояние. Row lock'и отдельно не моделируются —
// сериализация транзакций даёт более сильную гарантию.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/vborodin/procflow/internal/domain"
	"github.com/vborodin/procflow/internal/store"
)

// Store — состояние в памяти.
type Store struct {
	mu sync.Mutex

	instances []domain.ProcessInstance
	steps     []domain.ProcessStep
	entries   []domain.ContextEntry
	jobs      []domain.ScheduledJob

	instanceSeq int64
	stepSeq     int64
	entrySeq    int64
	jobSeq      int64
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{}
}

// state — снимок всех таблиц для транзакции.
type state struct {
	instances []domain.ProcessInstance
	steps     []domain.ProcessStep
	entries   []domain.ContextEntry
	jobs      []domain.ScheduledJob

	instanceSeq int64
	stepSeq     int64
	entrySeq    int64
	jobSeq      int64
}

func (s *Store) snapshot() *state {
	return &state{
		instances:   cloneInstances(s.instances),
		steps:       cloneSteps(s.steps),
		entries:     cloneEntries(s.entries),
		jobs:        cloneJobs(s.jobs),
		instanceSeq: s.instanceSeq,
		stepSeq:     s.stepSeq,
		entrySeq:    s.entrySeq,
		jobSeq:      s.jobSeq,
	}
}

func (s *Store) restore(st *state) {
	s.instances = st.instances
	s.steps = st.steps
	s.entries = st.entries
	s.jobs = st.jobs
	s.instanceSeq = st.instanceSeq
	s.stepSeq = st.stepSeq
	s.entrySeq = st.entrySeq
	s.jobSeq = st.jobSeq
}

// WithTx выполняет fn на копии состояния под глобальным мьютексом.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.snapshot()
	tx := &memTx{st: st}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.restore(st)
	return nil
}

// --- Чтения вне транзакций ---

func (s *Store) GetInstance(ctx context.Context, id int64) (*domain.ProcessInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.instances {
		if s.instances[i].ID == id {
			inst := cloneInstance(s.instances[i])
			return &inst, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetStep(ctx context.Context, processID int64, stepName string) (*domain.ProcessStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.steps {
		if s.steps[i].ProcessInstanceID == processID && s.steps[i].StepName == stepName {
			step := cloneStep(s.steps[i])
			return &step, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListSteps(ctx context.Context, processID int64) ([]domain.ProcessStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ProcessStep
	for i := range s.steps {
		if s.steps[i].ProcessInstanceID == processID {
			out = append(out, cloneStep(s.steps[i]))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AppendContext(ctx context.Context, processID int64, stepName string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entrySeq++
	s.entries = append(s.entries, domain.ContextEntry{
		ID:                s.entrySeq,
		ProcessInstanceID: processID,
		StepName:          stepName,
		Payload:           maps.Clone(payload),
		CreatedAt:         time.Now(),
	})
	return nil
}

func (s *Store) ListContext(ctx context.Context, processID int64) ([]domain.ContextEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ContextEntry
	for i := range s.entries {
		if s.entries[i].ProcessInstanceID == processID {
			out = append(out, cloneEntry(s.entries[i]))
		}
	}
	return out, nil
}

func (s *Store) ListContextUntil(ctx context.Context, processID int64, stepName string) ([]domain.ContextEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var maxID int64
	for i := range s.entries {
		if s.entries[i].ProcessInstanceID == processID && s.entries[i].StepName == stepName && s.entries[i].ID > maxID {
			maxID = s.entries[i].ID
		}
	}
	if maxID == 0 {
		return nil, nil
	}

	var out []domain.ContextEntry
	for i := range s.entries {
		if s.entries[i].ProcessInstanceID == processID && s.entries[i].ID <= maxID {
			out = append(out, cloneEntry(s.entries[i]))
		}
	}
	return out, nil
}

func (s *Store) InsertJob(ctx context.Context, job *domain.ScheduledJob) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobSeq++
	j := cloneJob(*job)
	j.ID = s.jobSeq
	if j.Status == "" {
		j.Status = domain.JobStatusNew
	}
	s.jobs = append(s.jobs, j)
	return j.ID, nil
}

func (s *Store) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []int
	for i := range s.jobs {
		if s.jobs[i].Status == domain.JobStatusNew && !s.jobs[i].ScheduledAt.After(now) {
			due = append(due, i)
		}
	}
	sort.Slice(due, func(a, b int) bool {
		return s.jobs[due[a]].ScheduledAt.Before(s.jobs[due[b]].ScheduledAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	lockedAt := time.Now()
	claimed := make([]domain.ScheduledJob, 0, len(due))
	for _, i := range due {
		s.jobs[i].Status = domain.JobStatusLocked
		s.jobs[i].LockedAt = &lockedAt
		claimed = append(claimed, cloneJob(s.jobs[i]))
	}
	return claimed, nil
}

func (s *Store) MarkJobDone(ctx context.Context, jobID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		if s.jobs[i].ID == jobID {
			s.jobs[i].Status = domain.JobStatusDone
			return nil
		}
	}
	return store.ErrNotFound
}

// Jobs возвращает копию всех заданий (для проверок в тестах).
func (s *Store) Jobs() []domain.ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneJobs(s.jobs)
}

// --- Клонирование ---

func cloneInstance(in domain.ProcessInstance) domain.ProcessInstance {
	in.Payload = maps.Clone(in.Payload)
	return in
}

func cloneStep(in domain.ProcessStep) domain.ProcessStep {
	in.InputPayload = maps.Clone(in.InputPayload)
	in.OutputPayload = maps.Clone(in.OutputPayload)
	return in
}

func cloneEntry(in domain.ContextEntry) domain.ContextEntry {
	in.Payload = maps.Clone(in.Payload)
	return in
}

func cloneJob(in domain.ScheduledJob) domain.ScheduledJob {
	in.Payload = maps.Clone(in.Payload)
	return in
}

func cloneInstances(in []domain.ProcessInstance) []domain.ProcessInstance {
	out := make([]domain.ProcessInstance, len(in))
	for i := range in {
		out[i] = cloneInstance(in[i])
	}
	return out
}

func cloneSteps(in []domain.ProcessStep) []domain.ProcessStep {
	out := make([]domain.ProcessStep, len(in))
	for i := range in {
		out[i] = cloneStep(in[i])
	}
	return out
}

func cloneEntries(in []domain.ContextEntry) []domain.ContextEntry {
	out := make([]domain.ContextEntry, len(in))
	for i := range in {
		out[i] = cloneEntry(in[i])
	}
	return out
}

func cloneJobs(in []domain.ScheduledJob) []domain.ScheduledJob {
	out := make([]domain.ScheduledJob, len(in))
	for i := range in {
		out[i] = cloneJob(in[i])
	}
	return out
}
