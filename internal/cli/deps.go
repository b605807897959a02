package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vborodin/procflow/internal/ctxstore"
	"github.com/vborodin/procflow/internal/flows"
	"github.com/vborodin/procflow/internal/graph"
	"github.com/vborodin/procflow/internal/mq"
	"github.com/vborodin/procflow/internal/orchestrator"
	"github.com/vborodin/procflow/internal/repo"
	"github.com/vborodin/procflow/internal/runner"
	"github.com/vborodin/procflow/internal/store"
)

// Deps — зависимости CLI-команд, собранные поверх прямого
// подключения к БД. RabbitMQ не используется: диспетчеризация
// шагов накапливается локально и печатается пользователю.
type Deps struct {
	Store    store.Store
	Ctx      *ctxstore.Store
	Graphs   *graph.Registry
	Runner   *runner.Runner
	Orch     *orchestrator.Orchestrator
	Dispatch *LocalDispatcher

	closeFn func()
}

// NewDeps подключается к БД и собирает зависимости CLI.
func NewDeps(ctx context.Context, logger *slog.Logger) (*Deps, error) {
	pool, err := repo.NewPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	db := repo.New(pool)
	cstore := ctxstore.New(db)
	graphs := flows.Graphs()
	dispatch := NewLocalDispatcher()

	orch := orchestrator.New(orchestrator.Config{
		Store:      db,
		Graphs:     graphs,
		Dispatcher: dispatch,
		Logger:     logger,
	})

	run := runner.New(runner.Config{
		Store:        db,
		ContextStore: cstore,
		Orchestrator: orch,
		Graphs:       graphs,
		Executors:    flows.Executors(),
		Logger:       logger,
	})

	return &Deps{
		Store:    db,
		Ctx:      cstore,
		Graphs:   graphs,
		Runner:   run,
		Orch:     orch,
		Dispatch: dispatch,
		closeFn:  pool.Close,
	}, nil
}

// Close освобождает подключение к БД.
func (d *Deps) Close() {
	if d.closeFn != nil {
		d.closeFn()
	}
}

// LocalDispatcher накапливает run-сообщения вместо публикации в MQ.
type LocalDispatcher struct {
	mu       sync.Mutex
	messages []mq.RunStepPayload
}

// NewLocalDispatcher создаёт пустой LocalDispatcher.
func NewLocalDispatcher() *LocalDispatcher {
	return &LocalDispatcher{}
}

// PublishRunStep сохраняет сообщение в локальной очереди.
func (d *LocalDispatcher) PublishRunStep(ctx context.Context, payload mq.RunStepPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, payload)
	return nil
}

// Drain возвращает накопленные сообщения и очищает очередь.
func (d *LocalDispatcher) Drain() []mq.RunStepPayload {
	d.mu.Lock()
	defer d.mu.Unlock()
	msgs := d.messages
	d.messages = nil
	return msgs
}
