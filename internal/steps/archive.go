package steps

import (
	"context"

	"github.com/vborodin/procflow/internal/runner"
)

// Имена шагов параллельной группы archive_group.
const (
	StepPostDispatch = "post_dispatch"
	StepArchiveDB    = "archive_db"
	StepArchiveFiles = "archive_files"
)

// PostDispatchStep — точка схождения dispatch_group.
//
// Подтверждает, что все параллельные вызовы внешних систем
// завершились, и раскрывает архивную пару шагов.
type PostDispatchStep struct{}

// NewPostDispatchStep создаёт новый PostDispatchStep.
func NewPostDispatchStep() *PostDispatchStep {
	return &PostDispatchStep{}
}

// Execute подтверждает завершение группы dispatch.
func (s *PostDispatchStep) Execute(ctx context.Context, sc *runner.StepContext) (map[string]any, error) {
	return map[string]any{"dispatched": true}, nil
}

// ArchiveDBStep — архивация записей в БД.
//
// Outputs:
//
//	{"dbArchived": true}
type ArchiveDBStep struct{}

// NewArchiveDBStep создаёт новый ArchiveDBStep.
func NewArchiveDBStep() *ArchiveDBStep {
	return &ArchiveDBStep{}
}

// Execute архивирует данные в БД.
func (s *ArchiveDBStep) Execute(ctx context.Context, sc *runner.StepContext) (map[string]any, error) {
	return map[string]any{"dbArchived": true}, nil
}

// ArchiveFilesStep — архивация файлов заказа.
//
// Outputs:
//
//	{"filesArchived": true}
type ArchiveFilesStep struct{}

// NewArchiveFilesStep создаёт новый ArchiveFilesStep.
func NewArchiveFilesStep() *ArchiveFilesStep {
	return &ArchiveFilesStep{}
}

// Execute архивирует файлы.
func (s *ArchiveFilesStep) Execute(ctx context.Context, sc *runner.StepContext) (map[string]any, error) {
	return map[string]any{"filesArchived": true}, nil
}
