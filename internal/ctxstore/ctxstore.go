// Package ctxstore — общий контекст процесса.
//
// Контекст хранится как append-only журнал: каждый шаг добавляет
// запись со своим output'ом, ничего не перезаписывая. Поэтому
// параллельные fan-out ветви не конкурируют за запись — read-modify-write
// цикла нет вообще.
//
// Слитый контекст — shallow-объединение payload'ов всех записей в
// порядке возрастания ID; при совпадении ключей поздняя запись
// перекрывает раннюю.
package ctxstore

import (
	"context"
	"maps"

	"github.com/vborodin/procflow/internal/domain"
	"github.com/vborodin/procflow/internal/store"
)

// Store — доступ к журналу контекста поверх хранилища.
type Store struct {
	db store.Store
}

// New создаёт Store.
func New(db store.Store) *Store {
	return &Store{db: db}
}

// Append добавляет output шага в журнал.
// Пустой payload не записывается.
func (s *Store) Append(ctx context.Context, processID int64, stepName string, payload map[string]any) error {
	if len(payload) == 0 {
		return nil
	}
	return s.db.AppendContext(ctx, processID, stepName, payload)
}

// Load возвращает слитый контекст процесса.
func (s *Store) Load(ctx context.Context, processID int64) (map[string]any, error) {
	entries, err := s.db.ListContext(ctx, processID)
	if err != nil {
		return nil, err
	}
	return Merge(entries), nil
}

// LoadUntilStep возвращает контекст, видимый на момент последней
// записи шага stepName. Используется для replay и отладки.
func (s *Store) LoadUntilStep(ctx context.Context, processID int64, stepName string) (map[string]any, error) {
	entries, err := s.db.ListContextUntil(ctx, processID, stepName)
	if err != nil {
		return nil, err
	}
	return Merge(entries), nil
}

// Merge сливает записи журнала в один словарь.
// Записи должны быть упорядочены по возрастанию ID; поздние ключи
// перекрывают ранние. Merge — shallow, вложенные объекты не сливаются.
func Merge(entries []domain.ContextEntry) map[string]any {
	merged := make(map[string]any)
	for _, entry := range entries {
		maps.Copy(merged, entry.Payload)
	}
	return merged
}
