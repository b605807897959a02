package graph

import "fmt"

// Registry — каталог графов по типу процесса.
//
// Заполняется один раз при старте; после этого только читается,
// поэтому синхронизация не нужна.
type Registry struct {
	graphs map[string]*Graph
}

// NewRegistry создаёт пустой каталог.
func NewRegistry() *Registry {
	return &Registry{graphs: make(map[string]*Graph)}
}

// Register добавляет граф в каталог.
// Граф с тем же типом процесса перезаписывается.
func (r *Registry) Register(g *Graph) {
	r.graphs[g.ProcessType()] = g
}

// Get возвращает граф для типа процесса.
func (r *Registry) Get(processType string) (*Graph, error) {
	g, ok := r.graphs[processType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcessType, processType)
	}
	return g, nil
}
