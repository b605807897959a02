package graph

import (
	"fmt"
	"sort"
)

// FanOut — описатель параллельного ветвления.
//
// Все шаги Steps создаются с общей join-группой Group; когда каждый
// из них достигает DONE, ровно одна из ветвей создаёт шаг JoinTo.
type FanOut struct {
	// Group — имя join-группы. Уникально в рамках графа.
	Group string

	// Steps — участники ветвления.
	Steps []string

	// JoinTo — шаг, создаваемый после завершения всех участников.
	JoinTo string
}

// Transition — описатель перехода для одного узла графа.
//
// Ровно одно из полей задано, либо оба пусты (лист без переходов).
type Transition struct {
	// Next — следующий шаг для линейного перехода.
	Next string

	// FanOut — параллельное ветвление.
	FanOut *FanOut
}

// IsLeaf возвращает true, если у узла нет исходящих переходов.
func (t Transition) IsLeaf() bool {
	return t.Next == "" && t.FanOut == nil
}

// Graph — статический граф процесса: фиксированный набор именованных
// узлов и переходов для одного типа процесса.
//
// Граф валидируется при построении: все ссылки объявлены, join-группы
// уникальны, циклов нет. Ошибка конфигурации — ошибка построения,
// а не времени выполнения.
type Graph struct {
	processType string
	initial     string
	terminal    string
	nodes       map[string]Transition
	joinTargets map[string]string
}

// New строит и валидирует граф процесса.
//
// initial — шаг, создаваемый при запуске процесса;
// terminal — шаг, завершение которого переводит процесс в COMPLETED.
func New(processType, initial, terminal string, nodes map[string]Transition) (*Graph, error) {
	if processType == "" {
		return nil, fmt.Errorf("%w: empty process type", ErrInvalidGraph)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrInvalidGraph)
	}

	g := &Graph{
		processType: processType,
		initial:     initial,
		terminal:    terminal,
		nodes:       nodes,
		joinTargets: make(map[string]string),
	}

	if _, ok := nodes[initial]; !ok {
		return nil, fmt.Errorf("%w: initial step %q", ErrUnknownStep, initial)
	}
	if _, ok := nodes[terminal]; !ok {
		return nil, fmt.Errorf("%w: terminal step %q", ErrUnknownStep, terminal)
	}

	if err := g.resolveJoinGroups(); err != nil {
		return nil, err
	}
	if err := g.checkReferences(); err != nil {
		return nil, err
	}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}

	return g, nil
}

// MustNew — вариант New для статических каталогов; паникует при
// ошибке конфигурации.
func MustNew(processType, initial, terminal string, nodes map[string]Transition) *Graph {
	g, err := New(processType, initial, terminal, nodes)
	if err != nil {
		panic(err)
	}
	return g
}

// ProcessType возвращает тип процесса.
func (g *Graph) ProcessType() string { return g.processType }

// Initial возвращает имя начального шага.
func (g *Graph) Initial() string { return g.initial }

// Terminal возвращает имя терминального шага.
func (g *Graph) Terminal() string { return g.terminal }

// TransitionFor возвращает описатель перехода для шага.
func (g *Graph) TransitionFor(step string) (Transition, bool) {
	t, ok := g.nodes[step]
	return t, ok
}

// ResolveJoinTarget возвращает шаг, создаваемый после завершения
// всех участников join-группы.
func (g *Graph) ResolveJoinTarget(group string) (string, bool) {
	target, ok := g.joinTargets[group]
	return target, ok
}

// Steps возвращает отсортированный список узлов графа.
func (g *Graph) Steps() []string {
	steps := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		steps = append(steps, name)
	}
	sort.Strings(steps)
	return steps
}

// resolveJoinGroups строит отображение группа → join-цель
// и проверяет уникальность имён групп.
func (g *Graph) resolveJoinGroups() error {
	for name, t := range g.nodes {
		if t.Next != "" && t.FanOut != nil {
			return fmt.Errorf("%w: step %q has both next and fan_out", ErrInvalidGraph, name)
		}
		if t.FanOut == nil {
			continue
		}
		fan := t.FanOut
		if fan.Group == "" || fan.JoinTo == "" || len(fan.Steps) == 0 {
			return fmt.Errorf("%w: step %q has incomplete fan_out", ErrInvalidGraph, name)
		}
		if _, exists := g.joinTargets[fan.Group]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateJoinGroup, fan.Group)
		}
		g.joinTargets[fan.Group] = fan.JoinTo
	}
	return nil
}

// checkReferences проверяет, что все переходы ссылаются на объявленные шаги.
func (g *Graph) checkReferences() error {
	for name, t := range g.nodes {
		if t.Next != "" {
			if _, ok := g.nodes[t.Next]; !ok {
				return fmt.Errorf("%w: %q → %q", ErrUnknownStep, name, t.Next)
			}
		}
		if t.FanOut != nil {
			for _, member := range t.FanOut.Steps {
				if _, ok := g.nodes[member]; !ok {
					return fmt.Errorf("%w: %q fan_out member %q", ErrUnknownStep, name, member)
				}
			}
			if _, ok := g.nodes[t.FanOut.JoinTo]; !ok {
				return fmt.Errorf("%w: %q join target %q", ErrUnknownStep, name, t.FanOut.JoinTo)
			}
		}
	}
	return nil
}

// checkAcyclic проверяет ацикличность через алгоритм Кана.
//
// Рёбра: next-переходы, шаг → участники fan-out и участники → join-цель.
func (g *Graph) checkAcyclic() error {
	inDegree := make(map[string]int, len(g.nodes))
	edges := make(map[string][]string, len(g.nodes))

	for name := range g.nodes {
		inDegree[name] = 0
	}

	addEdge := func(from, to string) {
		edges[from] = append(edges[from], to)
		inDegree[to]++
	}

	for name, t := range g.nodes {
		if t.Next != "" {
			addEdge(name, t.Next)
		}
		if t.FanOut != nil {
			for _, member := range t.FanOut.Steps {
				addEdge(name, member)
				addEdge(member, t.FanOut.JoinTo)
			}
		}
	}

	queue := make([]string, 0, len(g.nodes))
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}

	visited := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		visited++

		for _, next := range edges[name] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(g.nodes) {
		return fmt.Errorf("%w: %s", ErrCyclicGraph, g.processType)
	}
	return nil
}
