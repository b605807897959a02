package graph

import "errors"

// Ошибки построения и поиска графов.
var (
	// ErrCyclicGraph — в графе обнаружен цикл.
	ErrCyclicGraph = errors.New("cyclic process graph")

	// ErrUnknownStep — переход ссылается на необъявленный шаг.
	ErrUnknownStep = errors.New("transition references unknown step")

	// ErrDuplicateJoinGroup — имя join-группы используется более одного раза.
	ErrDuplicateJoinGroup = errors.New("duplicate join group")

	// ErrInvalidGraph — прочие ошибки конфигурации графа.
	ErrInvalidGraph = errors.New("invalid process graph")

	// ErrUnknownProcessType — тип процесса не зарегистрирован в каталоге.
	ErrUnknownProcessType = errors.New("unknown process type")
)
