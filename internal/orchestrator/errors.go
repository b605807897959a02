package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrInstanceNotFound — экземпляр процесса не найден.
	ErrInstanceNotFound = errors.New("process instance not found")

	// ErrStepNotFound — шаг не найден. Ошибка программирования или
	// конфигурации графа, не ретраится.
	ErrStepNotFound = errors.New("process step not found")

	// ErrJoinGroupEmpty — tryJoin вызван для группы без единого шага.
	// Нарушение структурного инварианта графа, фатально.
	ErrJoinGroupEmpty = errors.New("join group is empty")
)
