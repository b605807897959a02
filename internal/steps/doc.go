// Package steps содержит бизнес-исполнители шагов процесса
// order_fulfillment.
//
// Каждый исполнитель — небольшая единица работы без состояния:
// вход он получает через runner.StepContext, результат возвращает
// картой, которая дописывается в журнал контекста процесса.
package steps
