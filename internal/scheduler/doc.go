// Package scheduler реализует планировщик отложенных заданий.
//
// Scheduler периодически захватывает задания со статусом NEW и
// истекшим scheduled_at (FOR UPDATE SKIP LOCKED) и запускает по ним
// процессы через Orchestrator. Успешное задание переводится в DONE,
// проваленное остаётся в LOCKED для ручного разбора. Повторяющиеся
// задания (cron_expr) после запуска ставят в очередь следующее
// вхождение.
//
// Структура:
//   - scheduler.go — основная логика (Run, Tick, processJob)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Leader Election:
//
// Scheduler не реализует leader election самостоятельно.
// Это делается в main.go через pg_try_advisory_lock.
// Цикл Run() крутится только у лидера.
package scheduler
