// Package cli реализует команды отладочной консоли procflow.
//
// Команды работают напрямую с БД (без HTTP API):
//   - process show ID          — экземпляр процесса, его шаги и контекст
//   - step debug PROCESS STEP  — синхронный прогон одного шага
//   - job seed                 — постановка отложенного задания
//
// Вывод — таблица (по умолчанию) или JSON (--json).
package cli
