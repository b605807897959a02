// Package runner выполняет run-сообщения шагов.
//
// # Протокол
//
// На каждое доставленное сообщение {processId, stepName}:
//
//  1. Транзакция claim'а: шаг читается под row lock; отсутствующая
//     строка, терминальный статус или чужое in-flight выполнение —
//     сообщение молча отбрасывается (дубль доставки); иначе условный
//     UPDATE PENDING → RUNNING с инкрементом attempt.
//  2. Транзакция коммитится ДО бизнес-выполнения: сколь угодно долгий
//     внешний вызов никогда не держит блокировку БД.
//  3. Бизнес-логика шага (если зарегистрирована) выполняется с
//     контекстом: input шага плюс слитый общий контекст процесса.
//     Узлы без executor'а — чистые маршрутизаторы — успешны вакуумно.
//  4. Output дописывается в журнал контекста, шаг помечается DONE,
//     вычисляются переходы графа (next / fan-out / попытка join'а).
//  5. Любая ошибка шагов 3–4 помечает шаг FAILED и возвращается
//     инфраструктуре доставки для её retry-политики; повторные
//     доставки отфильтруют guard'ы пункта 1.
//
// Время жизни RUNNING не ограничено: упавший между claim'ом и DONE
// воркер оставляет шаг в RUNNING, и после первой неудачной попытки
// ветвь стоит до ручного вмешательства. Lease/heartbeat механизма
// в движке нет.
package runner
