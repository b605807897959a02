// Package orchestrator владеет всеми легальными переходами состояния
// процесса: запуск экземпляра, создание шага, fan-out, попытка join'а,
// завершение и провал шага.
//
// Все мутации транзакционны и идемпотентны: каждую операцию можно
// вызвать произвольное число раз с теми же аргументами — состояние
// сойдётся к одному и тому же. Дисциплина диспатча единая: run-сообщение
// уходит только если вставка шага реально произошла в этом вызове,
// поэтому повтор операции не порождает дублей сообщений.
//
// Синхронизация — только средствами хранилища: row lock на строке
// экземпляра или шага плюс условные записи. Внешних координаторов нет.
package orchestrator
