// Package store определяет интерфейс хранилища состояния процессов.
//
// Движок синхронизируется только средствами реляционного хранилища:
// row lock, условное обновление, insert-if-absent, skip-locked выборка.
// Никакого внешнего координатора нет. Пакет описывает эти примитивы
// как интерфейсы Store и Tx; реализации — internal/repo (PostgreSQL)
// и подпакет memory.
package store
