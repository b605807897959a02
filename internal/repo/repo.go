// Package repo — реализация store.Store на PostgreSQL (pgx/v5).
//
// Примитивы синхронизации движка выражены штатными средствами СУБД:
// SELECT ... FOR UPDATE (row lock), UPDATE с условием по статусу
// (условное обновление), INSERT ... ON CONFLICT DO NOTHING
// (insert-if-absent) и FOR UPDATE SKIP LOCKED (неблокирующий захват
// батча заданий).
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vborodin/procflow/internal/store"
)

// uniqueViolation — код PostgreSQL для нарушения уникального ограничения.
const uniqueViolation = "23505"

// DB — хранилище на пуле PostgreSQL.
type DB struct {
	pool *pgxpool.Pool
}

// New создаёт хранилище поверх пула.
func New(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

// WithTx выполняет fn в транзакции.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// pgTx — операции в рамках одной транзакции pgx.
type pgTx struct {
	tx pgx.Tx
}

// --- Helpers ---

// marshalJSON сериализует payload для jsonb-колонки.
// nil превращается в NULL.
func marshalJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// unmarshalJSON разбирает jsonb-колонку; NULL даёт nil.
func unmarshalJSON(data []byte) (map[string]any, error) {
	if data == nil {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return m, nil
}

// nullString превращает пустую строку в NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isUniqueViolation проверяет нарушение уникального ограничения.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
