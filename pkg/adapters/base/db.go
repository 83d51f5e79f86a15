package base

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNoRows возвращается Row.Scan, если запрос не вернул строк
var ErrNoRows = errors.New("no rows in result set")

// Row - результат запроса одной строки
type Row interface {
	Scan(dest ...any) error
}

// Querier выполняет запросы в подключении или транзакции
type Querier interface {
	// Exec выполняет запрос и возвращает количество затронутых строк
	Exec(ctx context.Context, query string, args ...any) (int64, error)

	// QueryRow выполняет запрос одной строки
	QueryRow(ctx context.Context, query string, args ...any) Row
}

// DB - подключение с поддержкой транзакций.
// Реализуется поверх database/sql (StdDB) и pgxpool (postgres пакет).
type DB interface {
	Querier

	// InTx выполняет fn в транзакции. Ошибка fn откатывает транзакцию.
	InTx(ctx context.Context, fn func(q Querier) error) error
}

// StdDB адаптирует *sql.DB к интерфейсу DB
type StdDB struct {
	DB *sql.DB
}

// NewStdDB оборачивает *sql.DB
func NewStdDB(db *sql.DB) *StdDB {
	return &StdDB{DB: db}
}

func (s *StdDB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return stdExec(ctx, s.DB, query, args...)
}

func (s *StdDB) QueryRow(ctx context.Context, query string, args ...any) Row {
	return stdRow{s.DB.QueryRowContext(ctx, query, args...)}
}

// InTx выполняет fn в транзакции database/sql
func (s *StdDB) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(stdTx{tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func stdExec(ctx context.Context, e execer, query string, args ...any) (int64, error) {
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Не все драйверы сообщают количество строк
		return 0, nil
	}
	return n, nil
}

type stdTx struct {
	tx *sql.Tx
}

func (t stdTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return stdExec(ctx, t.tx, query, args...)
}

func (t stdTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return stdRow{t.tx.QueryRowContext(ctx, query, args...)}
}

type stdRow struct {
	row *sql.Row
}

func (r stdRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	return err
}
