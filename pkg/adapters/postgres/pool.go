package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruslano69/epibridge/pkg/adapters/base"
)

// poolDB реализует base.DB поверх pgxpool
type poolDB struct {
	pool *pgxpool.Pool
}

func (p *poolDB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *poolDB) QueryRow(ctx context.Context, query string, args ...any) base.Row {
	return pgxRow{p.pool.QueryRow(ctx, query, args...)}
}

// InTx выполняет fn в транзакции pgx
func (p *poolDB) InTx(ctx context.Context, fn func(q base.Querier) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(txQuerier{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txQuerier - обертка для pgx.Tx
type txQuerier struct {
	tx pgx.Tx
}

func (t txQuerier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t txQuerier) QueryRow(ctx context.Context, query string, args ...any) base.Row {
	return pgxRow{t.tx.QueryRow(ctx, query, args...)}
}

type pgxRow struct {
	row pgx.Row
}

func (r pgxRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return base.ErrNoRows
	}
	return err
}
