package seed

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// inBatches runs fn for every index in [0, n), committing every size rows.
func inBatches(ctx context.Context, pool *pgxpool.Pool, n, size int, fn func(ctx context.Context, exec execer, i int) error) error {
	for offset := 0; offset < n; offset += size {
		end := min(offset+size, n)
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				if err := fn(ctx, tx, i); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
