package database

import "context"

// WithNewPool overrides the connection pool constructor for tests.
func WithNewPool(f func(ctx context.Context, dsn string) (DBPool, error)) Options {
	return func(o *options) {
		o.newPool = func(ctx context.Context, dsn string) (dbPool, error) {
			return f(ctx, dsn)
		}
	}
}

// DBPool re-exports the private pool interface for tests.
type DBPool = dbPool
