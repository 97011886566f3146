// Package pg connects to PostgreSQL through pgx/v5 and applies goose
// migrations from an embedded filesystem. It backs the "postgres" driver
// of the kv package.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//	if err := pg.Migrate(ctx, pool, migrations, "migrations", cfg, log); err != nil {
//		return err
//	}
package pg
