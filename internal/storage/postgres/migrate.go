package postgres

import (
    "context"
    "fmt"
    "io/fs"
    "sort"
    "strings"

    "github.com/jackc/pgx/v5"

    "github.com/tinoosan/payments/db"
)

// advisoryMigrations serializes concurrent migrators.
const advisoryMigrations = 7300

// Migrate applies embedded migrations that are not yet recorded in
// schema_migrations and returns the versions it applied.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
    if _, err := s.pool.Exec(ctx, `
        create table if not exists schema_migrations (
            version    text primary key,
            applied_at timestamptz not null default now()
        )
    `); err != nil {
        return nil, fmt.Errorf("create schema_migrations: %w", err)
    }
    entries, err := fs.ReadDir(db.Migrations, "migrations")
    if err != nil { return nil, err }
    names := make([]string, 0, len(entries))
    for _, e := range entries {
        if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
    }
    sort.Strings(names)

    applied := make([]string, 0)
    for _, name := range names {
        version := strings.TrimSuffix(name, ".sql")
        body, err := fs.ReadFile(db.Migrations, "migrations/"+name)
        if err != nil { return applied, err }
        ok, err := s.applyMigration(ctx, version, string(body))
        if err != nil { return applied, fmt.Errorf("migration %s: %w", version, err) }
        if ok { applied = append(applied, version) }
    }
    return applied, nil
}

func (s *Store) applyMigration(ctx context.Context, version, body string) (bool, error) {
    tx, err := s.pool.Begin(ctx)
    if err != nil { return false, err }
    defer func() { _ = tx.Rollback(ctx) }()
    if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock($1)`, int64(advisoryMigrations)); err != nil { return false, err }
    var done bool
    if err := tx.QueryRow(ctx, `select exists(select 1 from schema_migrations where version = $1)`, version).Scan(&done); err != nil { return false, err }
    if done { return false, nil }
    // Simple protocol so a file may hold several statements.
    if _, err := tx.Exec(ctx, body, pgx.QueryExecModeSimpleProtocol); err != nil { return false, err }
    if _, err := tx.Exec(ctx, `insert into schema_migrations (version) values ($1)`, version); err != nil { return false, err }
    return true, tx.Commit(ctx)
}
