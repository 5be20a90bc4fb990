package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one numbered SQL file, e.g. "002_appointments.sql".
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// MigrationStatus describes a known migration in one schema. Modified is set
// when an applied file no longer matches the checksum recorded for it.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	Modified  bool
	AppliedAt *time.Time
}

type appliedMigration struct {
	checksum  string
	appliedAt time.Time
}

// Migrator applies embedded SQL files to tenant schemas and records them in
// <schema>.schema_migrations.
type Migrator struct {
	pool  *pgxpool.Pool
	files fs.FS
}

func NewMigrator(pool *pgxpool.Pool, files fs.FS) *Migrator {
	return &Migrator{pool: pool, files: files}
}

// Load returns the migrations in the source root ordered by version.
// Files that are not "<number>_<name>.sql" are ignored.
func (m *Migrator) Load() ([]Migration, error) {
	if m.files == nil {
		return nil, fmt.Errorf("no migrations source configured")
	}
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := make(map[int]string)
	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, ok := parseVersion(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, prev, entry.Name())
		}
		byVersion[version] = entry.Name()

		content, err := fs.ReadFile(m.files, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(content)
		out = append(out, Migration{
			Version:  version,
			Name:     entry.Name(),
			SQL:      string(content),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func parseVersion(name string) (int, bool) {
	if path.Ext(name) != ".sql" {
		return 0, false
	}
	prefix, _, found := strings.Cut(name, "_")
	if !found {
		return 0, false
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// plan returns the migrations still to run. It refuses to continue when an
// applied file has been edited since it ran.
func plan(all []Migration, applied map[int]appliedMigration) ([]Migration, error) {
	var pending []Migration
	for _, mig := range all {
		rec, ok := applied[mig.Version]
		if !ok {
			pending = append(pending, mig)
			continue
		}
		if rec.checksum != "" && rec.checksum != mig.Checksum {
			return nil, fmt.Errorf("migration %s was modified after it was applied", mig.Name)
		}
	}
	return pending, nil
}

// Up applies pending migrations to schema in version order, one transaction
// each. Concurrent callers on the same schema are serialised with an
// advisory lock. It returns how many migrations ran.
func (m *Migrator) Up(ctx context.Context, schema string) (int, error) {
	if !ValidTenantID(schema) {
		return 0, fmt.Errorf("invalid schema name: %q", schema)
	}
	all, err := m.Load()
	if err != nil {
		return 0, err
	}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock(hashtext($1))", schema); err != nil {
		return 0, fmt.Errorf("lock schema %s: %w", schema, err)
	}
	defer conn.Exec(context.Background(), "SELECT pg_advisory_unlock(hashtext($1))", schema)

	if err := ensureMigrationsTable(ctx, conn, schema); err != nil {
		return 0, err
	}
	applied, err := readApplied(ctx, conn, schema)
	if err != nil {
		return 0, err
	}
	pending, err := plan(all, applied)
	if err != nil {
		return 0, err
	}

	for i, mig := range pending {
		if err := apply(ctx, conn, schema, mig); err != nil {
			return i, fmt.Errorf("apply %s: %w", mig.Name, err)
		}
	}
	return len(pending), nil
}

// Status lists every known migration and whether schema has it.
func (m *Migrator) Status(ctx context.Context, schema string) ([]MigrationStatus, error) {
	if !ValidTenantID(schema) {
		return nil, fmt.Errorf("invalid schema name: %q", schema)
	}
	all, err := m.Load()
	if err != nil {
		return nil, err
	}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := ensureMigrationsTable(ctx, conn, schema); err != nil {
		return nil, err
	}
	applied, err := readApplied(ctx, conn, schema)
	if err != nil {
		return nil, err
	}
	return statusOf(all, applied), nil
}

func statusOf(all []Migration, applied map[int]appliedMigration) []MigrationStatus {
	out := make([]MigrationStatus, 0, len(all))
	for _, mig := range all {
		s := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if rec, ok := applied[mig.Version]; ok {
			at := rec.appliedAt
			s.Applied = true
			s.AppliedAt = &at
			s.Modified = rec.checksum != "" && rec.checksum != mig.Checksum
		}
		out = append(out, s)
	}
	return out
}

func ensureMigrationsTable(ctx context.Context, conn *pgxpool.Conn, schema string) error {
	ddl := fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %[1]s;
CREATE TABLE IF NOT EXISTS %[1]s.schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    checksum   TEXT NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, schema)
	if _, err := conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create schema_migrations in %s: %w", schema, err)
	}
	return nil
}

func readApplied(ctx context.Context, conn *pgxpool.Conn, schema string) (map[int]appliedMigration, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf("SELECT version, checksum, applied_at FROM %s.schema_migrations", schema))
	if err != nil {
		return nil, fmt.Errorf("read applied migrations in %s: %w", schema, err)
	}
	defer rows.Close()

	applied := make(map[int]appliedMigration)
	for rows.Next() {
		var v int
		var rec appliedMigration
		if err := rows.Scan(&v, &rec.checksum, &rec.appliedAt); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[v] = rec
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, conn *pgxpool.Conn, schema string, mig Migration) error {
	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", schema)); err != nil {
			return fmt.Errorf("set search_path: %w", err)
		}
		if _, err := tx.Exec(ctx, mig.SQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)",
			mig.Version, mig.Name, mig.Checksum)
		return err
	})
}
