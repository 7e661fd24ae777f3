package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Every connection runs with foreign keys on, WAL journaling and a busy
// timeout. prod additionally syncs on every commit.
const basePragmas = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

func pragmas(env string) string {
	if env == "prod" {
		return basePragmas + "&_pragma=synchronous(FULL)"
	}
	return basePragmas + "&_pragma=synchronous(NORMAL)"
}

type Config struct {
	Path   string // e.g. "./data/ledger.db"
	Env    string // "dev" | "prod"; selects the synchronous level
	Schema Schema
}

// FileDSN builds the modernc.org/sqlite DSN for an on-disk database.
func FileDSN(path, env string) string {
	return fmt.Sprintf("file:%s?%s", path, pragmas(env))
}

// MemoryDSN builds a DSN for a named shared-cache in-memory database. The
// database lives as long as at least one connection to it is open.
func MemoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", name, pragmas("dev"))
}

func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Schema == "" {
		cfg.Schema = SchemaLedger
	}
	if cfg.Path == "" {
		cfg.Path = "./data/" + string(cfg.Schema) + ".db"
	}
	if cfg.Env == "" {
		cfg.Env = "dev"
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	return OpenDSN(ctx, FileDSN(cfg.Path, cfg.Env), cfg.Schema)
}

// OpenDSN opens dsn, pings it, and applies the schema's migrations.
func OpenDSN(ctx context.Context, dsn string, schema Schema) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// Strong safety for SQLite: single connection, writes go through Worker.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := Migrate(ctx, db, schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
