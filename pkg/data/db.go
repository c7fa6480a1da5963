// Package data persists normalized transactions and the latest wallet
// scores in sqlite (default) or postgres.
package data

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DataFileName string = "data.db"

	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	schemaVersion = 1

	insertSchemaVersionSQL = `INSERT INTO schema_version (version, applied_at) VALUES (?, ?)
		ON CONFLICT(version) DO NOTHING
	`
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")
)

// Store wraps a database handle and the dialect of its driver.
type Store struct {
	db     *sql.DB
	driver string
}

// Open initializes the database behind dsn and returns a store for it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if err := Init(ctx, dsn); err != nil {
		return nil, err
	}

	db, err := GetDB(dsn)
	if err != nil {
		return nil, err
	}

	return &Store{db: db, driver: driverFor(dsn)}, nil
}

// Init creates the schema when missing. It is safe to run repeatedly.
func Init(ctx context.Context, dsn string) error {
	if dsn == "" {
		return errors.New("database dsn not specified")
	}

	db, err := GetDB(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return fmt.Errorf("failed to read the schema creation file: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("failed to create database schema in %s: %w", redact(dsn), err)
	}

	q := rebind(driverFor(dsn), insertSchemaVersionSQL)
	if _, err := db.ExecContext(ctx, q, schemaVersion, time.Now().UTC().Unix()); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	slog.Debug("db schema ready", "driver", driverFor(dsn), "version", schemaVersion)
	return nil
}

// GetDB opens dsn with the postgres driver for postgres:// URLs and with
// sqlite for everything else (a file path).
func GetDB(dsn string) (*sql.DB, error) {
	driver := driverFor(dsn)
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database %s: %w", driver, redact(dsn), err)
	}
	return conn, nil
}

// IsPostgres reports whether dsn targets postgres.
func IsPostgres(dsn string) bool {
	return driverFor(dsn) == driverPostgres
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return errDBNotInitialized
	}
	return nil
}

func (s *Store) q(query string) string {
	return rebind(s.driver, query)
}

func driverFor(dsn string) string {
	d := strings.ToLower(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return driverPostgres
	}
	return driverSQLite
}

// rebind rewrites ? placeholders to $N for postgres.
func rebind(driver, query string) string {
	if driver != driverPostgres {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// redact drops the password from postgres URLs before they are logged.
func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if user, _, ok := strings.Cut(creds, ":"); ok {
		return dsn[:scheme+3] + user + ":xxxxx" + dsn[at:]
	}
	return dsn
}

func rollbackTransaction(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Error("error rolling back transaction", "error", err)
	}
}
