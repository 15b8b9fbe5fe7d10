// Package store persists correction records and the reference tables in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/combine-registry/pkg/canon"
	"github.com/hazyhaar/combine-registry/pkg/feedback"
	"github.com/hazyhaar/combine-registry/pkg/refdata"
)

var schema = []string{`CREATE TABLE IF NOT EXISTS corrections (
	id              TEXT PRIMARY KEY,
	original_input  TEXT NOT NULL,
	canonical_input TEXT NOT NULL,
	rejected        TEXT NOT NULL DEFAULT '',
	accepted        TEXT NOT NULL,
	region          TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS corrections_canonical_input ON corrections (canonical_input)`,
	`CREATE TABLE IF NOT EXISTS models (
	position   INTEGER PRIMARY KEY,
	brand      TEXT NOT NULL,
	model      TEXT NOT NULL,
	first_year INTEGER NOT NULL DEFAULT 0,
	last_year  INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS brand_aliases (
	position INTEGER PRIMARY KEY,
	alias    TEXT NOT NULL,
	brand    TEXT NOT NULL,
	weight   REAL NOT NULL,
	active   INTEGER NOT NULL DEFAULT 1
)`,
	`CREATE TABLE IF NOT EXISTS model_variants (
	position INTEGER PRIMARY KEY,
	variant  TEXT NOT NULL,
	brand    TEXT NOT NULL,
	model    TEXT NOT NULL,
	weight   REAL NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS typo_patterns (
	position    INTEGER PRIMARY KEY,
	pattern     TEXT NOT NULL,
	replacement TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS reference_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`,
}

// Store is a SQLite-backed correction log and reference table store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	for _, ddl := range schema {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendCorrection inserts r. It implements feedback.Appender.
func (s *Store) AppendCorrection(ctx context.Context, r feedback.Record) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO corrections
		(id, original_input, canonical_input, rejected, accepted, region, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OriginalInput, r.CanonicalInput, r.Rejected, r.Accepted, r.Region, r.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("append correction %s: %w", r.ID, err)
	}
	return nil
}

// ListCorrections returns the newest corrections first. limit <= 0 returns
// all of them.
func (s *Store) ListCorrections(ctx context.Context, limit int) ([]feedback.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, original_input, canonical_input, rejected,
		accepted, region, created_at
		FROM corrections ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list corrections: %w", err)
	}
	defer rows.Close()

	var records []feedback.Record
	for rows.Next() {
		var r feedback.Record
		var created int64
		if err := rows.Scan(&r.ID, &r.OriginalInput, &r.CanonicalInput, &r.Rejected,
			&r.Accepted, &r.Region, &created); err != nil {
			return nil, fmt.Errorf("scan correction: %w", err)
		}
		r.CreatedAt = time.UnixMilli(created).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// ImportTables replaces every reference row with t in one transaction. Table
// order is kept in the position column.
func (s *Store) ImportTables(ctx context.Context, t refdata.Tables) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"models", "brand_aliases", "model_variants", "typo_patterns", "reference_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, m := range t.Models {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO models (position, brand, model, first_year, last_year) VALUES (?, ?, ?, ?, ?)`,
			i, m.Brand, m.Model, m.FirstYear, m.LastYear); err != nil {
			return fmt.Errorf("insert model %d: %w", i, err)
		}
	}
	for i, a := range t.Brands {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO brand_aliases (position, alias, brand, weight, active) VALUES (?, ?, ?, ?, ?)`,
			i, a.Alias, a.Brand, a.Weight, a.Active); err != nil {
			return fmt.Errorf("insert brand alias %d: %w", i, err)
		}
	}
	for i, v := range t.Variants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO model_variants (position, variant, brand, model, weight) VALUES (?, ?, ?, ?, ?)`,
			i, v.Variant, v.Brand, v.Model, v.Weight); err != nil {
			return fmt.Errorf("insert model variant %d: %w", i, err)
		}
	}
	for i, r := range t.Typos {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO typo_patterns (position, pattern, replacement) VALUES (?, ?, ?)`,
			i, r.Pattern, r.Replacement); err != nil {
			return fmt.Errorf("insert typo pattern %d: %w", i, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reference_meta (key, value) VALUES ('version', ?)`, t.Version); err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

// LoadTables reads the reference tables back in import order.
func (s *Store) LoadTables(ctx context.Context) (refdata.Tables, error) {
	var t refdata.Tables

	err := s.db.QueryRowContext(ctx, `SELECT value FROM reference_meta WHERE key = 'version'`).Scan(&t.Version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("read version: %w", err)
	}

	err = s.each(ctx, `SELECT brand, model, first_year, last_year FROM models ORDER BY position`,
		func(rows *sql.Rows) error {
			var m refdata.Model
			if err := rows.Scan(&m.Brand, &m.Model, &m.FirstYear, &m.LastYear); err != nil {
				return err
			}
			t.Models = append(t.Models, m)
			return nil
		})
	if err != nil {
		return t, fmt.Errorf("read models: %w", err)
	}

	err = s.each(ctx, `SELECT alias, brand, weight, active FROM brand_aliases ORDER BY position`,
		func(rows *sql.Rows) error {
			var a refdata.BrandAlias
			if err := rows.Scan(&a.Alias, &a.Brand, &a.Weight, &a.Active); err != nil {
				return err
			}
			t.Brands = append(t.Brands, a)
			return nil
		})
	if err != nil {
		return t, fmt.Errorf("read brand aliases: %w", err)
	}

	err = s.each(ctx, `SELECT variant, brand, model, weight FROM model_variants ORDER BY position`,
		func(rows *sql.Rows) error {
			var v refdata.ModelVariant
			if err := rows.Scan(&v.Variant, &v.Brand, &v.Model, &v.Weight); err != nil {
				return err
			}
			t.Variants = append(t.Variants, v)
			return nil
		})
	if err != nil {
		return t, fmt.Errorf("read model variants: %w", err)
	}

	err = s.each(ctx, `SELECT pattern, replacement FROM typo_patterns ORDER BY position`,
		func(rows *sql.Rows) error {
			var r canon.Rule
			if err := rows.Scan(&r.Pattern, &r.Replacement); err != nil {
				return err
			}
			t.Typos = append(t.Typos, r)
			return nil
		})
	if err != nil {
		return t, fmt.Errorf("read typo patterns: %w", err)
	}
	return t, nil
}

// LoadSnapshot reads and validates the stored reference tables.
func (s *Store) LoadSnapshot(ctx context.Context) (*refdata.Snapshot, error) {
	t, err := s.LoadTables(ctx)
	if err != nil {
		return nil, err
	}
	return refdata.Build(t)
}

func (s *Store) each(ctx context.Context, query string, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
