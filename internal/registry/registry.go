// Package registry implements domain.ModelStore against a sqlite
// database, adapted from Tutu-Engine-tutuengine/internal/infra/sqlite's
// db.go (WAL mode, idempotent migrations, upsert-by-primary-key
// repository methods), repointed at ModelDescriptor rows instead of
// ModelInfo/node_info.
package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go driver, no CGO required

	"github.com/tutu-network/inferrt/internal/domain"
)

// Store is a sqlite-backed domain.ModelStore.
type Store struct {
	db *sql.DB
}

var _ domain.ModelStore = (*Store)(nil)

// Open creates or opens the database at path, enabling WAL mode and a
// busy timeout, then runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("registry: create data dir: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: ping sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS model_descriptors (
		name            TEXT PRIMARY KEY,
		task            TEXT NOT NULL,
		backend         TEXT NOT NULL,
		model_path      TEXT NOT NULL,
		shape_overrides TEXT NOT NULL DEFAULT '{}'
	)`)
	return err
}

// UpsertDescriptor inserts or replaces the row for d.Name.
func (s *Store) UpsertDescriptor(d domain.ModelDescriptor) error {
	overrides, err := json.Marshal(d.ShapeOverrides)
	if err != nil {
		return fmt.Errorf("registry: marshal shape overrides: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO model_descriptors (name, task, backend, model_path, shape_overrides)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			task=excluded.task,
			backend=excluded.backend,
			model_path=excluded.model_path,
			shape_overrides=excluded.shape_overrides`,
		d.Name, string(d.Task), string(d.Backend), d.ModelPath, string(overrides),
	)
	return err
}

// GetDescriptor returns the descriptor named name, or
// ErrModelNotRegistered if no such row exists.
func (s *Store) GetDescriptor(name string) (*domain.ModelDescriptor, error) {
	row := s.db.QueryRow(
		`SELECT name, task, backend, model_path, shape_overrides FROM model_descriptors WHERE name = ?`, name)
	return scanDescriptor(row)
}

// ListDescriptors returns every registered descriptor.
func (s *Store) ListDescriptors() ([]domain.ModelDescriptor, error) {
	rows, err := s.db.Query(`SELECT name, task, backend, model_path, shape_overrides FROM model_descriptors ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ModelDescriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// DeleteDescriptor removes the row named name.
func (s *Store) DeleteDescriptor(name string) error {
	result, err := s.db.Exec(`DELETE FROM model_descriptors WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrModelNotRegistered
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDescriptor(row scanner) (*domain.ModelDescriptor, error) {
	var d domain.ModelDescriptor
	var task, backendKind, overridesJSON string

	if err := row.Scan(&d.Name, &task, &backendKind, &d.ModelPath, &overridesJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrModelNotRegistered
		}
		return nil, err
	}
	d.Task = domain.TaskKind(task)
	d.Backend = domain.BackendKind(backendKind)

	if err := json.Unmarshal([]byte(overridesJSON), &d.ShapeOverrides); err != nil {
		return nil, fmt.Errorf("registry: unmarshal shape overrides for %q: %w", d.Name, err)
	}
	return &d, nil
}
