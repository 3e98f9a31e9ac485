package binding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rmolina/gamebind/pkg/entities"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite table schema. The UNIQUE index on handle is what makes the
// identity<->handle mapping a bijection at the store level.
const createBindingsTableSQL = `
	CREATE TABLE IF NOT EXISTS bindings (
		identity TEXT PRIMARY KEY,
		handle TEXT NOT NULL,
		external_account_ref TEXT NOT NULL DEFAULT '',
		bound_at TIMESTAMP NOT NULL,
		previous_handle TEXT NOT NULL DEFAULT '',
		previous_bound_at TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bindings_handle ON bindings(handle)
	`

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite binding repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	// Ensure directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if _, err := db.Exec(createBindingsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating bindings table: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// GetBinding retrieves a binding by identity
func (r *SQLiteRepository) GetBinding(ctx context.Context, identity string) (*entities.Binding, error) {
	query := `SELECT identity, handle, external_account_ref, bound_at, previous_handle, previous_bound_at
		FROM bindings WHERE identity = ?`
	return r.scanBinding(r.db.QueryRowContext(ctx, query, identity))
}

// GetBindingByHandle retrieves a binding by game handle
func (r *SQLiteRepository) GetBindingByHandle(ctx context.Context, handle string) (*entities.Binding, error) {
	query := `SELECT identity, handle, external_account_ref, bound_at, previous_handle, previous_bound_at
		FROM bindings WHERE handle = ?`
	return r.scanBinding(r.db.QueryRowContext(ctx, query, handle))
}

func (r *SQLiteRepository) scanBinding(row *sql.Row) (*entities.Binding, error) {
	var binding entities.Binding
	var boundAt string
	var previousBoundAt sql.NullString

	err := row.Scan(
		&binding.Identity,
		&binding.Handle,
		&binding.ExternalAccountRef,
		&boundAt,
		&binding.PreviousHandle,
		&previousBoundAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBindingNotFound
		}
		return nil, fmt.Errorf("error getting binding: %w", err)
	}

	binding.BoundAt, err = parseTimestamp(boundAt)
	if err != nil {
		return nil, err
	}

	if previousBoundAt.Valid && previousBoundAt.String != "" {
		binding.PreviousBoundAt, err = parseTimestamp(previousBoundAt.String)
		if err != nil {
			return nil, err
		}
	}

	return &binding, nil
}

// SaveBinding creates or replaces the binding for binding.Identity. The
// unique handle index turns a lost uniqueness race into ErrHandleTaken.
func (r *SQLiteRepository) SaveBinding(ctx context.Context, binding *entities.Binding) error {
	query := `
		INSERT INTO bindings (identity, handle, external_account_ref, bound_at, previous_handle, previous_bound_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			handle = ?,
			external_account_ref = ?,
			bound_at = ?,
			previous_handle = ?,
			previous_bound_at = ?
	`

	boundAt := binding.BoundAt.Format("2006-01-02 15:04:05")
	var previousBoundAt interface{}
	if !binding.PreviousBoundAt.IsZero() {
		previousBoundAt = binding.PreviousBoundAt.Format("2006-01-02 15:04:05")
	}

	_, err := r.db.ExecContext(ctx, query,
		binding.Identity, binding.Handle, binding.ExternalAccountRef, boundAt, binding.PreviousHandle, previousBoundAt,
		binding.Handle, binding.ExternalAccountRef, boundAt, binding.PreviousHandle, previousBoundAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: bindings.handle") {
			return ErrHandleTaken
		}
		return fmt.Errorf("error saving binding: %w", err)
	}

	return nil
}

// DeleteBinding removes the binding for an identity
func (r *SQLiteRepository) DeleteBinding(ctx context.Context, identity string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM bindings WHERE identity = ?`, identity)
	if err != nil {
		return fmt.Errorf("error deleting binding: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrBindingNotFound
	}

	return nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// parseTimestamp parses a timestamp stored by SQLite.
// Try parsing with different formats since SQLite might store timestamps in different formats
func parseTimestamp(value string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04:05",       // SQLite default format
		"2006-01-02T15:04:05Z",      // ISO 8601 format
		"2006-01-02T15:04:05-07:00", // ISO 8601 with timezone
		time.RFC3339,                // Another common format
	}

	var parseErr error
	var t time.Time
	for _, format := range formats {
		t, parseErr = time.Parse(format, value)
		if parseErr == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("error parsing timestamp '%s': %w", value, parseErr)
}
