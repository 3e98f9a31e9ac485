package ledger

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
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite table schemas
const (
	createAccountsTableSQL = `
	CREATE TABLE IF NOT EXISTS accounts (
		identity TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0,
		total_earned INTEGER NOT NULL DEFAULT 0,
		total_spent INTEGER NOT NULL DEFAULT 0,
		last_checkin_date TEXT NOT NULL DEFAULT '',
		streak_length INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	createEntriesTableSQL = `
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		identity TEXT NOT NULL,
		amount INTEGER NOT NULL,
		type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		balance_after INTEGER NOT NULL,
		FOREIGN KEY (identity) REFERENCES accounts(identity)
	)`

	createReservationsTableSQL = `
	CREATE TABLE IF NOT EXISTS reservations (
		token TEXT PRIMARY KEY,
		identity TEXT NOT NULL,
		amount INTEGER NOT NULL,
		state TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`

	createRedemptionsTableSQL = `
	CREATE TABLE IF NOT EXISTS redemptions (
		id TEXT PRIMARY KEY,
		identity TEXT NOT NULL,
		handle TEXT NOT NULL,
		points_reserved INTEGER NOT NULL,
		currency_amount INTEGER NOT NULL,
		reservation_token TEXT NOT NULL,
		status TEXT NOT NULL,
		external_response TEXT,
		memo TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`

	createLedgerIndexesSQL = `
	CREATE INDEX IF NOT EXISTS idx_entries_identity ON ledger_entries(identity);
	CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON ledger_entries(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_redemptions_identity ON redemptions(identity);
	CREATE INDEX IF NOT EXISTS idx_redemptions_status ON redemptions(status)
	`
)

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite ledger repository
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

	// Create tables if they don't exist
	for _, schema := range []string{
		createAccountsTableSQL,
		createEntriesTableSQL,
		createReservationsTableSQL,
		createRedemptionsTableSQL,
		createLedgerIndexesSQL,
	} {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("error creating ledger schema: %w", err)
		}
	}

	return &SQLiteRepository{db: db}, nil
}

// GetAccount retrieves a points account by identity
func (r *SQLiteRepository) GetAccount(ctx context.Context, identity string) (*entities.PointsAccount, error) {
	query := `SELECT identity, balance, total_earned, total_spent, last_checkin_date, streak_length, version, updated_at
		FROM accounts WHERE identity = ?`

	var account entities.PointsAccount
	var updatedAt string

	err := r.db.QueryRowContext(ctx, query, identity).Scan(
		&account.Identity,
		&account.Balance,
		&account.TotalEarned,
		&account.TotalSpent,
		&account.LastCheckinDate,
		&account.StreakLength,
		&account.Version,
		&updatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("error getting account: %w", err)
	}

	account.LastUpdated, err = parseTimestamp(updatedAt)
	if err != nil {
		return nil, err
	}

	return &account, nil
}

// SaveAccount creates or updates an account with an optimistic version check.
// The UPDATE only matches when the stored version is unchanged, which is the
// compare-and-swap the service layer relies on.
func (r *SQLiteRepository) SaveAccount(ctx context.Context, account *entities.PointsAccount) error {
	now := time.Now()
	formattedTime := now.Format("2006-01-02 15:04:05")

	if account.Version == 0 {
		query := `
			INSERT INTO accounts (identity, balance, total_earned, total_spent, last_checkin_date, streak_length, version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		`
		_, err := r.db.ExecContext(ctx, query,
			account.Identity, account.Balance, account.TotalEarned, account.TotalSpent,
			account.LastCheckinDate, account.StreakLength, formattedTime,
		)
		if err != nil {
			// A concurrent insert for the same identity loses the race on the
			// primary key
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return ErrVersionConflict
			}
			return fmt.Errorf("error inserting account: %w", err)
		}
	} else {
		query := `
			UPDATE accounts
			SET balance = ?, total_earned = ?, total_spent = ?, last_checkin_date = ?, streak_length = ?,
				version = version + 1, updated_at = ?
			WHERE identity = ? AND version = ?
		`
		result, err := r.db.ExecContext(ctx, query,
			account.Balance, account.TotalEarned, account.TotalSpent,
			account.LastCheckinDate, account.StreakLength, formattedTime,
			account.Identity, account.Version,
		)
		if err != nil {
			return fmt.Errorf("error saving account: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("error getting rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return ErrVersionConflict
		}
	}

	account.Version++
	account.LastUpdated = now
	return nil
}

// AddEntry records a new journal entry
func (r *SQLiteRepository) AddEntry(ctx context.Context, entry *entities.LedgerEntry) error {
	// Generate ID if not provided
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	// Set timestamp if not provided
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	query := `
		INSERT INTO ledger_entries (id, identity, amount, type, reference_id, reason, timestamp, balance_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Identity,
		entry.Amount,
		entry.Type,
		entry.ReferenceID,
		entry.Reason,
		entry.Timestamp.Format("2006-01-02 15:04:05"),
		entry.BalanceAfter,
	)

	if err != nil {
		return fmt.Errorf("error adding ledger entry: %w", err)
	}

	return nil
}

// GetEntries retrieves recent journal entries for an identity
func (r *SQLiteRepository) GetEntries(ctx context.Context, identity string, limit int) ([]*entities.LedgerEntry, error) {
	query := `
		SELECT id, identity, amount, type, reference_id, reason, timestamp, balance_after
		FROM ledger_entries
		WHERE identity = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*entities.LedgerEntry

	for rows.Next() {
		var entry entities.LedgerEntry
		var timestamp string
		var referenceID, reason sql.NullString

		err := rows.Scan(
			&entry.ID,
			&entry.Identity,
			&entry.Amount,
			&entry.Type,
			&referenceID,
			&reason,
			&timestamp,
			&entry.BalanceAfter,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning ledger entry row: %w", err)
		}

		entry.ReferenceID = referenceID.String
		entry.Reason = reason.String

		entry.Timestamp, err = parseTimestamp(timestamp)
		if err != nil {
			return nil, err
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entry rows: %w", err)
	}

	return entries, nil
}

// GetReservation retrieves a reservation by token
func (r *SQLiteRepository) GetReservation(ctx context.Context, token string) (*entities.Reservation, error) {
	query := `SELECT token, identity, amount, state, created_at, updated_at FROM reservations WHERE token = ?`

	var reservation entities.Reservation
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&reservation.Token,
		&reservation.Identity,
		&reservation.Amount,
		&reservation.State,
		&createdAt,
		&updatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("error getting reservation: %w", err)
	}

	if reservation.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if reservation.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}

	return &reservation, nil
}

// SaveReservation creates or updates a reservation
func (r *SQLiteRepository) SaveReservation(ctx context.Context, reservation *entities.Reservation) error {
	reservation.UpdatedAt = time.Now()

	query := `
		INSERT INTO reservations (token, identity, amount, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			state = ?,
			updated_at = ?
	`

	createdAt := reservation.CreatedAt.Format("2006-01-02 15:04:05")
	updatedAt := reservation.UpdatedAt.Format("2006-01-02 15:04:05")

	_, err := r.db.ExecContext(ctx, query,
		reservation.Token, reservation.Identity, reservation.Amount, reservation.State, createdAt, updatedAt,
		reservation.State, updatedAt,
	)

	if err != nil {
		return fmt.Errorf("error saving reservation: %w", err)
	}

	return nil
}

// GetRedemption retrieves a redemption transaction by id
func (r *SQLiteRepository) GetRedemption(ctx context.Context, id string) (*entities.RedemptionTransaction, error) {
	query := `SELECT id, identity, handle, points_reserved, currency_amount, reservation_token, status, external_response, memo, created_at, updated_at
		FROM redemptions WHERE id = ?`

	txn, err := scanRedemption(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRedemptionNotFound
		}
		return nil, err
	}

	return txn, nil
}

// SaveRedemption creates or updates a redemption transaction
func (r *SQLiteRepository) SaveRedemption(ctx context.Context, txn *entities.RedemptionTransaction) error {
	txn.UpdatedAt = time.Now()

	query := `
		INSERT INTO redemptions (id, identity, handle, points_reserved, currency_amount, reservation_token, status, external_response, memo, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = ?,
			external_response = ?,
			updated_at = ?
	`

	createdAt := txn.CreatedAt.Format("2006-01-02 15:04:05")
	updatedAt := txn.UpdatedAt.Format("2006-01-02 15:04:05")

	_, err := r.db.ExecContext(ctx, query,
		txn.ID, txn.Identity, txn.Handle, txn.PointsReserved, txn.CurrencyAmount,
		txn.ReservationToken, txn.Status, txn.ExternalResponse, txn.Memo, createdAt, updatedAt,
		txn.Status, txn.ExternalResponse, updatedAt,
	)

	if err != nil {
		return fmt.Errorf("error saving redemption: %w", err)
	}

	return nil
}

// ListRedemptionsByStatus retrieves transactions in a given status, oldest first
func (r *SQLiteRepository) ListRedemptionsByStatus(ctx context.Context, status entities.RedemptionStatus, limit int) ([]*entities.RedemptionTransaction, error) {
	query := `
		SELECT id, identity, handle, points_reserved, currency_amount, reservation_token, status, external_response, memo, created_at, updated_at
		FROM redemptions
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT ?
	`
	return r.queryRedemptions(ctx, query, status, limit)
}

// ListRedemptionsByIdentity retrieves recent transactions for an identity
func (r *SQLiteRepository) ListRedemptionsByIdentity(ctx context.Context, identity string, limit int) ([]*entities.RedemptionTransaction, error) {
	query := `
		SELECT id, identity, handle, points_reserved, currency_amount, reservation_token, status, external_response, memo, created_at, updated_at
		FROM redemptions
		WHERE identity = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	return r.queryRedemptions(ctx, query, identity, limit)
}

func (r *SQLiteRepository) queryRedemptions(ctx context.Context, query string, args ...interface{}) ([]*entities.RedemptionTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying redemptions: %w", err)
	}
	defer rows.Close()

	var txns []*entities.RedemptionTransaction

	for rows.Next() {
		txn, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating redemption rows: %w", err)
	}

	return txns, nil
}

// rowScanner lets scanRedemption work over both QueryRow and Query results
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRedemption(row rowScanner) (*entities.RedemptionTransaction, error) {
	var txn entities.RedemptionTransaction
	var externalResponse, memo sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&txn.ID,
		&txn.Identity,
		&txn.Handle,
		&txn.PointsReserved,
		&txn.CurrencyAmount,
		&txn.ReservationToken,
		&txn.Status,
		&externalResponse,
		&memo,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning redemption row: %w", err)
	}

	txn.ExternalResponse = externalResponse.String
	txn.Memo = memo.String

	if txn.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if txn.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}

	return &txn, nil
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
