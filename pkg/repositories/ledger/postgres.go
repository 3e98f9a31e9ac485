package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rmolina/gamebind/pkg/entities"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres table schemas. Timestamps are stored natively, no string parsing.
const (
	createPGAccountsTableSQL = `
	CREATE TABLE IF NOT EXISTS accounts (
		identity TEXT PRIMARY KEY,
		balance BIGINT NOT NULL DEFAULT 0,
		total_earned BIGINT NOT NULL DEFAULT 0,
		total_spent BIGINT NOT NULL DEFAULT 0,
		last_checkin_date TEXT NOT NULL DEFAULT '',
		streak_length INTEGER NOT NULL DEFAULT 0,
		version BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

	createPGEntriesTableSQL = `
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		identity TEXT NOT NULL,
		amount BIGINT NOT NULL,
		type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		balance_after BIGINT NOT NULL
	)`

	createPGReservationsTableSQL = `
	CREATE TABLE IF NOT EXISTS reservations (
		token TEXT PRIMARY KEY,
		identity TEXT NOT NULL,
		amount BIGINT NOT NULL,
		state TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`

	createPGRedemptionsTableSQL = `
	CREATE TABLE IF NOT EXISTS redemptions (
		id TEXT PRIMARY KEY,
		identity TEXT NOT NULL,
		handle TEXT NOT NULL,
		points_reserved BIGINT NOT NULL,
		currency_amount BIGINT NOT NULL,
		reservation_token TEXT NOT NULL,
		status TEXT NOT NULL,
		external_response TEXT,
		memo TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`

	createPGIndexesSQL = `
	CREATE INDEX IF NOT EXISTS idx_entries_identity ON ledger_entries(identity);
	CREATE INDEX IF NOT EXISTS idx_redemptions_identity ON redemptions(identity);
	CREATE INDEX IF NOT EXISTS idx_redemptions_status ON redemptions(status)
	`
)

// PostgresRepository implements Repository using PostgreSQL via lib/pq
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres ledger repository
func NewPostgresRepository(connURL string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", connURL)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to postgres: %w", err)
	}

	// Create tables if they don't exist
	for _, schema := range []string{
		createPGAccountsTableSQL,
		createPGEntriesTableSQL,
		createPGReservationsTableSQL,
		createPGRedemptionsTableSQL,
		createPGIndexesSQL,
	} {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("error creating ledger schema: %w", err)
		}
	}

	return &PostgresRepository{db: db}, nil
}

// GetAccount retrieves a points account by identity
func (r *PostgresRepository) GetAccount(ctx context.Context, identity string) (*entities.PointsAccount, error) {
	query := `SELECT identity, balance, total_earned, total_spent, last_checkin_date, streak_length, version, updated_at
		FROM accounts WHERE identity = $1`

	var account entities.PointsAccount

	err := r.db.QueryRowContext(ctx, query, identity).Scan(
		&account.Identity,
		&account.Balance,
		&account.TotalEarned,
		&account.TotalSpent,
		&account.LastCheckinDate,
		&account.StreakLength,
		&account.Version,
		&account.LastUpdated,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("error getting account: %w", err)
	}

	return &account, nil
}

// SaveAccount creates or updates an account with an optimistic version check
func (r *PostgresRepository) SaveAccount(ctx context.Context, account *entities.PointsAccount) error {
	now := time.Now()

	if account.Version == 0 {
		query := `
			INSERT INTO accounts (identity, balance, total_earned, total_spent, last_checkin_date, streak_length, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
		`
		_, err := r.db.ExecContext(ctx, query,
			account.Identity, account.Balance, account.TotalEarned, account.TotalSpent,
			account.LastCheckinDate, account.StreakLength, now,
		)
		if err != nil {
			// A concurrent insert for the same identity loses the race on the
			// primary key
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
				return ErrVersionConflict
			}
			return fmt.Errorf("error inserting account: %w", err)
		}
	} else {
		query := `
			UPDATE accounts
			SET balance = $1, total_earned = $2, total_spent = $3, last_checkin_date = $4, streak_length = $5,
				version = version + 1, updated_at = $6
			WHERE identity = $7 AND version = $8
		`
		result, err := r.db.ExecContext(ctx, query,
			account.Balance, account.TotalEarned, account.TotalSpent,
			account.LastCheckinDate, account.StreakLength, now,
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
func (r *PostgresRepository) AddEntry(ctx context.Context, entry *entities.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	query := `
		INSERT INTO ledger_entries (id, identity, amount, type, reference_id, reason, timestamp, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Identity, entry.Amount, entry.Type,
		entry.ReferenceID, entry.Reason, entry.Timestamp, entry.BalanceAfter,
	)

	if err != nil {
		return fmt.Errorf("error adding ledger entry: %w", err)
	}

	return nil
}

// GetEntries retrieves recent journal entries for an identity
func (r *PostgresRepository) GetEntries(ctx context.Context, identity string, limit int) ([]*entities.LedgerEntry, error) {
	query := `
		SELECT id, identity, amount, type, reference_id, reason, timestamp, balance_after
		FROM ledger_entries
		WHERE identity = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*entities.LedgerEntry

	for rows.Next() {
		var entry entities.LedgerEntry
		var referenceID, reason sql.NullString

		err := rows.Scan(
			&entry.ID,
			&entry.Identity,
			&entry.Amount,
			&entry.Type,
			&referenceID,
			&reason,
			&entry.Timestamp,
			&entry.BalanceAfter,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning ledger entry row: %w", err)
		}

		entry.ReferenceID = referenceID.String
		entry.Reason = reason.String

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entry rows: %w", err)
	}

	return entries, nil
}

// GetReservation retrieves a reservation by token
func (r *PostgresRepository) GetReservation(ctx context.Context, token string) (*entities.Reservation, error) {
	query := `SELECT token, identity, amount, state, created_at, updated_at FROM reservations WHERE token = $1`

	var reservation entities.Reservation

	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&reservation.Token,
		&reservation.Identity,
		&reservation.Amount,
		&reservation.State,
		&reservation.CreatedAt,
		&reservation.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("error getting reservation: %w", err)
	}

	return &reservation, nil
}

// SaveReservation creates or updates a reservation
func (r *PostgresRepository) SaveReservation(ctx context.Context, reservation *entities.Reservation) error {
	reservation.UpdatedAt = time.Now()

	query := `
		INSERT INTO reservations (token, identity, amount, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		reservation.Token, reservation.Identity, reservation.Amount,
		reservation.State, reservation.CreatedAt, reservation.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("error saving reservation: %w", err)
	}

	return nil
}

// GetRedemption retrieves a redemption transaction by id
func (r *PostgresRepository) GetRedemption(ctx context.Context, id string) (*entities.RedemptionTransaction, error) {
	query := `SELECT id, identity, handle, points_reserved, currency_amount, reservation_token, status, external_response, memo, created_at, updated_at
		FROM redemptions WHERE id = $1`

	txn, err := scanPGRedemption(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRedemptionNotFound
		}
		return nil, err
	}

	return txn, nil
}

// SaveRedemption creates or updates a redemption transaction
func (r *PostgresRepository) SaveRedemption(ctx context.Context, txn *entities.RedemptionTransaction) error {
	txn.UpdatedAt = time.Now()

	query := `
		INSERT INTO redemptions (id, identity, handle, points_reserved, currency_amount, reservation_token, status, external_response, memo, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			external_response = EXCLUDED.external_response,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		txn.ID, txn.Identity, txn.Handle, txn.PointsReserved, txn.CurrencyAmount,
		txn.ReservationToken, txn.Status, txn.ExternalResponse, txn.Memo, txn.CreatedAt, txn.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("error saving redemption: %w", err)
	}

	return nil
}

// ListRedemptionsByStatus retrieves transactions in a given status, oldest first
func (r *PostgresRepository) ListRedemptionsByStatus(ctx context.Context, status entities.RedemptionStatus, limit int) ([]*entities.RedemptionTransaction, error) {
	query := `
		SELECT id, identity, handle, points_reserved, currency_amount, reservation_token, status, external_response, memo, created_at, updated_at
		FROM redemptions
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	return r.queryRedemptions(ctx, query, string(status), limit)
}

// ListRedemptionsByIdentity retrieves recent transactions for an identity
func (r *PostgresRepository) ListRedemptionsByIdentity(ctx context.Context, identity string, limit int) ([]*entities.RedemptionTransaction, error) {
	query := `
		SELECT id, identity, handle, points_reserved, currency_amount, reservation_token, status, external_response, memo, created_at, updated_at
		FROM redemptions
		WHERE identity = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.queryRedemptions(ctx, query, identity, limit)
}

func (r *PostgresRepository) queryRedemptions(ctx context.Context, query string, args ...interface{}) ([]*entities.RedemptionTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying redemptions: %w", err)
	}
	defer rows.Close()

	var txns []*entities.RedemptionTransaction

	for rows.Next() {
		txn, err := scanPGRedemption(rows)
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

func scanPGRedemption(row rowScanner) (*entities.RedemptionTransaction, error) {
	var txn entities.RedemptionTransaction
	var externalResponse, memo sql.NullString

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
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning redemption row: %w", err)
	}

	txn.ExternalResponse = externalResponse.String
	txn.Memo = memo.String

	return &txn, nil
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
