package entities

import (
	"time"
)

// PointsAccount represents a user's points balance and audit counters.
// Invariant: Balance == TotalEarned - TotalSpent and Balance >= 0.
type PointsAccount struct {
	Identity        string    // Opaque chat identity
	Balance         int64     // Current spendable points
	TotalEarned     int64     // Lifetime points credited
	TotalSpent      int64     // Lifetime points debited
	LastCheckinDate string    // Calendar day of last successful check-in (YYYY-MM-DD), empty if never
	StreakLength    int       // Consecutive check-in days ending at LastCheckinDate
	Version         int64     // Optimistic concurrency counter, bumped on every save
	LastUpdated     time.Time // When the account was last updated
}

// EntryType represents the type of ledger journal entry
type EntryType string

const (
	EntryTypeCredit         EntryType = "CREDIT"
	EntryTypeDebit          EntryType = "DEBIT"
	EntryTypeCheckin        EntryType = "CHECKIN"
	EntryTypeTransferIn     EntryType = "TRANSFER_IN"
	EntryTypeTransferOut    EntryType = "TRANSFER_OUT"
	EntryTypeReserve        EntryType = "RESERVE"
	EntryTypeReserveRelease EntryType = "RESERVE_RELEASE"
)

// LedgerEntry represents a single append-only journal row for an account
type LedgerEntry struct {
	ID           string    // Unique identifier
	Identity     string    // Account the entry belongs to
	Amount       int64     // Amount (positive for credits, negative for debits)
	Type         EntryType // Type of entry
	ReferenceID  string    // Optional reference (e.g. reservation token)
	Reason       string    // Human-readable reason
	Timestamp    time.Time // When the entry was recorded
	BalanceAfter int64     // Balance after this entry
}
