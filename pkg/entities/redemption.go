package entities

import (
	"time"
)

// ReservationState represents the lifecycle state of a points reservation
type ReservationState string

const (
	ReservationHeld      ReservationState = "HELD"
	ReservationCommitted ReservationState = "COMMITTED"
	ReservationReleased  ReservationState = "RELEASED"
)

// Reservation represents a provisional debit held pending the outcome of an
// external side effect. The state machine is what makes commit and
// compensate idempotent: only a HELD reservation can transition, and it
// transitions exactly once.
type Reservation struct {
	Token     string           // Unique reservation token
	Identity  string           // Account the points were reserved from
	Amount    int64            // Points reserved
	State     ReservationState // Current lifecycle state
	CreatedAt time.Time        // When the reservation was taken
	UpdatedAt time.Time        // When the state last changed
}

// RedemptionStatus represents the outcome classification of a redemption
type RedemptionStatus string

const (
	RedemptionReserved    RedemptionStatus = "RESERVED"
	RedemptionCommitted   RedemptionStatus = "COMMITTED"
	RedemptionCompensated RedemptionStatus = "COMPENSATED"
	RedemptionAmbiguous   RedemptionStatus = "AMBIGUOUS"
)

// RedemptionTransaction is the append-only record of one attempt to convert
// points into game currency. ID doubles as the idempotency token sent to the
// external game API. Status leaves RESERVED exactly once; AMBIGUOUS records
// are only resolved through reconciliation, never mutated by a retry.
type RedemptionTransaction struct {
	ID               string           // Unique identifier and idempotency token
	Identity         string           // Redeeming identity
	Handle           string           // Game handle recharged
	PointsReserved   int64            // Points taken from the local balance
	CurrencyAmount   int64            // Game currency requested from the API
	ReservationToken string           // Ledger reservation backing this redemption
	Status           RedemptionStatus // Outcome classification
	ExternalResponse string           // Raw response summary from the game API, if any
	Memo             string           // Caller-supplied note
	CreatedAt        time.Time        // When the redemption started
	UpdatedAt        time.Time        // When the status last changed
}

// Terminal reports whether the transaction has reached a final state.
// AMBIGUOUS is not terminal: it is parked awaiting reconciliation.
func (t *RedemptionTransaction) Terminal() bool {
	return t.Status == RedemptionCommitted || t.Status == RedemptionCompensated
}
