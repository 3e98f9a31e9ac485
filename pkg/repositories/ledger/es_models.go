package ledger

import (
	"time"

	"github.com/rmolina/gamebind/pkg/entities"
)

// ESRedemptionRecord represents a redemption transaction document in Elasticsearch
type ESRedemptionRecord struct {
	TransactionID    string    `json:"transaction_id"`
	IdempotencyToken string    `json:"idempotency_token"`
	Identity         string    `json:"identity"`
	Handle           string    `json:"handle"`
	PointsReserved   int64     `json:"points_reserved"`
	CurrencyAmount   int64     `json:"currency_amount"`
	Status           string    `json:"status"`
	ExternalResponse string    `json:"external_response,omitempty"`
	Memo             string    `json:"memo,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	ResolvedAt       time.Time `json:"resolved_at"`
}

// toESRecord converts a redemption transaction to its archive document. The
// transaction id is indexed twice: once as the record key and once under the
// idempotency_token field reconciliation tooling searches by.
func toESRecord(txn *entities.RedemptionTransaction) *ESRedemptionRecord {
	return &ESRedemptionRecord{
		TransactionID:    txn.ID,
		IdempotencyToken: txn.ID,
		Identity:         txn.Identity,
		Handle:           txn.Handle,
		PointsReserved:   txn.PointsReserved,
		CurrencyAmount:   txn.CurrencyAmount,
		Status:           string(txn.Status),
		ExternalResponse: txn.ExternalResponse,
		Memo:             txn.Memo,
		CreatedAt:        txn.CreatedAt,
		ResolvedAt:       txn.UpdatedAt,
	}
}
