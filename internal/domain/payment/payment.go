package payment

import (
	"errors"
	"time"
)

// Record is one row of the append-only settlement ledger. It is never
// mutated after the settling transaction commits.
type Record struct {
	ID              string    `json:"id"`
	SettlementID    string    `json:"settlementId"`
	PayerEmail      string    `json:"payerEmail"`
	AmountMinor     int64     `json:"amountMinor"`
	ClassIDs        []string  `json:"classIds"`
	CartItemIDs     []string  `json:"cartItemIds"`
	ItemsRemoved    int       `json:"itemsRemoved"`
	ClassesCredited int       `json:"classesCredited"`
	CreatedAt       time.Time `json:"createdAt"`
}

var (
	ErrNotFound = errors.New("payment record not found")
	// ErrDuplicateSettlement means a ledger row with this settlement id
	// already exists. Callers decide whether that is an idempotent replay or
	// a conflict by comparing the stored payload.
	ErrDuplicateSettlement = errors.New("settlement id already settled")
	ErrSettlementConflict  = errors.New("settlement id reused with a different payload")
)

// SettleRequest is the full input to the settlement engine. Cart item ids
// and class ids are independent sets: a bundled class may be credited with
// no cart item behind it, and a stale cart item may be cleared without a
// credit.
type SettleRequest struct {
	SettlementID string   `json:"settlementId" binding:"omitempty,uuid"`
	PayerEmail   string   `json:"-"`
	AmountMinor  int64    `json:"amountMinor" binding:"min=0"`
	CartItemIDs  []string `json:"cartItemIds" binding:"omitempty,dive,uuid"`
	ClassIDs     []string `json:"classIds" binding:"omitempty,dive,uuid"`
}

type SettlementResult struct {
	PaymentRecordID string `json:"paymentRecordId"`
	ItemsRemoved    int    `json:"itemsRemoved"`
	ClassesCredited int    `json:"classesCredited"`
	// Replayed is true when this call found a prior completed settlement for
	// the same id and returned its stored result.
	Replayed bool `json:"replayed,omitempty"`
}

// PurchaseGroup is the caller-supplied shape for expanding prior purchases
// into class listings.
type PurchaseGroup struct {
	ClassIDs []string `json:"classIds"`
}
