package jobs

import (
	"encoding/json"
	"time"
)

const TypeSettlementConfirmation = "settlement.confirmation"

// SettlementConfirmationPayload is the outbox message written in the same
// transaction as the settlement ledger row. ID-based on purpose; the worker
// reloads anything else it needs from the database.
type SettlementConfirmationPayload struct {
	SettlementID    string    `json:"settlementId"`
	PaymentRecordID string    `json:"paymentRecordId"`
	PayerEmail      string    `json:"payerEmail"`
	PayerName       string    `json:"payerName,omitempty"`
	AmountMinor     int64     `json:"amountMinor"`
	ClassesCredited int       `json:"classesCredited"`
	RequestedAt     time.Time `json:"requestedAt"`
	RequestID       string    `json:"requestId,omitempty"`
}

func (p SettlementConfirmationPayload) JSON() (json.RawMessage, error) {
	b, err := json.Marshal(p)

	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
