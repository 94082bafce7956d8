package notifications

import "context"

type SendSettlementConfirmationInput struct {
	Email           string
	Name            string
	SettlementID    string
	PaymentRecordID string
	AmountMinor     int64
	ClassesCredited int
}

type Notifier interface {
	SendSettlementConfirmation(ctx context.Context, input SendSettlementConfirmationInput) error
}
