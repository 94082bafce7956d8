package payments

import (
	"context"
	"errors"
)

var ErrProcessorUnavailable = errors.New("payment processor unavailable")

type CreateIntentInput struct {
	PayerEmail  string
	AmountMinor int64
	Currency    string
}

// Intent is the client-facing handle for an external charge. The client
// completes the charge against the provider and then calls settle with the
// settlement id it minted up front.
type Intent struct {
	ProviderRef string `json:"providerRef"`
	AmountMinor int64  `json:"amountMinor"`
	Currency    string `json:"currency"`
	Flow        string `json:"flow"`
}

type Processor interface {
	CreateIntent(ctx context.Context, in CreateIntentInput) (Intent, error)
}
