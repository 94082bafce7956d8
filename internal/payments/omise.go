package payments

import (
	"context"
	"fmt"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// OmiseProcessor creates promptpay sources. Promptpay needs no return_uri,
// so the SDK call is enough; the source id goes back to the client as the
// provider reference.
type OmiseProcessor struct {
	client   *omise.Client
	currency string
}

func NewOmiseProcessor(publicKey, secretKey, currency string) (*OmiseProcessor, error) {
	c, err := omise.NewClient(publicKey, secretKey)

	if err != nil {
		return nil, err
	}

	return &OmiseProcessor{client: c, currency: currency}, nil
}

func (p *OmiseProcessor) CreateIntent(ctx context.Context, in CreateIntentInput) (Intent, error) {
	if in.AmountMinor <= 0 {
		return Intent{}, fmt.Errorf("invalid amount: %d", in.AmountMinor)
	}

	currency := in.Currency
	if currency == "" {
		currency = p.currency
	}

	src := &omise.Source{}
	req := &operations.CreateSource{
		Type:     "promptpay",
		Amount:   in.AmountMinor,
		Currency: currency,
	}

	// WithContext mutates the client, so bind the deadline to a per-call
	// copy instead of the shared one.
	client := *p.client
	client.WithContext(ctx)

	if err := client.Do(src, req); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}

	return Intent{
		ProviderRef: src.ID,
		AmountMinor: in.AmountMinor,
		Currency:    currency,
		Flow:        "promptpay",
	}, nil
}
