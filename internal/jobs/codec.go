package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yogalab/classhub/internal/domain/job"
)

// DecodeSettlementConfirmation unmarshals and sanity-checks an outbox row.
func DecodeSettlementConfirmation(j job.Job) (SettlementConfirmationPayload, error) {
	var p SettlementConfirmationPayload

	if j.Type != TypeSettlementConfirmation {
		return p, ErrInvalidJobType
	}
	if len(j.Payload) == 0 {
		return p, ErrInvalidJobPayload
	}

	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	if strings.TrimSpace(p.SettlementID) == "" || strings.TrimSpace(p.PayerEmail) == "" {
		return p, ErrInvalidJobPayload
	}

	return p, nil
}
