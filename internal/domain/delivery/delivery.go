package delivery

import "errors"

// Delivery state for outbound notifications. One row per (kind, settlement)
// pair keeps retried jobs from sending the same confirmation twice.
var (
	ErrAlreadySent = errors.New("notification already sent")
	ErrInProgress  = errors.New("notification delivery in progress")
)
