package notify

import (
	"encoding/json"
	"fmt"
)

// Routing keys published on the deposit exchange and consumed by the ops
// worker.
const (
	RKLinkSent       = "deposit.link_sent"
	RKHoldAuthorized = "deposit.hold_authorized"
	RKCaptured       = "deposit.captured"
	RKCancelled      = "deposit.cancelled"
	RKHoldFailed     = "deposit.hold_failed"
)

type LinkSent struct {
	BookingID string `json:"booking_id"`
	Email     string `json:"email"`
	PayURL    string `json:"pay_url"`
	Forced    bool   `json:"forced,omitempty"`
}

type HoldEvent struct {
	BookingID string `json:"booking_id"`
	ChargeID  string `json:"charge_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type HoldFailed struct {
	BookingID      string `json:"booking_id"`
	ChargeID       string `json:"charge_id"`
	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`
}

func Unmarshal[T any](b []byte) (T, error) {
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		var zero T
		return zero, fmt.Errorf("decode payload failed: %w", err)
	}
	return t, nil
}
