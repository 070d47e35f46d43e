package store

import "time"

// SentDeposit marks that a mail keyed by Key went out. Keys are namespaced
// ("sent:<bookingID>", "cancel:<bookingID>", "confirm:<bookingID>") so the
// same retention window covers every suppressed mail kind.
type SentDeposit struct {
	Key    string    `gorm:"primaryKey"`
	SentAt time.Time `gorm:"index"`
}

// ProcessedCallback records a webhook/callback that has been fully handled;
// replays after the mark are no-ops.
type ProcessedCallback struct {
	ID          string `gorm:"primaryKey"` // event id or "planyo:<bookingID>"
	Source      string `gorm:"index"`      // omise | planyo
	ProcessedAt time.Time
}

// HoldRecord is the local view of a manual-capture charge, keyed so an active
// hold per (booking, purpose) can be reused instead of minting a duplicate.
type HoldRecord struct {
	ID        string `gorm:"primaryKey"`
	BookingID string `gorm:"index:idx_hold_booking"`
	Purpose   string `gorm:"index:idx_hold_booking"`
	ChargeID  string `gorm:"uniqueIndex"`
	Amount    int64
	Currency  string
	Status    string `gorm:"index"` // pending|requires_capture|succeeded|canceled|failed
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DVLA licence-verification states.
const (
	DVLAPending = "pending"
	DVLAChecked = "checked"
	DVLAValid   = "valid"
	DVLAInvalid = "invalid"
)

// FormStatus tracks which questionnaire variants a customer completed and the
// licence-verification state, mutated by the form/DVLA endpoints.
type FormStatus struct {
	BookingID         string `gorm:"primaryKey"`
	InsuranceFormDone bool
	ConditionFormDone bool
	DVLAStatus        string
	LicenceNumber     string
	UpdatedAt         time.Time
}
