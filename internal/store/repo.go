package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db        *gorm.DB
	retention time.Duration
	now       func() time.Time
}

func NewRepo(db *gorm.DB, retention time.Duration) *Repo {
	return &Repo{db: db, retention: retention, now: time.Now}
}

func (r *Repo) Migrate() error {
	return r.db.AutoMigrate(&SentDeposit{}, &ProcessedCallback{}, &HoldRecord{}, &FormStatus{})
}

// ---------- sent-record suppression ----------

func (r *Repo) HasRecent(ctx context.Context, key string) (bool, error) {
	cutoff := r.now().Add(-r.retention)
	var n int64
	err := r.db.WithContext(ctx).Model(&SentDeposit{}).
		Where("key = ? AND sent_at > ?", key, cutoff).
		Count(&n).Error
	return n > 0, err
}

// MarkSent records a send. While the previous record is still within the
// retention window the row is left untouched, so a forced re-send never
// resets its expiry timing. Once the record has aged past the window the
// upsert refreshes sent_at, otherwise a stale row would block recording
// legitimate re-sends until the sweep deletes it.
func (r *Repo) MarkSent(ctx context.Context, key string) error {
	now := r.now().UTC()
	cutoff := now.Add(-r.retention)
	rec := SentDeposit{Key: key, SentAt: now}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.Assignments(map[string]any{"sent_at": now}),
			Where:     clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "sent_deposits.sent_at <= ?", Vars: []any{cutoff}}}},
		}).
		Create(&rec).Error
}

// Sweep removes only entries older than the retention window.
func (r *Repo) Sweep(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.retention)
	res := r.db.WithContext(ctx).Where("sent_at <= ?", cutoff).Delete(&SentDeposit{})
	return res.RowsAffected, res.Error
}

// ---------- processed callbacks ----------

func (r *Repo) AlreadyProcessed(ctx context.Context, id string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&ProcessedCallback{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (r *Repo) MarkProcessed(ctx context.Context, id, source string) error {
	rec := ProcessedCallback{ID: id, Source: source, ProcessedAt: r.now().UTC()}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
}

// ApplyChargeEvent updates the hold record and marks the event processed in
// one transaction, so a replayed webhook observes the processed mark even if
// the process died between the two writes.
func (r *Repo) ApplyChargeEvent(ctx context.Context, eventID, chargeID, status string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&ProcessedCallback{}).Where("id = ?", eventID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if err := tx.Model(&HoldRecord{}).
			Where("charge_id = ?", chargeID).
			Updates(map[string]any{"status": status, "updated_at": r.now().UTC()}).Error; err != nil {
			return err
		}
		rec := ProcessedCallback{ID: eventID, Source: "omise", ProcessedAt: r.now().UTC()}
		return tx.Create(&rec).Error
	})
}

// ---------- hold records ----------

var activeStatuses = []string{"pending", "requires_capture"}

// ActiveHold returns the newest non-terminal hold for (bookingID, purpose),
// or nil when there is none.
func (r *Repo) ActiveHold(ctx context.Context, bookingID, purpose string) (*HoldRecord, error) {
	var h HoldRecord
	err := r.db.WithContext(ctx).
		Where("booking_id = ? AND purpose = ? AND status IN ?", bookingID, purpose, activeStatuses).
		Order("created_at DESC").
		First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *Repo) SaveHold(ctx context.Context, h *HoldRecord) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "charge_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "amount", "currency", "updated_at"}),
		}).
		Create(h).Error
}

func (r *Repo) UpdateHoldStatus(ctx context.Context, chargeID, status string) error {
	return r.db.WithContext(ctx).Model(&HoldRecord{}).
		Where("charge_id = ?", chargeID).
		Updates(map[string]any{"status": status, "updated_at": r.now().UTC()}).Error
}

func (r *Repo) HoldByCharge(ctx context.Context, chargeID string) (*HoldRecord, error) {
	var h HoldRecord
	err := r.db.WithContext(ctx).First(&h, "charge_id = ?", chargeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *Repo) HoldsByBooking(ctx context.Context, bookingID string) ([]HoldRecord, error) {
	var out []HoldRecord
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// ---------- form / DVLA status ----------

func (r *Repo) GetFormStatus(ctx context.Context, bookingID string) (FormStatus, error) {
	var fs FormStatus
	err := r.db.WithContext(ctx).First(&fs, "booking_id = ?", bookingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return FormStatus{BookingID: bookingID, DVLAStatus: DVLAPending}, nil
	}
	return fs, err
}

// MarkFormDone flips one questionnaire-variant flag; variant is
// "insurance" or "condition".
func (r *Repo) MarkFormDone(ctx context.Context, bookingID, variant string) (FormStatus, error) {
	fs, err := r.GetFormStatus(ctx, bookingID)
	if err != nil {
		return fs, err
	}
	switch variant {
	case "insurance":
		fs.InsuranceFormDone = true
	case "condition":
		fs.ConditionFormDone = true
	default:
		return fs, errors.New("unknown form variant: " + variant)
	}
	fs.UpdatedAt = r.now().UTC()
	return fs, r.upsertFormStatus(ctx, &fs)
}

func (r *Repo) SetDVLAStatus(ctx context.Context, bookingID, status, licenceNumber string) (FormStatus, error) {
	switch status {
	case DVLAPending, DVLAChecked, DVLAValid, DVLAInvalid:
	default:
		return FormStatus{}, errors.New("unknown dvla status: " + status)
	}
	fs, err := r.GetFormStatus(ctx, bookingID)
	if err != nil {
		return fs, err
	}
	fs.DVLAStatus = status
	if licenceNumber != "" {
		fs.LicenceNumber = licenceNumber
	}
	fs.UpdatedAt = r.now().UTC()
	return fs, r.upsertFormStatus(ctx, &fs)
}

func (r *Repo) upsertFormStatus(ctx context.Context, fs *FormStatus) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "booking_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"insurance_form_done", "condition_form_done", "dvla_status", "licence_number", "updated_at"}),
		}).
		Create(fs).Error
}
