package deposit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/koosverhagen/rental-backend/internal/notify"
	"github.com/koosverhagen/rental-backend/internal/payment"
	"github.com/koosverhagen/rental-backend/internal/planyo"
	"github.com/koosverhagen/rental-backend/internal/store"
	"github.com/koosverhagen/rental-backend/pkg/mq"
)

// ErrNoEmail is returned when a booking has no email on file; handlers map it
// to a 400 and nothing is sent.
var ErrNoEmail = errors.New("no email on file for booking")

// BookingDirectory is the read-only window onto the booking service.
type BookingDirectory interface {
	GetBooking(ctx context.Context, id string) planyo.Booking
	ListUpcoming(ctx context.Context, from, to time.Time, status int) ([]planyo.Booking, error)
}

// HoldProcessor is the payment-service surface the workflow needs.
type HoldProcessor interface {
	CreateHold(in payment.HoldInput) (payment.Hold, error)
	Capture(chargeID string) (payment.Hold, error)
	Reverse(chargeID string) (payment.Hold, error)
	GetCharge(chargeID string) (payment.Hold, error)
	ListHolds() ([]payment.Hold, error)
	ListHoldsForBooking(bookingID string) ([]payment.Hold, error)
}

type Service struct {
	bookings BookingDirectory
	holds    HoldProcessor
	repo     *store.Repo
	mail     notify.Mailer
	pub      *mq.Publisher // nil in tests; publishes are fire-and-forget

	publicBaseURL string
	depositAmount int64
	currency      string
}

func NewService(bookings BookingDirectory, holds HoldProcessor, repo *store.Repo, mail notify.Mailer, pub *mq.Publisher, publicBaseURL string, depositAmount int64, currency string) *Service {
	return &Service{
		bookings:      bookings,
		holds:         holds,
		repo:          repo,
		mail:          mail,
		pub:           pub,
		publicBaseURL: publicBaseURL,
		depositAmount: depositAmount,
		currency:      currency,
	}
}

func (s *Service) publish(ctx context.Context, key string, v any) {
	if s.pub == nil {
		return
	}
	_ = s.pub.PublishJSON(ctx, key, v)
}

func sentKey(bookingID string) string    { return "sent:" + bookingID }
func cancelKey(bookingID string) string  { return "cancel:" + bookingID }
func confirmKey(bookingID string) string { return "confirm:" + bookingID }

func (s *Service) PayURL(bookingID string) string {
	return s.publicBaseURL + "/deposit/pay/" + bookingID
}

func (s *Service) DepositAmount() int64 { return s.depositAmount }
func (s *Service) Currency() string     { return s.currency }

// SendResult reports what SendDepositLink did.
type SendResult struct {
	Sent       bool   `json:"sent"`
	Suppressed bool   `json:"suppressed"`
	PayURL     string `json:"pay_url,omitempty"`
}

// SendDepositLink emails the customer (and admin) the hosted card-entry link.
// A booking without an email errors out before anything is sent. A recent
// send suppresses the mail unless force is set; force never resets the
// existing record, so the natural expiry timing is preserved.
func (s *Service) SendDepositLink(ctx context.Context, bookingID string, force bool) (SendResult, error) {
	b := s.bookings.GetBooking(ctx, bookingID)
	if b.Email == "" {
		return SendResult{}, ErrNoEmail
	}

	recent, err := s.repo.HasRecent(ctx, sentKey(bookingID))
	if err != nil {
		return SendResult{}, err
	}
	if recent && !force {
		return SendResult{Suppressed: true}, nil
	}

	payURL := s.PayURL(bookingID)
	if err := s.mail.DepositLink(ctx, b, payURL); err != nil {
		return SendResult{}, err
	}
	if err := s.repo.MarkSent(ctx, sentKey(bookingID)); err != nil {
		return SendResult{}, err
	}

	s.publish(ctx, notify.RKLinkSent, notify.LinkSent{
		BookingID: bookingID, Email: b.Email, PayURL: payURL, Forced: force,
	})
	return SendResult{Sent: true, PayURL: payURL}, nil
}

// EnsureHold returns the active hold for (booking, deposit) if one exists,
// otherwise authorizes a new one. One active hold per booking and purpose.
func (s *Service) EnsureHold(ctx context.Context, bookingID string, amount int64, cardToken string) (payment.Hold, bool, error) {
	if amount <= 0 {
		amount = s.depositAmount
	}

	if rec, err := s.repo.ActiveHold(ctx, bookingID, payment.PurposeDeposit); err != nil {
		return payment.Hold{}, false, err
	} else if rec != nil {
		h, err := s.holds.GetCharge(rec.ChargeID)
		if err != nil {
			// the local record says a hold is live; authorizing another one
			// here could double-hold the card, so surface the lookup failure
			return payment.Hold{}, false, fmt.Errorf("refresh hold %s: %w", rec.ChargeID, err)
		}
		if h.Active() {
			return h, true, nil
		}
		if rec.Status != h.Status {
			// reconcile a hold that was reversed/captured behind our back
			_ = s.repo.UpdateHoldStatus(ctx, rec.ChargeID, h.Status)
		}
	}

	b := s.bookings.GetBooking(ctx, bookingID)
	h, err := s.holds.CreateHold(payment.HoldInput{
		BookingID:   bookingID,
		Amount:      amount,
		Currency:    s.currency,
		CardToken:   cardToken,
		Description: fmt.Sprintf("Security deposit for booking %s (%s)", bookingID, b.Resource),
	})
	if err != nil {
		return payment.Hold{}, false, err
	}

	if err := s.repo.SaveHold(ctx, &store.HoldRecord{
		BookingID: bookingID,
		Purpose:   payment.PurposeDeposit,
		ChargeID:  h.ChargeID,
		Amount:    h.Amount,
		Currency:  h.Currency,
		Status:    h.Status,
	}); err != nil {
		return payment.Hold{}, false, err
	}

	switch h.Status {
	case payment.StatusRequiresCapture:
		s.publish(ctx, notify.RKHoldAuthorized, notify.HoldEvent{
			BookingID: bookingID, ChargeID: h.ChargeID, Amount: h.Amount, Currency: h.Currency,
		})
	case payment.StatusFailed:
		s.publish(ctx, notify.RKHoldFailed, notify.HoldFailed{
			BookingID: bookingID, ChargeID: h.ChargeID,
			FailureCode: h.FailureCode, FailureMessage: h.FailureMessage,
		})
	}
	return h, false, nil
}

// Cancel reverses a hold. If the booking has an email on file a release
// notice goes out, suppressed to one per retention window so repeated cancel
// calls cannot spam the customer.
func (s *Service) Cancel(ctx context.Context, chargeID string) (payment.Hold, error) {
	h, err := s.holds.Reverse(chargeID)
	if err != nil {
		return payment.Hold{}, err
	}
	_ = s.repo.UpdateHoldStatus(ctx, chargeID, h.Status)

	if h.BookingID != "" {
		b := s.bookings.GetBooking(ctx, h.BookingID)
		if b.Email != "" {
			recent, rerr := s.repo.HasRecent(ctx, cancelKey(h.BookingID))
			if rerr == nil && !recent {
				if merr := s.mail.Cancellation(ctx, b, chargeID); merr != nil {
					log.Printf("[deposit] cancellation mail booking=%s: %v", h.BookingID, merr)
				} else {
					_ = s.repo.MarkSent(ctx, cancelKey(h.BookingID))
				}
			}
		}
	}

	s.publish(ctx, notify.RKCancelled, notify.HoldEvent{
		BookingID: h.BookingID, ChargeID: h.ChargeID, Amount: h.Amount, Currency: h.Currency,
	})
	return h, nil
}

// Capture settles a hold. The processor refuses to capture reversed charges,
// so a cancelled hold can never be captured through here.
func (s *Service) Capture(ctx context.Context, chargeID string) (payment.Hold, error) {
	h, err := s.holds.Capture(chargeID)
	if err != nil {
		return payment.Hold{}, err
	}
	_ = s.repo.UpdateHoldStatus(ctx, chargeID, h.Status)
	s.publish(ctx, notify.RKCaptured, notify.HoldEvent{
		BookingID: h.BookingID, ChargeID: h.ChargeID, Amount: h.Amount, Currency: h.Currency,
	})
	return h, nil
}

// SendConfirmation mails the authorisation receipt. Used by the explicit
// endpoint; the webhook path goes through HandleChargeEvent instead.
func (s *Service) SendConfirmation(ctx context.Context, bookingID, chargeID string) error {
	b := s.bookings.GetBooking(ctx, bookingID)
	if b.Email == "" {
		return ErrNoEmail
	}
	if chargeID == "" {
		rec, err := s.repo.ActiveHold(ctx, bookingID, payment.PurposeDeposit)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("no hold on record for booking %s", bookingID)
		}
		chargeID = rec.ChargeID
	}
	h, err := s.holds.GetCharge(chargeID)
	if err != nil {
		return err
	}
	return s.mail.Confirmation(ctx, b, h.Amount, h.Currency, h.ChargeID)
}

// Status reports the deposit state for a booking: the local record refreshed
// from the processor, falling back to a bounded scan of recent charges where
// the first terminal-or-active hold wins.
func (s *Service) Status(ctx context.Context, bookingID string) (payment.Hold, error) {
	if rec, err := s.repo.HoldsByBooking(ctx, bookingID); err == nil && len(rec) > 0 {
		h, gerr := s.holds.GetCharge(rec[0].ChargeID)
		if gerr == nil {
			if h.Status != rec[0].Status {
				_ = s.repo.UpdateHoldStatus(ctx, h.ChargeID, h.Status)
			}
			return h, nil
		}
	}

	holds, err := s.holds.ListHoldsForBooking(bookingID)
	if err != nil {
		return payment.Hold{}, err
	}
	for _, h := range holds {
		if h.Terminal() || h.Status == payment.StatusRequiresCapture {
			return h, nil
		}
	}
	if len(holds) > 0 {
		return holds[0], nil
	}
	return payment.Hold{}, fmt.Errorf("no hold found for booking %s", bookingID)
}

// ListAll exposes the processor's bounded recent-charges page for the admin
// terminal.
func (s *Service) ListAll(_ context.Context) ([]payment.Hold, error) {
	return s.holds.ListHolds()
}

// HandleChargeEvent processes a verified payment-processor event exactly
// once. Replays after the processed mark are no-ops. On a fresh
// authorisation the confirmation mail goes out, itself suppressed per
// booking so an event storm cannot re-send it.
func (s *Service) HandleChargeEvent(ctx context.Context, eventID string, h payment.Hold) error {
	done, err := s.repo.AlreadyProcessed(ctx, eventID)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	if h.Status == payment.StatusRequiresCapture && h.BookingID != "" {
		b := s.bookings.GetBooking(ctx, h.BookingID)
		if b.Email != "" {
			recent, rerr := s.repo.HasRecent(ctx, confirmKey(h.BookingID))
			if rerr == nil && !recent {
				if merr := s.mail.Confirmation(ctx, b, h.Amount, h.Currency, h.ChargeID); merr != nil {
					log.Printf("[deposit] confirmation mail booking=%s: %v", h.BookingID, merr)
				} else {
					_ = s.repo.MarkSent(ctx, confirmKey(h.BookingID))
				}
			}
		}
		s.publish(ctx, notify.RKHoldAuthorized, notify.HoldEvent{
			BookingID: h.BookingID, ChargeID: h.ChargeID, Amount: h.Amount, Currency: h.Currency,
		})
	}
	if h.Status == payment.StatusFailed {
		s.publish(ctx, notify.RKHoldFailed, notify.HoldFailed{
			BookingID: h.BookingID, ChargeID: h.ChargeID,
			FailureCode: h.FailureCode, FailureMessage: h.FailureMessage,
		})
	}

	return s.repo.ApplyChargeEvent(ctx, eventID, h.ChargeID, h.Status)
}

// HandleBookingCallback reacts to the booking service's confirmation webhook.
// Idempotent per booking: once handled, replays are no-ops. A booking without
// an email is marked handled too, as there is nothing a retry could send.
func (s *Service) HandleBookingCallback(ctx context.Context, bookingID string, status, confirmedStatus int) error {
	id := "planyo:" + bookingID
	done, err := s.repo.AlreadyProcessed(ctx, id)
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	if status != confirmedStatus {
		return nil // not a confirmation; leave unmarked so a later confirm still lands
	}

	if _, err := s.SendDepositLink(ctx, bookingID, false); err != nil {
		if errors.Is(err, ErrNoEmail) {
			return s.repo.MarkProcessed(ctx, id, "planyo")
		}
		return err
	}
	return s.repo.MarkProcessed(ctx, id, "planyo")
}

// RunSweep expires old sent-records.
func (s *Service) RunSweep(ctx context.Context) {
	n, err := s.repo.Sweep(ctx)
	if err != nil {
		log.Printf("[deposit] sweep: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[deposit] sweep removed %d expired sent-records", n)
	}
}
