package deposit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/koosverhagen/rental-backend/internal/payment"
	"github.com/koosverhagen/rental-backend/internal/planyo"
	"github.com/koosverhagen/rental-backend/internal/store"
)

// ---------- fakes ----------

type fakeDirectory struct {
	bookings map[string]planyo.Booking
}

func (f *fakeDirectory) GetBooking(_ context.Context, id string) planyo.Booking {
	if b, ok := f.bookings[id]; ok {
		return b
	}
	return planyo.Booking{ID: id, Resource: "N/A"}
}

func (f *fakeDirectory) ListUpcoming(_ context.Context, _, _ time.Time, _ int) ([]planyo.Booking, error) {
	var out []planyo.Booking
	for _, b := range f.bookings {
		out = append(out, b)
	}
	return out, nil
}

type fakeProcessor struct {
	charges map[string]payment.Hold
	created int
	nextErr error
	getErr  error
}

func (f *fakeProcessor) CreateHold(in payment.HoldInput) (payment.Hold, error) {
	if f.nextErr != nil {
		return payment.Hold{}, f.nextErr
	}
	f.created++
	h := payment.Hold{
		ChargeID:  fmt.Sprintf("chrg_%d", f.created),
		BookingID: in.BookingID,
		Amount:    in.Amount,
		Currency:  in.Currency,
		Status:    payment.StatusRequiresCapture,
	}
	f.charges[h.ChargeID] = h
	return h, nil
}

func (f *fakeProcessor) Capture(chargeID string) (payment.Hold, error) {
	h, ok := f.charges[chargeID]
	if !ok {
		return payment.Hold{}, errors.New("no such charge")
	}
	if h.Status == payment.StatusCanceled {
		return payment.Hold{}, errors.New("charge was reversed")
	}
	h.Status = payment.StatusSucceeded
	f.charges[chargeID] = h
	return h, nil
}

func (f *fakeProcessor) Reverse(chargeID string) (payment.Hold, error) {
	h, ok := f.charges[chargeID]
	if !ok {
		return payment.Hold{}, errors.New("no such charge")
	}
	if h.Status == payment.StatusCanceled {
		return payment.Hold{}, errors.New("charge already reversed")
	}
	h.Status = payment.StatusCanceled
	f.charges[chargeID] = h
	return h, nil
}

func (f *fakeProcessor) GetCharge(chargeID string) (payment.Hold, error) {
	if f.getErr != nil {
		err := f.getErr
		f.getErr = nil
		return payment.Hold{}, err
	}
	h, ok := f.charges[chargeID]
	if !ok {
		return payment.Hold{}, errors.New("no such charge")
	}
	return h, nil
}

func (f *fakeProcessor) ListHolds() ([]payment.Hold, error) {
	var out []payment.Hold
	for _, h := range f.charges {
		out = append(out, h)
	}
	return out, nil
}

func (f *fakeProcessor) ListHoldsForBooking(bookingID string) ([]payment.Hold, error) {
	var out []payment.Hold
	for _, h := range f.charges {
		if h.BookingID == bookingID {
			out = append(out, h)
		}
	}
	return out, nil
}

type fakeMailer struct {
	links         int
	cancellations int
	confirmations int
	fail          bool
}

func (f *fakeMailer) DepositLink(_ context.Context, _ planyo.Booking, _ string) error {
	if f.fail {
		return errors.New("smtp down")
	}
	f.links++
	return nil
}

func (f *fakeMailer) Cancellation(_ context.Context, _ planyo.Booking, _ string) error {
	f.cancellations++
	return nil
}

func (f *fakeMailer) Confirmation(_ context.Context, _ planyo.Booking, _ int64, _, _ string) error {
	f.confirmations++
	return nil
}

// ---------- harness ----------

func newTestService(t *testing.T) (*Service, *fakeDirectory, *fakeProcessor, *fakeMailer) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo := store.NewRepo(gdb, 72*time.Hour)
	if err := repo.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	dir := &fakeDirectory{bookings: map[string]planyo.Booking{
		"100": {ID: "100", Resource: "Luton Van", Start: "2026-09-01 09:00", End: "2026-09-02 17:00", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		"200": {ID: "200", Resource: "Sprinter", Start: "2026-09-01 09:00", End: "2026-09-03 17:00", FirstName: "Bob"},
	}}
	proc := &fakeProcessor{charges: map[string]payment.Hold{}}
	mail := &fakeMailer{}
	svc := NewService(dir, proc, repo, mail, nil, "https://deposits.example.com", 25000, "gbp")
	return svc, dir, proc, mail
}

// ---------- tests ----------

func TestSendDepositLinkNoEmail(t *testing.T) {
	svc, _, _, mail := newTestService(t)
	_, err := svc.SendDepositLink(context.Background(), "200", false)
	if !errors.Is(err, ErrNoEmail) {
		t.Fatalf("err = %v, want ErrNoEmail", err)
	}
	if mail.links != 0 {
		t.Fatal("no mail may be sent for a booking without an email")
	}
}

func TestSendDepositLinkSuppression(t *testing.T) {
	svc, _, _, mail := newTestService(t)
	ctx := context.Background()

	res, err := svc.SendDepositLink(ctx, "100", false)
	if err != nil || !res.Sent {
		t.Fatalf("first send: %+v %v", res, err)
	}
	if res.PayURL != "https://deposits.example.com/deposit/pay/100" {
		t.Errorf("pay url = %q", res.PayURL)
	}

	res, err = svc.SendDepositLink(ctx, "100", false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Suppressed || res.Sent {
		t.Fatalf("second send: %+v, want suppressed", res)
	}
	if mail.links != 1 {
		t.Fatalf("mailer invoked %d times, want 1", mail.links)
	}
}

func TestSendDepositLinkForce(t *testing.T) {
	svc, _, _, mail := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SendDepositLink(ctx, "100", false); err != nil {
		t.Fatal(err)
	}
	res, err := svc.SendDepositLink(ctx, "100", true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Sent {
		t.Fatalf("forced send: %+v", res)
	}
	if mail.links != 2 {
		t.Fatalf("mailer invoked %d times, want 2", mail.links)
	}
}

func TestSendDepositLinkMailFailureLeavesNoMark(t *testing.T) {
	svc, _, _, mail := newTestService(t)
	ctx := context.Background()

	mail.fail = true
	if _, err := svc.SendDepositLink(ctx, "100", false); err == nil {
		t.Fatal("want error when mail fails")
	}

	// the failed attempt must not suppress the retry
	mail.fail = false
	res, err := svc.SendDepositLink(ctx, "100", false)
	if err != nil || !res.Sent {
		t.Fatalf("retry after failure: %+v %v", res, err)
	}
}

func TestEnsureHoldReusesActive(t *testing.T) {
	svc, _, proc, _ := newTestService(t)
	ctx := context.Background()

	h1, reused, err := svc.EnsureHold(ctx, "100", 0, "tok_1")
	if err != nil || reused {
		t.Fatalf("first hold: %v reused=%v", err, reused)
	}
	if h1.Amount != 25000 {
		t.Errorf("default amount = %d", h1.Amount)
	}

	h2, reused, err := svc.EnsureHold(ctx, "100", 0, "tok_2")
	if err != nil {
		t.Fatal(err)
	}
	if !reused || h2.ChargeID != h1.ChargeID {
		t.Fatalf("want reuse of %s, got %s reused=%v", h1.ChargeID, h2.ChargeID, reused)
	}
	if proc.created != 1 {
		t.Fatalf("processor created %d holds, want 1", proc.created)
	}
}

func TestEnsureHoldRefreshFailureDoesNotCreate(t *testing.T) {
	svc, _, proc, _ := newTestService(t)
	ctx := context.Background()

	h1, _, err := svc.EnsureHold(ctx, "100", 0, "tok_1")
	if err != nil {
		t.Fatal(err)
	}

	// transient processor failure while an active record exists: the call
	// must error out rather than authorize a second hold on the same card
	proc.getErr = errors.New("processor unavailable")
	if _, _, err := svc.EnsureHold(ctx, "100", 0, "tok_2"); err == nil {
		t.Fatal("want error when the active hold cannot be refreshed")
	}
	if proc.created != 1 {
		t.Fatalf("processor created %d holds, want 1", proc.created)
	}

	// once the processor recovers the original hold is reused
	h2, reused, err := svc.EnsureHold(ctx, "100", 0, "tok_2")
	if err != nil || !reused || h2.ChargeID != h1.ChargeID {
		t.Fatalf("after recovery: %+v reused=%v %v", h2, reused, err)
	}
}

func TestEnsureHoldCreatesAfterCancel(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	h1, _, err := svc.EnsureHold(ctx, "100", 0, "tok_1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Cancel(ctx, h1.ChargeID); err != nil {
		t.Fatal(err)
	}

	h2, reused, err := svc.EnsureHold(ctx, "100", 0, "tok_2")
	if err != nil {
		t.Fatal(err)
	}
	if reused || h2.ChargeID == h1.ChargeID {
		t.Fatal("a canceled hold must not be reused")
	}
}

func TestCancelSendsOneNotice(t *testing.T) {
	svc, _, _, mail := newTestService(t)
	ctx := context.Background()

	h1, _, err := svc.EnsureHold(ctx, "100", 0, "tok_1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Cancel(ctx, h1.ChargeID); err != nil {
		t.Fatal(err)
	}
	if mail.cancellations != 1 {
		t.Fatalf("cancellations = %d", mail.cancellations)
	}

	// second cancel of the same charge is rejected by the processor
	if _, err := svc.Cancel(ctx, h1.ChargeID); err == nil {
		t.Fatal("processor must reject the second reverse")
	}

	// a fresh hold cancelled within the window does not re-notify
	h2, _, err := svc.EnsureHold(ctx, "100", 0, "tok_2")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Cancel(ctx, h2.ChargeID); err != nil {
		t.Fatal(err)
	}
	if mail.cancellations != 1 {
		t.Fatalf("cancellations = %d, want still 1", mail.cancellations)
	}
}

func TestCanceledHoldCannotBeCaptured(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	h, _, err := svc.EnsureHold(ctx, "100", 0, "tok_1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Cancel(ctx, h.ChargeID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Capture(ctx, h.ChargeID); err == nil {
		t.Fatal("capture after cancel must fail")
	}
}

func TestHandleChargeEventIdempotent(t *testing.T) {
	svc, _, proc, mail := newTestService(t)
	ctx := context.Background()

	h, _, err := svc.EnsureHold(ctx, "100", 0, "tok_1")
	if err != nil {
		t.Fatal(err)
	}
	ev := proc.charges[h.ChargeID]

	if err := svc.HandleChargeEvent(ctx, "evt_1", ev); err != nil {
		t.Fatal(err)
	}
	if mail.confirmations != 1 {
		t.Fatalf("confirmations = %d", mail.confirmations)
	}

	// replay of the same event is a no-op
	if err := svc.HandleChargeEvent(ctx, "evt_1", ev); err != nil {
		t.Fatal(err)
	}
	// distinct event for the same charge: confirmation suppressed per booking
	if err := svc.HandleChargeEvent(ctx, "evt_2", ev); err != nil {
		t.Fatal(err)
	}
	if mail.confirmations != 1 {
		t.Fatalf("confirmations after replays = %d, want 1", mail.confirmations)
	}
}

func TestHandleBookingCallback(t *testing.T) {
	svc, _, _, mail := newTestService(t)
	ctx := context.Background()

	if err := svc.HandleBookingCallback(ctx, "100", 4, 4); err != nil {
		t.Fatal(err)
	}
	if mail.links != 1 {
		t.Fatalf("links = %d", mail.links)
	}

	// replayed callback is a no-op
	if err := svc.HandleBookingCallback(ctx, "100", 4, 4); err != nil {
		t.Fatal(err)
	}
	if mail.links != 1 {
		t.Fatalf("links after replay = %d", mail.links)
	}

	// non-confirmation status does nothing and stays retryable
	if err := svc.HandleBookingCallback(ctx, "300", 2, 4); err != nil {
		t.Fatal(err)
	}
	if mail.links != 1 {
		t.Fatal("non-confirmed callback must not send")
	}

	// no-email booking: handled once, no mail, no error
	if err := svc.HandleBookingCallback(ctx, "200", 4, 4); err != nil {
		t.Fatal(err)
	}
	if mail.links != 1 {
		t.Fatal("no-email booking must not send")
	}
}

func TestStatusReportsHold(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	h, _, err := svc.EnsureHold(ctx, "100", 0, "tok_1")
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.Status(ctx, "100")
	if err != nil {
		t.Fatal(err)
	}
	if got.ChargeID != h.ChargeID || got.Status != payment.StatusRequiresCapture {
		t.Fatalf("status = %+v", got)
	}

	if _, err := svc.Status(ctx, "does-not-exist"); err == nil {
		t.Fatal("unknown booking must error")
	}
}
