package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/koosverhagen/rental-backend/internal/deposit"
	"github.com/koosverhagen/rental-backend/internal/planyo"
)

// Lister is the slice of the booking directory the scheduler needs.
type Lister interface {
	ListUpcoming(ctx context.Context, from, to time.Time, status int) ([]planyo.Booking, error)
}

// LinkSender sends the deposit-request mail; suppression of already-sent
// bookings lives behind this call.
type LinkSender interface {
	SendDepositLink(ctx context.Context, bookingID string, force bool) (deposit.SendResult, error)
}

// Sweeper expires old sent-records.
type Sweeper interface {
	RunSweep(ctx context.Context)
}

// Scheduler walks tomorrow's confirmed reservations on a cron spec and sends
// a deposit link for any not yet handled. A failed run just ends early; the
// idempotency store lets the next run retry what was missed.
type Scheduler struct {
	cron *cron.Cron

	lister Lister
	sender LinkSender
	loc    *time.Location
	status int
}

func New(loc *time.Location, lister Lister, sender LinkSender, confirmedStatus int) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		lister: lister,
		sender: sender,
		loc:    loc,
		status: confirmedStatus,
	}
}

// Register mounts the send run and the nightly sweep; Start begins ticking.
func (s *Scheduler) Register(sendSpec, sweepSpec string, sweeper Sweeper) error {
	if _, err := s.cron.AddFunc(sendSpec, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			log.Printf("[scheduler] run aborted: %v", err)
		}
	}); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(sweepSpec, func() {
		sweeper.RunSweep(context.Background())
	}); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

// TomorrowWindow is [midnight tomorrow, midnight the day after) in loc.
func TomorrowWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	n := now.In(loc)
	from := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	return from, from.AddDate(0, 0, 1)
}

// RunOnce performs a single pass. The first hard error ends the run early;
// bookings without an email are skipped, and suppressed sends are counted but
// not errors.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	from, to := TomorrowWindow(time.Now(), s.loc)
	bookings, err := s.lister.ListUpcoming(ctx, from, to, s.status)
	if err != nil {
		return err
	}

	var sent, suppressed, skipped int
	for _, b := range bookings {
		res, err := s.sender.SendDepositLink(ctx, b.ID, false)
		if err != nil {
			if errors.Is(err, deposit.ErrNoEmail) {
				skipped++
				log.Printf("[scheduler] booking %s has no email, skipped", b.ID)
				continue
			}
			return err
		}
		if res.Suppressed {
			suppressed++
		} else {
			sent++
		}
	}
	log.Printf("[scheduler] window %s..%s sent=%d suppressed=%d skipped=%d",
		from.Format("2006-01-02"), to.Format("2006-01-02"), sent, suppressed, skipped)
	return nil
}
