package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/koosverhagen/rental-backend/pkg/mq"
)

// Worker consumes deposit.* events off the ops queue and surfaces them on a
// channel an operator actually watches. Customer mail goes out synchronously
// from the workflow; this stream is for the back office.
type Worker struct {
	cons    *mq.Consumer
	forward func(subject, message string) error
}

func NewWorker(cons *mq.Consumer) *Worker {
	return &Worker{
		cons: cons,
		forward: func(subject, message string) error {
			log.Printf("[ops] %s :: %s", subject, message)
			return nil
		},
	}
}

func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.cons.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("consume failed: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := w.handle(d.RoutingKey, d.Body); err != nil {
				log.Printf("[ops] handle error key=%s err=%v -> Nack", d.RoutingKey, err)
				_ = d.Nack(false, false) // bad payloads go to the DLQ, not back on the queue
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (w *Worker) handle(key string, body []byte) error {
	switch key {
	case RKLinkSent:
		ev, err := Unmarshal[LinkSent](body)
		if err != nil {
			return err
		}
		forced := ""
		if ev.Forced {
			forced = " (forced)"
		}
		return w.forward("Deposit link sent"+forced,
			fmt.Sprintf("booking %s -> %s (%s)", ev.BookingID, ev.Email, ev.PayURL))

	case RKHoldAuthorized:
		ev, err := Unmarshal[HoldEvent](body)
		if err != nil {
			return err
		}
		return w.forward("Deposit hold authorised",
			fmt.Sprintf("booking %s held %s (charge %s)", ev.BookingID, AmountText(ev.Amount, ev.Currency), ev.ChargeID))

	case RKCaptured:
		ev, err := Unmarshal[HoldEvent](body)
		if err != nil {
			return err
		}
		return w.forward("Deposit captured",
			fmt.Sprintf("booking %s captured %s (charge %s)", ev.BookingID, AmountText(ev.Amount, ev.Currency), ev.ChargeID))

	case RKCancelled:
		ev, err := Unmarshal[HoldEvent](body)
		if err != nil {
			return err
		}
		return w.forward("Deposit hold released",
			fmt.Sprintf("booking %s charge %s", ev.BookingID, ev.ChargeID))

	case RKHoldFailed:
		ev, err := Unmarshal[HoldFailed](body)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("booking %s charge %s", ev.BookingID, ev.ChargeID)
		if ev.FailureCode != "" || ev.FailureMessage != "" {
			msg = fmt.Sprintf("%s reason: %s %s", msg, ev.FailureCode, ev.FailureMessage)
		}
		return w.forward("Deposit hold FAILED", msg)

	default:
		log.Printf("[ops] skip unknown key=%s", key)
	}
	return nil
}
