package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// Hold lifecycle states as reported to callers.
const (
	StatusPending         = "pending"
	StatusRequiresCapture = "requires_capture"
	StatusSucceeded       = "succeeded"
	StatusCanceled        = "canceled"
	StatusFailed          = "failed"
)

// PurposeDeposit tags the holds this service creates; hold reuse is keyed on
// (booking_id, purpose).
const PurposeDeposit = "deposit"

// Hold is the processor-neutral view of a manual-capture charge.
type Hold struct {
	ChargeID       string `json:"charge_id"`
	BookingID      string `json:"booking_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`
}

func (h Hold) Active() bool {
	return h.Status == StatusPending || h.Status == StatusRequiresCapture
}

func (h Hold) Terminal() bool {
	return h.Status == StatusSucceeded || h.Status == StatusCanceled || h.Status == StatusFailed
}

type HoldInput struct {
	BookingID   string
	Amount      int64
	Currency    string
	CardToken   string
	Description string
}

type Service struct {
	omc      *omise.Client
	currency string
}

func NewService(omc *omise.Client, currency string) *Service {
	return &Service{omc: omc, currency: currency}
}

// CreateHold authorizes a card for the deposit amount without capturing it.
// Processor rejections (bad amount, bad token) are surfaced verbatim.
func (s *Service) CreateHold(in HoldInput) (Hold, error) {
	if in.Amount <= 0 || in.CardToken == "" {
		return Hold{}, errors.New("invalid params")
	}
	cur := in.Currency
	if cur == "" {
		cur = s.currency
	}
	ch := &omise.Charge{}
	req := &operations.CreateCharge{
		Amount:      in.Amount,
		Currency:    cur,
		Card:        in.CardToken,
		DontCapture: true,
		Description: in.Description,
		Metadata:    map[string]any{"booking_id": in.BookingID, "purpose": PurposeDeposit},
	}
	if err := s.omc.Do(ch, req); err != nil {
		return Hold{}, err
	}
	return holdFromCharge(ch), nil
}

// Capture settles an authorized hold. The processor rejects captures of
// reversed or already-captured charges, which is relied on for safety.
func (s *Service) Capture(chargeID string) (Hold, error) {
	ch := &omise.Charge{}
	if err := s.omc.Do(ch, &operations.CaptureCharge{ChargeID: chargeID}); err != nil {
		return Hold{}, err
	}
	return holdFromCharge(ch), nil
}

// Reverse releases an authorized hold back to the card.
func (s *Service) Reverse(chargeID string) (Hold, error) {
	ch := &omise.Charge{}
	if err := s.omc.Do(ch, &operations.ReverseCharge{ChargeID: chargeID}); err != nil {
		return Hold{}, err
	}
	return holdFromCharge(ch), nil
}

func (s *Service) GetCharge(chargeID string) (Hold, error) {
	ch := &omise.Charge{}
	if err := s.omc.Do(ch, &operations.RetrieveCharge{ChargeID: chargeID}); err != nil {
		return Hold{}, err
	}
	return holdFromCharge(ch), nil
}

// ListHolds scans one bounded page of recent charges.
func (s *Service) ListHolds() ([]Hold, error) {
	list := &omise.ChargeList{}
	if err := s.omc.Do(list, &operations.ListCharges{List: operations.List{Limit: 100}}); err != nil {
		return nil, err
	}
	out := make([]Hold, 0, len(list.Data))
	for _, ch := range list.Data {
		out = append(out, holdFromCharge(ch))
	}
	return out, nil
}

// ListHoldsForBooking filters the bounded page by metadata booking_id.
func (s *Service) ListHoldsForBooking(bookingID string) ([]Hold, error) {
	all, err := s.ListHolds()
	if err != nil {
		return nil, err
	}
	var out []Hold
	for _, h := range all {
		if h.BookingID == bookingID {
			out = append(out, h)
		}
	}
	return out, nil
}

// RetrieveEvent re-fetches a webhook event from the API, which both
// authenticates the callback and yields the authoritative charge payload.
func (s *Service) RetrieveEvent(eventID string) (key string, hold Hold, err error) {
	ev := &omise.Event{}
	if err := s.omc.Do(ev, &operations.RetrieveEvent{EventID: eventID}); err != nil {
		return "", Hold{}, err
	}
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return ev.Key, Hold{}, fmt.Errorf("marshal event data: %w", err)
	}
	var ch omise.Charge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return ev.Key, Hold{}, fmt.Errorf("unmarshal charge: %w", err)
	}
	return ev.Key, holdFromCharge(&ch), nil
}

func holdFromCharge(ch *omise.Charge) Hold {
	h := Hold{
		ChargeID: ch.ID,
		Amount:   ch.Amount,
		Currency: ch.Currency,
	}
	if v, ok := ch.Metadata["booking_id"].(string); ok {
		h.BookingID = v
	}
	if ch.FailureCode != nil {
		h.FailureCode = *ch.FailureCode
	}
	if ch.FailureMessage != nil {
		h.FailureMessage = *ch.FailureMessage
	}
	switch {
	case ch.Reversed:
		h.Status = StatusCanceled
	case string(ch.Status) == "failed" || string(ch.Status) == "expired":
		h.Status = StatusFailed
	case ch.Paid:
		h.Status = StatusSucceeded
	case ch.Authorized:
		h.Status = StatusRequiresCapture
	default:
		h.Status = StatusPending
	}
	return h
}
