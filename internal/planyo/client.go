package planyo

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// Booking is the slice of a reservation this service consumes. Lookups never
// fail loudly: on any error the record comes back with sentinel fields and an
// empty Email, and callers gate sends on Email alone.
type Booking struct {
	ID        string  `json:"reservation_id"`
	Resource  string  `json:"resource"`
	Start     string  `json:"start_time"`
	End       string  `json:"end_time"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Status    int     `json:"status"`
	Total     float64 `json:"total_price"`
	Paid      float64 `json:"amount_paid"`
}

func (b Booking) CustomerName() string {
	switch {
	case b.FirstName == "" && b.LastName == "":
		return "N/A"
	case b.LastName == "":
		return b.FirstName
	default:
		return b.FirstName + " " + b.LastName
	}
}

func sentinelBooking(id string) Booking {
	return Booking{ID: id, Resource: "N/A", Start: "", End: "", Email: ""}
}

type Client struct {
	s *Signer
}

func NewClient(s *Signer) *Client { return &Client{s: s} }

type reservationData struct {
	Name       string `json:"name"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Status     string `json:"status"`
	TotalPrice string `json:"total_price"`
	AmountPaid string `json:"amount_paid"`
}

// GetBooking maps get_reservation_data. Same-shaped sentinel record on any
// failure so callers need no error branch.
func (c *Client) GetBooking(ctx context.Context, id string) Booking {
	res, err := c.s.Call(ctx, "get_reservation_data", url.Values{"reservation_id": {id}})
	if err != nil || !res.OK() || len(res.Data) == 0 {
		return sentinelBooking(id)
	}
	var d reservationData
	if err := json.Unmarshal(res.Data, &d); err != nil {
		return sentinelBooking(id)
	}
	b := Booking{
		ID:        id,
		Resource:  d.Name,
		Start:     d.StartTime,
		End:       d.EndTime,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Email:     d.Email,
	}
	if b.Resource == "" {
		b.Resource = "N/A"
	}
	b.Status, _ = strconv.Atoi(d.Status)
	b.Total, _ = strconv.ParseFloat(d.TotalPrice, 64)
	b.Paid, _ = strconv.ParseFloat(d.AmountPaid, 64)
	return b
}

type listPayload struct {
	Results []struct {
		ReservationID json.Number `json:"reservation_id"`
		reservationData
	} `json:"results"`
}

// ListUpcoming maps list_reservations over [from, to), filtered to a single
// reservation status code. Unlike GetBooking this returns the error: the
// scheduler logs it and ends the run early.
func (c *Client) ListUpcoming(ctx context.Context, from, to time.Time, status int) ([]Booking, error) {
	params := url.Values{
		"start_time":   {from.Format("2006-01-02 15:04:05")},
		"end_time":     {to.Format("2006-01-02 15:04:05")},
		"req_status":   {strconv.Itoa(status)},
		"detail_level": {"1"},
	}
	res, err := c.s.Call(ctx, "list_reservations", params)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, &APIError{Method: "list_reservations", Code: res.Code, Message: res.Message, Raw: res.Raw}
	}
	var p listPayload
	if err := json.Unmarshal(res.Data, &p); err != nil {
		return nil, err
	}
	out := make([]Booking, 0, len(p.Results))
	for _, r := range p.Results {
		b := Booking{
			ID:        r.ReservationID.String(),
			Resource:  r.Name,
			Start:     r.StartTime,
			End:       r.EndTime,
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Email:     r.Email,
		}
		b.Status, _ = strconv.Atoi(r.Status)
		b.Total, _ = strconv.ParseFloat(r.TotalPrice, 64)
		b.Paid, _ = strconv.ParseFloat(r.AmountPaid, 64)
		out = append(out, b)
	}
	return out, nil
}

// APIError is a non-ok Planyo result surfaced to a caller that must know.
type APIError struct {
	Method  string
	Code    int
	Message string
	Raw     []byte
}

func (e *APIError) Error() string {
	return "planyo " + e.Method + ": " + e.Message + " (code " + strconv.Itoa(e.Code) + ")"
}
