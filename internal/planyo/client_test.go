package planyo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetBookingParsesFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response_code":0,"data":{
			"name":"Transit Custom LWB",
			"start_time":"2026-09-01 09:00",
			"end_time":"2026-09-03 17:00",
			"first_name":"Ada","last_name":"Lovelace",
			"email":"ada@example.com",
			"status":"4","total_price":"180.00","amount_paid":"180.00"}}`)
	}))
	defer srv.Close()

	c := NewClient(testSigner(srv.URL))
	b := c.GetBooking(context.Background(), "555")
	if b.Resource != "Transit Custom LWB" {
		t.Errorf("resource = %q", b.Resource)
	}
	if b.Email != "ada@example.com" {
		t.Errorf("email = %q", b.Email)
	}
	if b.CustomerName() != "Ada Lovelace" {
		t.Errorf("name = %q", b.CustomerName())
	}
	if b.Status != 4 || b.Total != 180 || b.Paid != 180 {
		t.Errorf("status/total/paid = %d/%v/%v", b.Status, b.Total, b.Paid)
	}
}

func TestGetBookingSentinelOnFailure(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"api error": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"response_code":2,"response_message":"reservation not found"}`)
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "not json at all")
		},
		"malformed data": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"response_code":0,"data":[1,2,3]}`)
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			c := NewClient(testSigner(srv.URL))
			b := c.GetBooking(context.Background(), "999")
			if b.ID != "999" {
				t.Errorf("id = %q", b.ID)
			}
			if b.Resource != "N/A" {
				t.Errorf("resource sentinel = %q, want N/A", b.Resource)
			}
			if b.Email != "" {
				t.Errorf("email must be empty on failure, got %q", b.Email)
			}
		})
	}
}

func TestListUpcoming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("req_status"); got != "4" {
			t.Errorf("req_status = %q", got)
		}
		fmt.Fprint(w, `{"response_code":0,"data":{"results":[
			{"reservation_id":101,"name":"Luton Van","start_time":"2026-09-02 08:00","end_time":"2026-09-02 18:00","first_name":"Bob","last_name":"Hope","email":"bob@example.com","status":"4"},
			{"reservation_id":"102","name":"Sprinter","start_time":"2026-09-02 10:00","end_time":"2026-09-04 10:00","first_name":"Eve","last_name":"","email":"","status":"4"}
		]}}`)
	}))
	defer srv.Close()

	c := NewClient(testSigner(srv.URL))
	from := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
	out, err := c.ListUpcoming(context.Background(), from, from.AddDate(0, 0, 1), 4)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d", len(out))
	}
	if out[0].ID != "101" || out[1].ID != "102" {
		t.Errorf("ids = %q,%q (numeric and string ids must both parse)", out[0].ID, out[1].ID)
	}
	if out[1].Email != "" {
		t.Errorf("email = %q", out[1].Email)
	}
}

func TestListUpcomingSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response_code":1,"response_message":"site suspended"}`)
	}))
	defer srv.Close()

	c := NewClient(testSigner(srv.URL))
	_, err := c.ListUpcoming(context.Background(), time.Now(), time.Now().Add(24*time.Hour), 4)
	if err == nil {
		t.Fatal("want error for non-ok list result")
	}
	var apiErr *APIError
	if !asAPIError(err, &apiErr) || apiErr.Code != 1 {
		t.Fatalf("want *APIError code 1, got %v", err)
	}
}

func asAPIError(err error, target **APIError) bool {
	e, ok := err.(*APIError)
	if ok {
		*target = e
	}
	return ok
}
