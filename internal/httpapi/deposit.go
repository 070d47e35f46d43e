package httpapi

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/koosverhagen/rental-backend/internal/deposit"
	"github.com/koosverhagen/rental-backend/internal/notify"
)

type DepositHandler struct {
	svc            *deposit.Service
	bookings       deposit.BookingDirectory
	omisePublicKey string
}

func NewDepositHandler(svc *deposit.Service, bookings deposit.BookingDirectory, omisePublicKey string) *DepositHandler {
	return &DepositHandler{svc: svc, bookings: bookings, omisePublicKey: omisePublicKey}
}

type createIntentBody struct {
	BookingID string `json:"booking_id" binding:"required"`
	Amount    int64  `json:"amount"`
	CardToken string `json:"card_token" binding:"required"`
}

// CreateIntent authorizes (or reuses) the deposit hold for a booking.
func (h *DepositHandler) CreateIntent(c *gin.Context) {
	var body createIntentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hold, reused, err := h.svc.EnsureHold(c.Request.Context(), body.BookingID, body.Amount, body.CardToken)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hold": hold, "reused": reused})
}

type sendLinkBody struct {
	BookingID string `json:"booking_id" binding:"required"`
	Force     bool   `json:"force"`
}

func (h *DepositHandler) SendLink(c *gin.Context) {
	var body sendLinkBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.SendDepositLink(c.Request.Context(), body.BookingID, body.Force)
	if err != nil {
		if errors.Is(err, deposit.ErrNoEmail) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

type confirmationBody struct {
	BookingID string `json:"booking_id" binding:"required"`
	ChargeID  string `json:"charge_id"`
}

func (h *DepositHandler) SendConfirmation(c *gin.Context) {
	var body confirmationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.SendConfirmation(c.Request.Context(), body.BookingID, body.ChargeID); err != nil {
		if errors.Is(err, deposit.ErrNoEmail) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

var payPageTmpl = template.Must(template.New("pay").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Security deposit</title></head>
<body>
  <h2>Security deposit for {{.Resource}}</h2>
  <p>{{.Start}} &ndash; {{.End}}</p>
  {{if .AlreadyHeld}}
  <p>Your deposit of {{.AmountText}} is already authorised. Nothing more to do.</p>
  {{else}}
  <p>We will hold {{.AmountText}} on your card. No money is taken unless there is damage.</p>
  <form id="card-form">
    <input type="text" id="card-name" placeholder="Name on card">
    <input type="text" id="card-number" placeholder="Card number">
    <input type="text" id="card-expiry" placeholder="MM/YY">
    <input type="text" id="card-cvc" placeholder="CVC">
    <button type="submit">Authorise deposit</button>
  </form>
  <div id="result"></div>
  <script src="https://cdn.omise.co/omise.js"></script>
  <script>
    Omise.setPublicKey({{.PublicKey}});
    document.getElementById("card-form").addEventListener("submit", function (e) {
      e.preventDefault();
      var exp = document.getElementById("card-expiry").value.split("/");
      Omise.createToken("card", {
        name: document.getElementById("card-name").value,
        number: document.getElementById("card-number").value,
        expiration_month: exp[0], expiration_year: "20" + exp[1],
        security_code: document.getElementById("card-cvc").value
      }, function (status, resp) {
        if (status !== 200) { document.getElementById("result").textContent = resp.message; return; }
        fetch("/deposit/create-intent", {
          method: "POST",
          headers: {"Content-Type": "application/json"},
          body: JSON.stringify({booking_id: {{.BookingID}}, card_token: resp.id})
        }).then(function (r) { return r.json(); }).then(function (j) {
          document.getElementById("result").textContent =
            j.error ? j.error : "Deposit " + j.hold.status;
        });
      });
    });
  </script>
  {{end}}
</body>
</html>`))

// PayPage renders the hosted card-entry page. An existing active hold is
// reported instead of collecting the card again, so reloading the page never
// mints a duplicate hold.
func (h *DepositHandler) PayPage(c *gin.Context) {
	bookingID := c.Param("bookingID")
	b := h.bookings.GetBooking(c.Request.Context(), bookingID)

	alreadyHeld := false
	if hold, err := h.svc.Status(c.Request.Context(), bookingID); err == nil && hold.Active() {
		alreadyHeld = true
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	err := payPageTmpl.Execute(c.Writer, map[string]any{
		"BookingID":   bookingID,
		"Resource":    b.Resource,
		"Start":       b.Start,
		"End":         b.End,
		"AmountText":  notify.AmountText(h.svc.DepositAmount(), h.svc.Currency()),
		"PublicKey":   h.omisePublicKey,
		"AlreadyHeld": alreadyHeld,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
