package httpapi

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/koosverhagen/rental-backend/internal/deposit"
	"github.com/koosverhagen/rental-backend/internal/payment"
)

// EventRetriever authenticates a processor webhook by re-fetching the event
// from the API and returns the authoritative charge state.
type EventRetriever interface {
	RetrieveEvent(eventID string) (key string, hold payment.Hold, err error)
}

type WebhookHandler struct {
	events          EventRetriever
	svc             *deposit.Service
	planyoHashKey   string
	confirmedStatus int
}

func NewWebhookHandler(events EventRetriever, svc *deposit.Service, planyoHashKey string, confirmedStatus int) *WebhookHandler {
	return &WebhookHandler{events: events, svc: svc, planyoHashKey: planyoHashKey, confirmedStatus: confirmedStatus}
}

type incomingEvent struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// PaymentEvent handles POST /webhook. The raw body is read directly; only the
// event id is trusted from it, everything else comes from the re-retrieved
// event. Already-processed events return 200 without side effects.
func (h *WebhookHandler) PaymentEvent(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	var inc incomingEvent
	if err := json.Unmarshal(raw, &inc); err != nil || inc.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	key, hold, err := h.events.RetrieveEvent(inc.ID)
	if err != nil {
		log.Printf("[webhook] retrieve event %s: %v", inc.ID, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unverifiable event"})
		return
	}

	switch key {
	case "charge.create", "charge.complete", "charge.update":
		if err := h.svc.HandleChargeEvent(c.Request.Context(), inc.ID, hold); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	default:
		// other event kinds are acknowledged and ignored
	}
	c.Status(http.StatusOK)
}

// BookingCallback handles POST /planyo/callback, the booking service's
// form-encoded notification. When a hash key is configured the callback must
// carry md5(key || reservationID || status).
func (h *WebhookHandler) BookingCallback(c *gin.Context) {
	bookingID := c.PostForm("reservation_id")
	if bookingID == "" {
		bookingID = c.PostForm("reservation")
	}
	if bookingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing reservation id"})
		return
	}
	statusStr := c.PostForm("status")
	status, _ := strconv.Atoi(statusStr)

	if h.planyoHashKey != "" {
		want := md5.Sum([]byte(h.planyoHashKey + bookingID + statusStr))
		got := strings.ToLower(c.PostForm("hash"))
		if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(want[:])), []byte(got)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "bad hash"})
			return
		}
	}

	if err := h.svc.HandleBookingCallback(c.Request.Context(), bookingID, status, h.confirmedStatus); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}
