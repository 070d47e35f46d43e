package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/koosverhagen/rental-backend/internal/deposit"
	"github.com/koosverhagen/rental-backend/internal/store"
)

// PlanyoHandler is the read-through proxy for the companion app: bookings
// enriched with hold and questionnaire status.
type PlanyoHandler struct {
	bookings        deposit.BookingDirectory
	svc             *deposit.Service
	repo            *store.Repo
	confirmedStatus int
	loc             *time.Location
}

func NewPlanyoHandler(bookings deposit.BookingDirectory, svc *deposit.Service, repo *store.Repo, confirmedStatus int, loc *time.Location) *PlanyoHandler {
	return &PlanyoHandler{bookings: bookings, svc: svc, repo: repo, confirmedStatus: confirmedStatus, loc: loc}
}

// Upcoming lists tomorrow's confirmed reservations with enrichment.
func (h *PlanyoHandler) Upcoming(c *gin.Context) {
	now := time.Now().In(h.loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc).AddDate(0, 0, 1)
	to := from.AddDate(0, 0, 1)

	bookings, err := h.bookings.ListUpcoming(c.Request.Context(), from, to, h.confirmedStatus)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(bookings))
	for _, b := range bookings {
		item := gin.H{"booking": b}
		if fs, ferr := h.repo.GetFormStatus(c.Request.Context(), b.ID); ferr == nil {
			item["forms"] = fs
		}
		if hold, herr := h.svc.Status(c.Request.Context(), b.ID); herr == nil {
			item["deposit"] = hold
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "results": out})
}

// Booking returns one enriched reservation.
func (h *PlanyoHandler) Booking(c *gin.Context) {
	bookingID := c.Param("bookingID")
	b := h.bookings.GetBooking(c.Request.Context(), bookingID)

	resp := gin.H{"booking": b}
	if fs, err := h.repo.GetFormStatus(c.Request.Context(), bookingID); err == nil {
		resp["forms"] = fs
	}
	if hold, err := h.svc.Status(c.Request.Context(), bookingID); err == nil {
		resp["deposit"] = hold
	}
	c.JSON(http.StatusOK, resp)
}
