package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/koosverhagen/rental-backend/internal/deposit"
)

// TerminalHandler backs the admin terminal: capture/cancel pass-throughs and
// hold listings. Mounted behind JWT + ADMIN role.
type TerminalHandler struct {
	svc *deposit.Service
}

func NewTerminalHandler(svc *deposit.Service) *TerminalHandler {
	return &TerminalHandler{svc: svc}
}

type chargeBody struct {
	ChargeID string `json:"charge_id" binding:"required"`
}

func (h *TerminalHandler) Cancel(c *gin.Context) {
	var body chargeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hold, err := h.svc.Cancel(c.Request.Context(), body.ChargeID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hold": hold})
}

func (h *TerminalHandler) Capture(c *gin.Context) {
	var body chargeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hold, err := h.svc.Capture(c.Request.Context(), body.ChargeID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hold": hold})
}

func (h *TerminalHandler) ListAll(c *gin.Context) {
	holds, err := h.svc.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"holds": holds})
}

func (h *TerminalHandler) ListForBooking(c *gin.Context) {
	bookingID := c.Param("bookingID")
	if bookingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing booking id"})
		return
	}
	hold, err := h.svc.Status(c.Request.Context(), bookingID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hold": hold})
}
