package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/koosverhagen/rental-backend/internal/store"
)

type FormsHandler struct {
	repo *store.Repo
}

func NewFormsHandler(repo *store.Repo) *FormsHandler {
	return &FormsHandler{repo: repo}
}

type formSubmitBody struct {
	BookingID string `json:"booking_id" binding:"required"`
	Form      string `json:"form" binding:"required"` // insurance | condition
}

func (h *FormsHandler) Submit(c *gin.Context) {
	var body formSubmitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fs, err := h.repo.MarkFormDone(c.Request.Context(), body.BookingID, body.Form)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"forms": fs})
}

type dvlaCheckBody struct {
	BookingID     string `json:"booking_id" binding:"required"`
	LicenceNumber string `json:"licence_number" binding:"required"`
}

// DVLACheck records a licence check request; the result arrives later via
// ManualVerify.
func (h *FormsHandler) DVLACheck(c *gin.Context) {
	var body dvlaCheckBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fs, err := h.repo.SetDVLAStatus(c.Request.Context(), body.BookingID, store.DVLAChecked, body.LicenceNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"forms": fs})
}

type manualVerifyBody struct {
	BookingID string `json:"booking_id" binding:"required"`
	Status    string `json:"status" binding:"required"` // valid | invalid
}

func (h *FormsHandler) ManualVerify(c *gin.Context) {
	var body manualVerifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Status != store.DVLAValid && body.Status != store.DVLAInvalid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be valid or invalid"})
		return
	}
	fs, err := h.repo.SetDVLAStatus(c.Request.Context(), body.BookingID, body.Status, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"forms": fs})
}
