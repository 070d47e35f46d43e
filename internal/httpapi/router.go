package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/koosverhagen/rental-backend/internal/deposit"
	"github.com/koosverhagen/rental-backend/internal/store"
)

type Deps struct {
	Svc             *deposit.Service
	Bookings        deposit.BookingDirectory
	Events          EventRetriever
	Repo            *store.Repo
	OmisePublicKey  string
	PlanyoHashKey   string
	ConfirmedStatus int
	Location        *time.Location
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.Default()

	dh := NewDepositHandler(d.Svc, d.Bookings, d.OmisePublicKey)
	wh := NewWebhookHandler(d.Events, d.Svc, d.PlanyoHashKey, d.ConfirmedStatus)
	ph := NewPlanyoHandler(d.Bookings, d.Svc, d.Repo, d.ConfirmedStatus, d.Location)
	fh := NewFormsHandler(d.Repo)

	r.POST("/webhook", wh.PaymentEvent)

	dep := r.Group("/deposit")
	{
		dep.POST("/create-intent", dh.CreateIntent)
		dep.GET("/pay/:bookingID", dh.PayPage)
		dep.POST("/send-link", dh.SendLink)
	}
	r.POST("/email/deposit-confirmation", dh.SendConfirmation)

	term := r.Group("/terminal")
	term.Use(JWTAuth(), RequireRole("ADMIN"))
	{
		th := NewTerminalHandler(d.Svc)
		term.POST("/cancel", th.Cancel)
		term.POST("/capture", th.Capture)
		term.GET("/list-all", th.ListAll)
		term.GET("/list/:bookingID", th.ListForBooking)
	}

	pl := r.Group("/planyo")
	{
		pl.POST("/callback", wh.BookingCallback)
		pl.GET("/upcoming", ph.Upcoming)
		pl.GET("/booking/:bookingID", ph.Booking)
	}

	r.POST("/forms/submit", fh.Submit)
	r.POST("/dvla/check", fh.DVLACheck)
	r.POST("/dvla/manual-verify", fh.ManualVerify)

	return r
}
