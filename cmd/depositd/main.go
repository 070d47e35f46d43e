package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koosverhagen/rental-backend/internal/deposit"
	"github.com/koosverhagen/rental-backend/internal/httpapi"
	"github.com/koosverhagen/rental-backend/internal/notify"
	"github.com/koosverhagen/rental-backend/internal/payment"
	"github.com/koosverhagen/rental-backend/internal/planyo"
	"github.com/koosverhagen/rental-backend/internal/scheduler"
	"github.com/koosverhagen/rental-backend/internal/store"
	"github.com/koosverhagen/rental-backend/pkg/config"
	"github.com/koosverhagen/rental-backend/pkg/db"
	"github.com/koosverhagen/rental-backend/pkg/mq"
	"github.com/koosverhagen/rental-backend/pkg/obs"
)

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func main() {
	cfg := must(config.Load())

	shutdownTracer := obs.InitTracer("depositd")
	defer func() { _ = shutdownTracer(context.Background()) }()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("load timezone %s: %v", cfg.Timezone, err)
	}

	// DB
	gdb := db.Open(cfg.PGDepositDSN)
	repo := store.NewRepo(gdb, time.Duration(cfg.SentRetentionH)*time.Hour)
	must(0, repo.Migrate())

	// Booking service
	signer := planyo.NewSigner(cfg.PlanyoBaseURL, cfg.PlanyoAPIKey, cfg.PlanyoHashKey, cfg.PlanyoSiteID)
	bookings := planyo.NewClient(signer)

	// Payment service
	omc := must(payment.NewOmiseClient(cfg.OmisePub, cfg.OmiseSec))
	holds := payment.NewService(omc, cfg.Currency)

	// MQ
	pub := must(mq.NewPublisher(cfg.RabbitURL, cfg.DepositExchange))
	defer pub.Close()

	// Mail
	var mail notify.Mailer = notify.ConsoleMailer{}
	if cfg.SMTPHost != "" {
		mail = &notify.SMTPMailer{
			Host: cfg.SMTPHost, Port: cfg.SMTPPort,
			Username: cfg.SMTPUser, Password: cfg.SMTPPass,
			From: cfg.MailFrom, AdminEmail: cfg.AdminEmail,
		}
	}

	svc := deposit.NewService(bookings, holds, repo, mail, pub,
		cfg.PublicBaseURL, cfg.DepositAmount, cfg.Currency)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ops worker consuming deposit.* events
	cons := must(mq.NewConsumer(cfg.RabbitURL, cfg.DepositExchange, cfg.OpsQueue,
		[]string{"deposit.*"},
		mq.ConsumerOpts{Prefetch: 16, UseDLX: true, DLXName: "deposit.dlx", DLXQueue: cfg.OpsQueue + ".dlq"}))
	defer cons.Close()
	go func() {
		if err := notify.NewWorker(cons).Run(ctx); err != nil {
			log.Printf("[ops] worker stopped: %v", err)
		}
	}()

	// Scheduler
	sched := scheduler.New(loc, bookings, svc, cfg.PlanyoConfirmedStatus)
	must(0, sched.Register(cfg.ScheduleSpec, cfg.SweepSpec, svc))
	sched.Start()
	defer sched.Stop()

	// HTTP
	r := httpapi.NewRouter(httpapi.Deps{
		Svc:             svc,
		Bookings:        bookings,
		Events:          holds,
		Repo:            repo,
		OmisePublicKey:  cfg.OmisePub,
		PlanyoHashKey:   cfg.PlanyoHashKey,
		ConfirmedStatus: cfg.PlanyoConfirmedStatus,
		Location:        loc,
	})
	go func() {
		log.Println("[depositd] http listening on", cfg.HTTPAddr)
		log.Fatal(r.Run(cfg.HTTPAddr))
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
	time.Sleep(200 * time.Millisecond)
	log.Println("[depositd] stopped")
}
