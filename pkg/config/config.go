package config

import (
	"github.com/kelseyhightower/envconfig"
)

type App struct {
	// DB
	PGDepositDSN string `envconfig:"PG_DEPOSIT_DSN" required:"true"`

	// Planyo booking API
	PlanyoBaseURL         string `envconfig:"PLANYO_BASE_URL" default:"https://www.planyo.com/rest/"`
	PlanyoAPIKey          string `envconfig:"PLANYO_API_KEY" required:"true"`
	PlanyoHashKey         string `envconfig:"PLANYO_HASH_KEY" required:"true"`
	PlanyoSiteID          string `envconfig:"PLANYO_SITE_ID" required:"true"`
	PlanyoConfirmedStatus int    `envconfig:"PLANYO_CONFIRMED_STATUS" default:"4"`

	// Omise
	OmisePub string `envconfig:"OMISE_PUBLIC_KEY" required:"true"`
	OmiseSec string `envconfig:"OMISE_SECRET_KEY" required:"true"`

	// SMTP (empty host falls back to console notifier)
	SMTPHost   string `envconfig:"SMTP_HOST" default:""`
	SMTPPort   int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser   string `envconfig:"SMTP_USER" default:""`
	SMTPPass   string `envconfig:"SMTP_PASS" default:""`
	MailFrom   string `envconfig:"MAIL_FROM" default:"deposits@example.com"`
	AdminEmail string `envconfig:"ADMIN_EMAIL" default:"admin@example.com"`

	// RabbitMQ
	RabbitURL       string `envconfig:"RABBIT_URL" required:"true"`
	DepositExchange string `envconfig:"DEPOSIT_EXCHANGE" default:"deposit.exchange"`
	OpsQueue        string `envconfig:"OPS_QUEUE" default:"deposit.ops.q"`

	// HTTP
	HTTPAddr      string `envconfig:"HTTP_ADDR" default:":8080"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`

	// JWT (terminal/admin endpoints)
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// Deposit workflow
	DepositAmount  int64  `envconfig:"DEPOSIT_AMOUNT" default:"25000"` // minor units
	Currency       string `envconfig:"DEPOSIT_CURRENCY" default:"gbp"`
	SentRetentionH int    `envconfig:"SENT_RETENTION_HOURS" default:"72"`

	// Scheduler
	ScheduleSpec string `envconfig:"SCHEDULE_SPEC" default:"*/30 8-20 * * *"`
	SweepSpec    string `envconfig:"SWEEP_SPEC" default:"15 3 * * *"`
	Timezone     string `envconfig:"TIMEZONE" default:"Europe/London"`
}

func Load() (App, error) {
	var c App
	err := envconfig.Process("", &c)
	return c, err
}
