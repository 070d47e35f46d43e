package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"log"
	"mime"
	"net/smtp"
	"strings"

	"github.com/koosverhagen/rental-backend/internal/planyo"
)

// Mailer formats and dispatches the three deposit mails. Every send goes to
// the customer and the admin mailbox; failures propagate to the HTTP caller,
// there is no retry at this layer.
type Mailer interface {
	DepositLink(ctx context.Context, b planyo.Booking, payURL string) error
	Cancellation(ctx context.Context, b planyo.Booking, chargeID string) error
	Confirmation(ctx context.Context, b planyo.Booking, amount int64, currency, chargeID string) error
}

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

var (
	linkTmpl = template.Must(template.New("link").Parse(`<html><body>
<p>Dear {{.Name}},</p>
<p>Your booking of <b>{{.Resource}}</b> ({{.Start}} &ndash; {{.End}}) requires a refundable security deposit.</p>
<p><a href="{{.PayURL}}">Authorise your deposit here</a>. No money is taken now; the amount is only held on your card.</p>
<p>Kind regards,<br>The rentals team</p>
</body></html>`))

	cancelTmpl = template.Must(template.New("cancel").Parse(`<html><body>
<p>Dear {{.Name}},</p>
<p>The deposit hold for your booking of <b>{{.Resource}}</b> has been released (reference {{.ChargeID}}).</p>
<p>Nothing was charged to your card.</p>
<p>Kind regards,<br>The rentals team</p>
</body></html>`))

	confirmTmpl = template.Must(template.New("confirm").Parse(`<html><body>
<p>Dear {{.Name}},</p>
<p>Your deposit of <b>{{.AmountText}}</b> for <b>{{.Resource}}</b> ({{.Start}} &ndash; {{.End}}) has been authorised.</p>
<p>Your receipt is attached. Reference: {{.ChargeID}}.</p>
<p>Kind regards,<br>The rentals team</p>
</body></html>`))
)

// SMTPMailer sends multipart HTML mail over a plain-auth SMTP relay.
type SMTPMailer struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	AdminEmail string
}

func (m *SMTPMailer) DepositLink(ctx context.Context, b planyo.Booking, payURL string) error {
	body, err := render(linkTmpl, map[string]any{
		"Name": b.CustomerName(), "Resource": b.Resource,
		"Start": b.Start, "End": b.End, "PayURL": payURL,
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Security deposit required for booking %s", b.ID)
	return m.send(ctx, b.Email, subject, body)
}

func (m *SMTPMailer) Cancellation(ctx context.Context, b planyo.Booking, chargeID string) error {
	body, err := render(cancelTmpl, map[string]any{
		"Name": b.CustomerName(), "Resource": b.Resource, "ChargeID": chargeID,
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Deposit hold released for booking %s", b.ID)
	return m.send(ctx, b.Email, subject, body)
}

func (m *SMTPMailer) Confirmation(ctx context.Context, b planyo.Booking, amount int64, currency, chargeID string) error {
	body, err := render(confirmTmpl, map[string]any{
		"Name": b.CustomerName(), "Resource": b.Resource,
		"Start": b.Start, "End": b.End,
		"AmountText": AmountText(amount, currency), "ChargeID": chargeID,
	})
	if err != nil {
		return err
	}
	pdf, err := BuildReceipt(b, amount, currency, chargeID)
	if err != nil {
		return fmt.Errorf("build receipt: %w", err)
	}
	subject := fmt.Sprintf("Deposit authorised for booking %s", b.ID)
	att := Attachment{
		Filename:    fmt.Sprintf("deposit_%s.pdf", b.ID),
		ContentType: "application/pdf",
		Data:        pdf,
	}
	return m.send(ctx, b.Email, subject, body, att)
}

func (m *SMTPMailer) send(_ context.Context, to, subject, htmlBody string, attachments ...Attachment) error {
	recipients := []string{to}
	if m.AdminEmail != "" && m.AdminEmail != to {
		recipients = append(recipients, m.AdminEmail)
	}
	msg := buildMessage(m.From, recipients, subject, htmlBody, attachments)
	auth := smtp.PlainAuth("", m.Username, m.Password, m.Host)
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	return smtp.SendMail(addr, auth, m.From, recipients, msg)
}

const mimeBoundary = "deposit-mail-boundary-7f3a"

func buildMessage(from string, to []string, subject, htmlBody string, attachments []Attachment) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(attachments) == 0 {
		buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		buf.WriteString(htmlBody)
		return buf.Bytes()
	}

	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mimeBoundary)
	fmt.Fprintf(&buf, "--%s\r\n", mimeBoundary)
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	buf.WriteString(htmlBody)
	buf.WriteString("\r\n")
	for _, a := range attachments {
		fmt.Fprintf(&buf, "--%s\r\n", mimeBoundary)
		fmt.Fprintf(&buf, "Content-Type: %s\r\n", a.ContentType)
		buf.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n\r\n", a.Filename)
		enc := base64.StdEncoding.EncodeToString(a.Data)
		for len(enc) > 76 {
			buf.WriteString(enc[:76])
			buf.WriteString("\r\n")
			enc = enc[76:]
		}
		buf.WriteString(enc)
		buf.WriteString("\r\n")
	}
	fmt.Fprintf(&buf, "--%s--\r\n", mimeBoundary)
	return buf.Bytes()
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// AmountText renders minor currency units for humans, e.g. 25000 gbp -> "250.00 GBP".
func AmountText(amount int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", amount/100, amount%100, strings.ToUpper(currency))
}

// ConsoleMailer logs instead of sending; used when no SMTP host is configured.
type ConsoleMailer struct{}

func (ConsoleMailer) DepositLink(_ context.Context, b planyo.Booking, payURL string) error {
	log.Printf("[mail] deposit link booking=%s to=%s url=%s", b.ID, b.Email, payURL)
	return nil
}

func (ConsoleMailer) Cancellation(_ context.Context, b planyo.Booking, chargeID string) error {
	log.Printf("[mail] cancellation booking=%s to=%s charge=%s", b.ID, b.Email, chargeID)
	return nil
}

func (ConsoleMailer) Confirmation(_ context.Context, b planyo.Booking, amount int64, currency, chargeID string) error {
	log.Printf("[mail] confirmation booking=%s to=%s amount=%s charge=%s",
		b.ID, b.Email, AmountText(amount, currency), chargeID)
	return nil
}
