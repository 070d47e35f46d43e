package notify

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/koosverhagen/rental-backend/internal/planyo"
)

// BuildReceipt renders the deposit-authorisation receipt attached to
// confirmation mail.
func BuildReceipt(b planyo.Booking, amount int64, currency, chargeID string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(190, 10, "Security Deposit Receipt")

	pdf.SetFont("Arial", "", 12)
	pdf.Ln(12)
	pdf.Cell(190, 8, fmt.Sprintf("Reference: %s", chargeID))
	pdf.Ln(8)
	pdf.Cell(190, 8, fmt.Sprintf("Date: %s", time.Now().UTC().Format("2006-01-02 15:04:05")))
	pdf.Ln(8)
	pdf.Cell(190, 8, fmt.Sprintf("Customer: %s", b.CustomerName()))
	pdf.Ln(8)
	pdf.Cell(190, 8, fmt.Sprintf("Booking: %s (%s)", b.ID, b.Resource))
	pdf.Ln(8)
	pdf.Cell(190, 8, fmt.Sprintf("Rental period: %s to %s", b.Start, b.End))
	pdf.Ln(8)
	pdf.Cell(190, 8, fmt.Sprintf("Amount held: %s", AmountText(amount, currency)))
	pdf.Ln(12)
	pdf.SetFont("Arial", "I", 10)
	pdf.Cell(190, 8, "This amount is held on your card, not charged. It is released after the rental.")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
