package template

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/signintech/gopdf"

	"ms-booking/internal/models"
)

type TicketPDFGenerator struct{}

func NewTicketPDFGenerator() *TicketPDFGenerator {
	return &TicketPDFGenerator{}
}

func (g *TicketPDFGenerator) Generate(ticket models.Ticket, eventTitle string, qrImage []byte) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	err := pdf.AddTTFFont("dejavu", "./fonts/DejaVuSans.ttf")
	if err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}

	err = pdf.SetFont("dejavu", "", 14)
	if err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}

	addHeader(pdf, eventTitle)

	pdf.SetY(60)
	addTicketInfo(pdf, ticket)

	if len(qrImage) > 0 {
		pdf.SetY(pdf.GetY() + 20)
		addQRCode(pdf, qrImage)
	}

	pdf.SetY(260)
	addFooter(pdf)

	var buf bytes.Buffer
	err = pdf.Write(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}

	return buf.Bytes(), nil
}

func addHeader(pdf *gopdf.GoPdf, eventTitle string) {
	pdf.SetX(40)
	pdf.SetY(30)
	pdf.Cell(nil, "EVENT TICKET - "+eventTitle)
}

func addTicketInfo(pdf *gopdf.GoPdf, ticket models.Ticket) {
	info := []struct {
		Label string
		Value string
	}{
		{"Ticket ID", ticket.TicketID},
		{"Booking ID", ticket.BookingID},
		{"Tier", ticket.TierName},
		{"Price", fmt.Sprintf("%.2f", ticket.TierPrice)},
		{"Status", ticket.Status},
		{"Issued At", ticket.IssuedAt.Format("2006-01-02 15:04")},
		{"Valid Until", ticket.ValidUntil.Format("2006-01-02 15:04")},
	}

	for _, item := range info {
		pdf.Cell(nil, item.Label+": "+item.Value)
		pdf.Br(20)
	}
}

func addQRCode(pdf *gopdf.GoPdf, qrImage []byte) {
	img, err := png.Decode(bytes.NewReader(qrImage))
	if err != nil {
		pdf.Cell(nil, "Failed to load QR code")
		return
	}

	rect := &gopdf.Rect{W: 100, H: 100}
	err = pdf.ImageFrom(img, 100, pdf.GetY(), rect)
	if err != nil {
		pdf.Cell(nil, "Failed to draw QR code")
	}
}

func addFooter(pdf *gopdf.GoPdf) {
	pdf.SetX(50)
	pdf.Cell(nil, "Present this ticket at the venue entrance.")
}
