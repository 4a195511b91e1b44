package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"busbooking/internal/domain"
	"busbooking/internal/domain/models"
	"busbooking/internal/utils"

	"github.com/phpdave11/gofpdf"
)

// TicketService renders the e-ticket PDF of a Confirmed booking.
type TicketService struct {
	Bookings  BookingService
	Schedules ScheduleDirectory
	Location  *time.Location
}

type ticketData struct {
	PNR         string
	BookingID   string
	CustomerID  string
	RouteFrom   string
	RouteTo     string
	DepartureAt time.Time
	Seats       []string
	Total       int64
	Currency    string
}

// GenerateETicket returns the PDF bytes and a download filename.
func (s TicketService) GenerateETicket(ctx context.Context, bookingID, customerID string) ([]byte, string, error) {
	b, err := s.Bookings.GetForCustomer(ctx, bookingID, customerID)
	if err != nil {
		return nil, "", err
	}
	if b.Status != models.BookingConfirmed {
		return nil, "", domain.NewError(domain.KindNotPending, "e-ticket hanya tersedia untuk booking yang sudah dikonfirmasi")
	}
	data := ticketData{
		PNR:         b.PNR,
		BookingID:   b.ID,
		CustomerID:  b.CustomerID,
		DepartureAt: b.DepartureAt,
		Seats:       b.SeatIDs,
		Total:       b.TotalAmount,
		Currency:    b.Currency,
	}
	if sched, err := s.Schedules.GetSchedule(ctx, b.ScheduleID); err == nil {
		data.RouteFrom = sched.RouteFrom
		data.RouteTo = sched.RouteTo
	} else {
		utils.LogEvent(utils.RequestIDFromContext(ctx), "ticket", "schedule_lookup", err.Error())
	}

	utils.LogEvent(utils.RequestIDFromContext(ctx), "ticket", "generate_eticket", "booking_id="+b.ID)
	return buildETicketPDF(data, s.Location)
}

func buildETicketPDF(d ticketData, loc *time.Location) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket "+d.PNR, false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "E-TICKET")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "PNR: "+safe(d.PNR, "-"))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Rute           : %s -> %s", safe(d.RouteFrom, "-"), safe(d.RouteTo, "-")),
		fmt.Sprintf("Berangkat      : %s", utils.FormatDateTime(d.DepartureAt, loc)),
		fmt.Sprintf("Kursi          : %s", safe(strings.Join(d.Seats, ", "), "-")),
		fmt.Sprintf("Jumlah Kursi   : %d", len(d.Seats)),
		fmt.Sprintf("Total Bayar    : %s", utils.FormatAmount(d.Currency, d.Total)),
		fmt.Sprintf("Kode Booking   : %s", d.BookingID),
	}
	for _, s := range lines {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Tunjukkan PNR ini saat keberangkatan. Pembatalan mengikuti kebijakan pembatalan yang berlaku.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), fmt.Sprintf("ETICKET_%s.pdf", safeFilenamePart(d.PNR)), nil
}

func safe(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}

func safeFilenamePart(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "NA"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	s = replacer.Replace(s)
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
