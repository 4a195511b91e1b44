package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"busbooking/internal/domain/models"
	"busbooking/internal/services"

	"github.com/gin-gonic/gin"
)

// Handlers exposes the booking core over HTTP.
type Handlers struct {
	Bookings      services.BookingService
	Payments      services.PaymentService
	Cancellations services.CancellationService
	Tickets       services.TicketService

	StoreName string
	Ping      func(ctx context.Context) error
}

type createBookingRequest struct {
	ScheduleID int64    `json:"scheduleId" binding:"required,gt=0"`
	TravelDate string   `json:"travelDate" binding:"required,datetime=2006-01-02"`
	SeatIDs    []string `json:"seatIds" binding:"required,min=1,max=6,dive,seatcode"`
}

type createBookingResponse struct {
	BookingID   string    `json:"bookingId"`
	PNR         string    `json:"pnr"`
	ExpiresAt   time.Time `json:"expiresAt"`
	TotalAmount int64     `json:"totalAmount"`
	Currency    string    `json:"currency"`
	SeatIDs     []string  `json:"seatIds"`
}

// POST /api/bookings
func (h Handlers) CreateBooking(c *gin.Context) {
	customerID, ok := requireCustomer(c)
	if !ok {
		return
	}
	var req createBookingRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	b, err := h.Bookings.CreateHeld(c.Request.Context(), services.CheckoutRequest{
		CustomerID: customerID,
		ScheduleID: req.ScheduleID,
		TravelDate: req.TravelDate,
		SeatIDs:    req.SeatIDs,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createBookingResponse{
		BookingID:   b.ID,
		PNR:         b.PNR,
		ExpiresAt:   b.ExpiresAt,
		TotalAmount: b.TotalAmount,
		Currency:    b.Currency,
		SeatIDs:     b.SeatIDs,
	})
}

// GET /api/bookings/:id
func (h Handlers) GetBooking(c *gin.Context) {
	customerID, ok := requireCustomer(c)
	if !ok {
		return
	}
	b, err := h.Bookings.GetForCustomer(c.Request.Context(), c.Param("id"), customerID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

// GET /api/bookings/:id/refund-quote
func (h Handlers) RefundQuote(c *gin.Context) {
	customerID, ok := requireCustomer(c)
	if !ok {
		return
	}
	q, err := h.Cancellations.Quote(c.Request.Context(), c.Param("id"), customerID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q, "policy": h.Cancellations.PolicyTable()})
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

// POST /api/bookings/:id/cancel
func (h Handlers) CancelBooking(c *gin.Context) {
	customerID, ok := requireCustomer(c)
	if !ok {
		return
	}
	var req cancelBookingRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	res, err := h.Cancellations.Cancel(c.Request.Context(), c.Param("id"), customerID, req.Reason)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/bookings/:id/ticket
func (h Handlers) GetTicket(c *gin.Context) {
	customerID, ok := requireCustomer(c)
	if !ok {
		return
	}
	pdf, filename, err := h.Tickets.GenerateETicket(c.Request.Context(), c.Param("id"), customerID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// GET /api/schedules/:id/seats?date=YYYY-MM-DD
func (h Handlers) GetSeatMap(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		RespondError(c, http.StatusBadRequest, "id jadwal tidak valid", err)
		return
	}
	date := c.Query("date")
	seats, err := h.Bookings.SeatMap(c.Request.Context(), id, date)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	free := 0
	for _, s := range seats {
		if s.Status == models.SeatFree {
			free++
		}
	}
	c.JSON(http.StatusOK, gin.H{"scheduleId": id, "travelDate": date, "seats": seats, "available": free})
}

// GET /api/cancellation-policy
func (h Handlers) CancellationPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, h.Cancellations.PolicyTable())
}
