package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"busbooking/internal/domain/models"
	"busbooking/internal/gateway"
	"busbooking/internal/repositories/memory"
)

var wib = time.FixedZone("WIB", 7*60*60)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []string
	cancelled []string
}

func (n *recordingNotifier) BookingConfirmed(ctx context.Context, b models.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, b.ID)
	return nil
}

func (n *recordingNotifier) BookingCancelled(ctx context.Context, b models.Booking, res models.CancellationResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, b.ID)
	return nil
}

func (n *recordingNotifier) confirmedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.confirmed)
}

func (n *recordingNotifier) cancelledCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.cancelled)
}

type fixture struct {
	clock    *fakeClock
	bookings *memory.BookingStore
	payments *memory.PaymentStore
	ledger   *memory.SeatLedger
	dir      *memory.Directory
	provider *gateway.Sandbox
	notifier *recordingNotifier

	booking BookingService
	payment PaymentService
	cancel  CancellationService
	sweeper ExpirySweeper
	tickets TicketService
}

const (
	travelDate = "2025-01-10"
	// schedule 9 sells every seat at 250, so two seats cost 500.
	cheapSchedule = int64(9)
)

// newFixture wires the services over the in-memory stores with the clock at 2025-01-08 10:00 WIB.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 8, 10, 0, 0, 0, wib)}
	dir := memory.NewDirectory()
	for _, s := range memory.DemoSchedules() {
		dir.AddSchedule(s)
	}
	dir.AddSchedule(models.Schedule{
		ID: cheapSchedule, RouteFrom: "Padang", RouteTo: "Solok", DepartureTime: "09:00",
		Seats: []string{"1A", "1B", "2A", "2B"}, BaseFare: 250,
	})
	dir.AddCustomer(models.Customer{ID: "cust-1", Name: "Rina", Email: "rina@example.com", Phone: "0812"})

	f := &fixture{
		clock:    clock,
		bookings: memory.NewBookingStore(),
		payments: memory.NewPaymentStore(),
		ledger:   memory.NewSeatLedger(),
		dir:      dir,
		provider: gateway.NewSandbox("test-secret"),
		notifier: &recordingNotifier{},
	}
	f.ledger.Now = clock.Now
	f.booking = BookingService{
		Bookings:  f.bookings,
		Ledger:    f.ledger,
		Schedules: dir,
		PNR:       NewPNRGenerator(f.bookings),
		HoldTTL:   10 * time.Minute,
		Currency:  "IDR",
		Location:  wib,
		Now:       clock.Now,
	}
	f.payment = PaymentService{
		Bookings:  f.booking,
		Payments:  f.payments,
		Provider:  f.provider,
		Customers: dir,
		Notifier:  f.notifier,
		Timeout:   time.Second,
		Now:       clock.Now,
	}
	f.cancel = CancellationService{Bookings: f.booking, Notifier: f.notifier, Now: clock.Now}
	f.sweeper = ExpirySweeper{Ledger: f.ledger, Bookings: f.booking, Payments: f.payments, Now: clock.Now}
	f.tickets = TicketService{Bookings: f.booking, Schedules: dir, Location: wib}
	return f
}

func (f *fixture) hold(t *testing.T, customerID string, scheduleID int64, seats ...string) models.Booking {
	t.Helper()
	b, err := f.booking.CreateHeld(context.Background(), CheckoutRequest{
		CustomerID: customerID,
		ScheduleID: scheduleID,
		TravelDate: travelDate,
		SeatIDs:    seats,
	})
	if err != nil {
		t.Fatalf("create held booking: %v", err)
	}
	return b
}

// pay runs initiate and verify and returns the confirmed booking.
func (f *fixture) pay(t *testing.T, b models.Booking) models.Booking {
	t.Helper()
	order, err := f.payment.InitiatePayment(context.Background(), b.ID, b.CustomerID)
	if err != nil {
		t.Fatalf("initiate payment: %v", err)
	}
	paymentID, sig := f.provider.Pay(order.ProviderOrderID)
	confirmed, err := f.payment.VerifyPayment(context.Background(), order.ProviderOrderID, paymentID, sig)
	if err != nil {
		t.Fatalf("verify payment: %v", err)
	}
	return confirmed
}
