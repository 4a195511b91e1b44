package memory

import (
	"context"
	"sync"

	"busbooking/internal/domain"
	"busbooking/internal/domain/models"
)

// Directory serves schedule and customer reference data from memory.
type Directory struct {
	mu        sync.RWMutex
	schedules map[int64]models.Schedule
	customers map[string]models.Customer
}

func NewDirectory() *Directory {
	return &Directory{
		schedules: map[int64]models.Schedule{},
		customers: map[string]models.Customer{},
	}
}

func (d *Directory) AddSchedule(s models.Schedule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schedules[s.ID] = s
}

func (d *Directory) AddCustomer(c models.Customer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customers[c.ID] = c
}

func (d *Directory) GetSchedule(ctx context.Context, id int64) (models.Schedule, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.schedules[id]
	if !ok {
		return models.Schedule{}, domain.NotFoundError{Resource: "schedule"}
	}
	return s, nil
}

func (d *Directory) Lookup(ctx context.Context, customerID string) (models.Customer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.customers[customerID]
	if !ok {
		return models.Customer{}, domain.NotFoundError{Resource: "customer"}
	}
	return c, nil
}

// DemoSchedules is the seed data used when running without a database.
func DemoSchedules() []models.Schedule {
	seats := []string{"1A", "1B", "2A", "2B", "3A", "3B", "4A", "4B", "5A", "5B", "6A", "6B"}
	return []models.Schedule{
		{ID: 1, RouteFrom: "Padang", RouteTo: "Bukittinggi", DepartureTime: "08:00", Seats: seats, BaseFare: 15000000,
			SeatFares: map[string]int64{"1A": 17500000, "1B": 17500000}},
		{ID: 5, RouteFrom: "Padang", RouteTo: "Pekanbaru", DepartureTime: "19:30", Seats: seats, BaseFare: 25000000},
	}
}
