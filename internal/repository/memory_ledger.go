package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/skymiles/internal/domain"
)

// flightRow is the in-memory counterpart of a locked flights row.
type flightRow struct {
	mu     sync.Mutex
	flight domain.Flight
}

// MemoryLedger keeps flights and bookings in process memory. Each flight has its own lock,
// so reservations on one flight are serialised while different flights do not contend.
type MemoryLedger struct {
	mu           sync.RWMutex
	flights      map[int64]*flightRow
	bookings     map[int64]*domain.Booking
	bySettlement map[string]int64
	nextFlight   int64
	nextBooking  int64
	now          func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		flights:      make(map[int64]*flightRow),
		bookings:     make(map[int64]*domain.Booking),
		bySettlement: make(map[string]int64),
		now:          time.Now,
	}
}

func (m *MemoryLedger) row(id int64) (*flightRow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.flights[id]
	return r, ok
}

func (m *MemoryLedger) Create(ctx context.Context, f *domain.Flight) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.AvailableSeats == 0 {
		f.AvailableSeats = f.TotalSeats
	}
	if f.AvailableSeats < 0 || f.AvailableSeats > f.TotalSeats {
		return domain.ErrInvalidFlight
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextFlight++
	now := m.now()
	f.ID = m.nextFlight
	f.CreatedAt, f.UpdatedAt = now, now
	m.flights[f.ID] = &flightRow{flight: *f}
	return nil
}

func (m *MemoryLedger) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, ok := m.row(id)
	if !ok {
		return nil, domain.ErrFlightNotFound
	}
	r.mu.Lock()
	f := r.flight
	r.mu.Unlock()
	return &f, nil
}

func (m *MemoryLedger) ListCompletedBefore(ctx context.Context, before time.Time) ([]domain.Flight, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	pending := make(map[int64]bool)
	for _, b := range m.bookings {
		if !b.Awarded() {
			pending[b.FlightID] = true
		}
	}
	rows := make([]*flightRow, 0, len(pending))
	for id := range pending {
		rows = append(rows, m.flights[id])
	}
	m.mu.RUnlock()

	flights := make([]domain.Flight, 0, len(rows))
	for _, r := range rows {
		r.mu.Lock()
		f := r.flight
		r.mu.Unlock()
		if f.FlightDate.Before(before) {
			flights = append(flights, f)
		}
	}
	sort.Slice(flights, func(i, j int) bool {
		if flights[i].FlightDate.Equal(flights[j].FlightDate) {
			return flights[i].ID < flights[j].ID
		}
		return flights[i].FlightDate.Before(flights[j].FlightDate)
	})
	return flights, nil
}

func (m *MemoryLedger) Reserve(ctx context.Context, booking *domain.Booking) (*domain.Flight, error) {
	r, ok := m.row(booking.FlightID)
	if !ok {
		return nil, domain.ErrFlightNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A cancelled caller never commits.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.flight.AvailableSeats < booking.PartySize {
		return nil, domain.ErrInsufficientCapacity
	}

	m.mu.Lock()
	if booking.SettlementID != "" {
		if _, dup := m.bySettlement[booking.SettlementID]; dup {
			m.mu.Unlock()
			return nil, domain.ErrDuplicateRequest
		}
	}
	m.nextBooking++
	now := m.now()
	stored := *booking
	stored.ID = m.nextBooking
	stored.CreatedAt = now
	m.bookings[stored.ID] = &stored
	if stored.SettlementID != "" {
		m.bySettlement[stored.SettlementID] = stored.ID
	}
	m.mu.Unlock()

	r.flight.AvailableSeats -= booking.PartySize
	r.flight.UpdatedAt = now

	booking.ID = stored.ID
	booking.CreatedAt = stored.CreatedAt
	f := r.flight
	return &f, nil
}

func (m *MemoryLedger) GetBySettlement(ctx context.Context, settlementID string) (*domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.bySettlement[settlementID]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	b := *m.bookings[id]
	return &b, nil
}

func (m *MemoryLedger) ListUnawardedByFlight(ctx context.Context, flightID int64) ([]domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.FlightID == flightID && !b.Awarded() {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryLedger) MarkAwarded(ctx context.Context, bookingID int64, points int64, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return false, domain.ErrBookingNotFound
	}
	if b.Awarded() {
		return false, nil
	}
	awardedAt := at
	b.AwardedAt = &awardedAt
	b.PointsAwarded = points
	return true, nil
}

// Bookings returns a snapshot of every booking for a flight, awarded or not.
func (m *MemoryLedger) Bookings(flightID int64) []domain.Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.FlightID == flightID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var (
	_ FlightRepository  = (*MemoryLedger)(nil)
	_ BookingRepository = (*MemoryLedger)(nil)
)
