package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Flight struct {
	ID              int64     `json:"id"`
	FromCity        string    `json:"from_city"`
	ToCity          string    `json:"to_city"`
	FlightDate      time.Time `json:"flight_date"`
	FlightCode      string    `json:"flight_code"`
	PriceCents      int64     `json:"price_cents"`
	DurationMinutes int       `json:"duration_minutes"`
	TotalSeats      int       `json:"total_seats"`
	AvailableSeats  int       `json:"available_seats"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Price returns the unit price in currency units with two decimal places.
func (f Flight) Price() decimal.Decimal {
	return decimal.New(f.PriceCents, -2)
}
