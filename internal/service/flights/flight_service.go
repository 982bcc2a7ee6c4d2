package flights

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Domenick1991/skymiles/internal/domain"
	"github.com/Domenick1991/skymiles/internal/repository"
	"github.com/shopspring/decimal"
)

type FlightUseCase interface {
	Create(ctx context.Context, input CreateFlightInput) (*domain.Flight, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
}

type CreateFlightInput struct {
	FromCity        string          `json:"from_city"`
	ToCity          string          `json:"to_city"`
	FlightDate      time.Time       `json:"flight_date"`
	FlightCode      string          `json:"flight_code"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"duration_minutes"`
	TotalSeats      int             `json:"total_seats"`
}

type FlightService struct {
	repo repository.FlightRepository
}

func NewFlightService(repo repository.FlightRepository) *FlightService {
	return &FlightService{repo: repo}
}

func (s *FlightService) Create(ctx context.Context, input CreateFlightInput) (*domain.Flight, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	f := &domain.Flight{
		FromCity:        strings.TrimSpace(input.FromCity),
		ToCity:          strings.TrimSpace(input.ToCity),
		FlightDate:      input.FlightDate.UTC(),
		FlightCode:      strings.TrimSpace(input.FlightCode),
		PriceCents:      input.Price.Shift(2).IntPart(),
		DurationMinutes: input.DurationMinutes,
		TotalSeats:      input.TotalSeats,
		AvailableSeats:  input.TotalSeats,
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "flight added", "flight_id", f.ID, "flight_code", f.FlightCode, "seats", f.TotalSeats)
	return f, nil
}

func (s *FlightService) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	return s.repo.GetByID(ctx, id)
}

func (in CreateFlightInput) validate() error {
	invalid := func(msg string) error {
		return fmt.Errorf("%w: %s", domain.ErrInvalidFlight, msg)
	}
	switch {
	case strings.TrimSpace(in.FromCity) == "" || strings.TrimSpace(in.ToCity) == "":
		return invalid("from_city and to_city are required")
	case strings.TrimSpace(in.FlightCode) == "":
		return invalid("flight_code is required")
	case in.FlightDate.IsZero():
		return invalid("flight_date is required")
	case in.TotalSeats <= 0:
		return invalid("total_seats must be positive")
	case in.DurationMinutes <= 0:
		return invalid("duration_minutes must be positive")
	case in.Price.IsNegative():
		return invalid("price must not be negative")
	case !in.Price.Shift(2).IsInteger():
		return invalid("price has more than two decimal places")
	}
	return nil
}

var _ FlightUseCase = (*FlightService)(nil)
