package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Domenick1991/skymiles/config"
	"github.com/Domenick1991/skymiles/internal/domain"
	"github.com/Domenick1991/skymiles/internal/metrics"
	"github.com/Domenick1991/skymiles/internal/repository"
	"github.com/Domenick1991/skymiles/internal/service/flights"
	"github.com/Domenick1991/skymiles/internal/service/reservation"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(checks map[string]HealthCheck) (*gin.Engine, *metrics.Metrics) {
	gin.SetMode(gin.TestMode)
	ledger := repository.NewMemoryLedger()
	m := metrics.New("")
	router := NewRouter(config.HTTPConfig{}, App{
		Flights:      flights.NewFlightService(ledger),
		Reservations: reservation.NewReservationService(ledger, reservation.WithMetrics(m)),
		Metrics:      m,
		Checks:       checks,
	})
	return router, m
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_ReserveFlow(t *testing.T) {
	router, _ := newTestRouter(nil)

	w := do(router, "POST", "/v1/flights", `{"from_city":"Izmir","to_city":"Ankara","flight_date":"2026-05-01T09:00:00Z","flight_code":"SM7","price":"120.00","duration_minutes":70,"total_seats":2}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var flight domain.Flight
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flight))

	w = do(router, "POST", "/v1/reserve", `{"flight_id":1,"rider_id":5,"party_size":2}`)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(router, "POST", "/v1/reserve", `{"flight_id":1,"rider_id":6,"party_size":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "InsufficientCapacity")

	w = do(router, "GET", "/v1/flights/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flight))
	assert.Equal(t, 0, flight.AvailableSeats)
	assert.Equal(t, 2, flight.TotalSeats)

	w = do(router, "GET", "/v1/flights/99", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	router, _ := newTestRouter(nil)

	do(router, "GET", "/v1/flights/1", "")
	w := do(router, "GET", "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `skymiles_http_requests_total{method="GET",route="/v1/flights/:id",status="404"} 1`)
}

func TestRouter_Healthz(t *testing.T) {
	router, _ := newTestRouter(map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	})
	w := do(router, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":"ok"`)

	router, _ = newTestRouter(map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"balance":  func(context.Context) error { return errors.New("connection refused") },
	})
	w = do(router, "GET", "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"balance":"connection refused"`)
}

func TestOpenLedger_Memory(t *testing.T) {
	ledger, err := OpenLedger(context.Background(), config.DatabaseConfig{Driver: "memory"})
	require.NoError(t, err)
	defer ledger.Close()

	assert.NoError(t, ledger.Ping(context.Background()))
	_, err = ledger.Flights.GetByID(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrFlightNotFound)

	repo, closeStore, err := OpenBalances(context.Background(), config.DatabaseConfig{Driver: "memory"})
	require.NoError(t, err)
	defer closeStore()
	_, err = repo.Get(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrRiderNotFound)
}

func TestOpenCache_WithoutRedis(t *testing.T) {
	store, ping, closeCache := OpenCache(config.RedisConfig{})
	defer closeCache()

	assert.NoError(t, ping(context.Background()))
	ok, err := store.AcquireLock(context.Background(), "award-cycle", 0)
	require.NoError(t, err)
	assert.True(t, ok)
}
