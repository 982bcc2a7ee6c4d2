package api

import (
	"net/http"

	"github.com/Domenick1991/skymiles/internal/service/reservation"
	"github.com/Domenick1991/skymiles/internal/service/settlement"
	"github.com/gin-gonic/gin"
)

const idempotencyHeader = "Idempotency-Key"

type BookingHandler struct {
	reservations reservation.ReservationUseCase
	settlements  settlement.SettlementUseCase
}

type reserveRequest struct {
	FlightID  int64 `json:"flight_id"`
	RiderID   int64 `json:"rider_id"`
	PartySize int   `json:"party_size"`
}

func NewBookingHandler(reservations reservation.ReservationUseCase, settlements settlement.SettlementUseCase) *BookingHandler {
	return &BookingHandler{reservations: reservations, settlements: settlements}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/reserve", h.reserve)
	router.POST("/book-with-points", h.bookWithPoints)
}

func (h *BookingHandler) reserve(c *gin.Context) {
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.reservations.Reserve(c.Request.Context(), reservation.ReserveInput{
		FlightID:  req.FlightID,
		RiderID:   req.RiderID,
		PartySize: req.PartySize,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *BookingHandler) bookWithPoints(c *gin.Context) {
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.settlements.BookWithPoints(c.Request.Context(), settlement.BookWithPointsInput{
		FlightID:       req.FlightID,
		RiderID:        req.RiderID,
		PartySize:      req.PartySize,
		IdempotencyKey: c.GetHeader(idempotencyHeader),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
