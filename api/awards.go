package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/skymiles/internal/service/award"
	"github.com/gin-gonic/gin"
)

type AwardHandler struct {
	service award.AwardUseCase
	now     func() time.Time
}

func NewAwardHandler(service award.AwardUseCase) *AwardHandler {
	return &AwardHandler{service: service, now: time.Now}
}

func (h *AwardHandler) Register(router *gin.RouterGroup) {
	router.POST("/award-cycle", h.run)
}

// run triggers one award cycle. as_of (RFC 3339) defaults to now.
func (h *AwardHandler) run(c *gin.Context) {
	asOf := h.now()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "as_of must be an RFC 3339 timestamp")
			return
		}
		asOf = parsed
	}

	summary, err := h.service.RunAwardCycle(c.Request.Context(), asOf)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
