package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

func (s *Server) createPaymentIntent(c echo.Context) error {
	if !s.cfg.EnablePayments || s.deps.Checkout == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody("Payments not available"))
	}

	var req struct {
		PlanID string `json:"planId"`
	}
	if err := c.Bind(&req); err != nil || req.PlanID == "" {
		return c.JSON(http.StatusBadRequest, errorBody("planId is required"))
	}

	planID := strings.ToLower(req.PlanID)
	intent, err := s.deps.Checkout.CreateSubscriptionCheckout(c.Request().Context(), planID)
	if err != nil {
		log.Error().Err(err).Str("plan", planID).Msg("checkout creation failed")
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, intent)
}
