package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/gobot/internal/license"
)

func (s *Server) validateKey(c echo.Context) error {
	if s.deps.Validator == nil {
		return c.JSON(http.StatusOK, &license.ValidationResult{
			Message: "Service temporarily unavailable",
		})
	}

	var req struct {
		AccessKey string `json:"accessKey"`
	}
	if err := c.Bind(&req); err != nil || req.AccessKey == "" {
		return c.JSON(http.StatusBadRequest, errorBody("accessKey is required"))
	}

	// The install identity is the caller's address, matching how the panel
	// is deployed per workspace.
	install := c.RealIP()

	result, err := s.deps.Validator.Validate(c.Request().Context(), req.AccessKey, install)
	if err != nil {
		log.Error().Err(err).Msg("key validation failed")
		return c.JSON(http.StatusOK, &license.ValidationResult{
			Message: "Error validating key. Please try again.",
		})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) createFreeKey(c echo.Context) error {
	if s.deps.Licenses == nil {
		return c.JSON(http.StatusInternalServerError, errorBody("Database unavailable"))
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return c.JSON(http.StatusBadRequest, errorBody("Valid email required"))
	}

	ctx := c.Request().Context()
	existing, err := s.deps.Licenses.GetFreeKeyByEmail(ctx, email)
	if err != nil {
		log.Error().Err(err).Msg("free key lookup failed")
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to create license key"))
	}

	if existing != nil {
		if existing.IsActive {
			return c.JSON(http.StatusOK, map[string]interface{}{
				"keyCode":    existing.KeyCode,
				"email":      email,
				"plan":       "free",
				"isExisting": true,
				"message":    "You already have a free license key. Check your email or use the key below.",
			})
		}

		reactivated, err := s.deps.Licenses.ReactivateFreeKey(ctx, existing.KeyCode)
		if err != nil {
			log.Error().Err(err).Msg("free key reactivation failed")
			return c.JSON(http.StatusInternalServerError, errorBody("Failed to create license key"))
		}
		s.notify(c, email, reactivated)
		return c.JSON(http.StatusOK, map[string]interface{}{
			"keyCode":    reactivated.KeyCode,
			"email":      email,
			"plan":       "free",
			"isExisting": true,
			"message":    "Your free license key has been reactivated.",
		})
	}

	key, err := s.deps.Licenses.InsertFreeKey(ctx, email)
	if err != nil {
		log.Error().Err(err).Msg("free key creation failed")
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to create license key"))
	}
	log.Info().Str("key_code", key.KeyCode).Str("email", email).Msg("free license key created")

	s.notify(c, email, key)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"keyCode":    key.KeyCode,
		"email":      email,
		"plan":       "free",
		"gobotLimit": key.UsageLimit,
		"isExisting": false,
		"message":    "Your free license key has been created!",
	})
}

func (s *Server) notify(c echo.Context, email string, key *license.Key) {
	if s.deps.Notifier == nil {
		return
	}
	s.deps.Notifier.SendLicenseKey(c.Request().Context(), email, key.KeyCode, "Free", key.UsageLimit)
}

func (s *Server) keyUsage(c echo.Context) error {
	if s.deps.Licenses == nil {
		return c.JSON(http.StatusInternalServerError, errorBody("Database unavailable"))
	}

	keyCode := c.Param("keyCode")
	key, err := s.deps.Licenses.GetByKeyCode(c.Request().Context(), keyCode)
	if err != nil {
		log.Error().Err(err).Msg("usage lookup failed")
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to look up key"))
	}
	if key == nil {
		return c.JSON(http.StatusNotFound, errorBody("License key not found"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"keyCode":            keyCode,
		"plan":               key.Plan.String(),
		"email":              key.CustomerEmail,
		"gobotsUsed":         key.UsageUsed,
		"gobotLimit":         key.UsageLimit,
		"gobotsRemaining":    key.Remaining(),
		"usageResetsAt":      key.UsageResetsAt,
		"subscriptionStatus": key.SubscriptionStatus,
		"isActive":           key.IsActive,
		"activatedAt":        key.ActivatedAt,
	})
}

func (s *Server) findKeyByInstall(c echo.Context) error {
	if s.deps.Licenses == nil {
		return c.JSON(http.StatusInternalServerError, errorBody("Database unavailable"))
	}

	var req struct {
		Install string `json:"install"`
	}
	if err := c.Bind(&req); err != nil || req.Install == "" {
		return c.JSON(http.StatusBadRequest, errorBody("install is required"))
	}

	key, err := s.deps.Licenses.FindActiveByInstall(c.Request().Context(), req.Install)
	if err != nil {
		log.Error().Err(err).Msg("key lookup by install failed")
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to find license key"))
	}
	if key == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"isActive": false,
			"message":  "No active license key found for this install.",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"keyCode":       key.KeyCode,
		"plan":          key.Plan.String(),
		"createdAt":     key.CreatedAt,
		"expiresAt":     key.ExpiresAt,
		"isActive":      key.IsActive,
		"gobotLimit":    key.UsageLimit,
		"gobotUsed":     key.UsageUsed,
		"usageResetsAt": key.UsageResetsAt,
	})
}

func (s *Server) keyBySession(c echo.Context) error {
	if s.deps.Licenses == nil {
		return c.JSON(http.StatusInternalServerError, errorBody("Database unavailable"))
	}

	key, err := s.deps.Licenses.GetBySessionID(c.Request().Context(), c.Param("sessionID"))
	if err != nil {
		log.Error().Err(err).Msg("key lookup by session failed")
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to look up key"))
	}
	if key == nil {
		return c.JSON(http.StatusNotFound, errorBody("License key not found. It may still be processing."))
	}
	return c.JSON(http.StatusOK, checkoutKeyBody(key))
}

func (s *Server) keyByPaymentIntent(c echo.Context) error {
	if s.deps.Licenses == nil {
		return c.JSON(http.StatusInternalServerError, errorBody("Database unavailable"))
	}

	key, err := s.deps.Licenses.GetByPaymentIntentID(c.Request().Context(), c.Param("paymentIntentID"))
	if err != nil {
		log.Error().Err(err).Msg("key lookup by payment intent failed")
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to look up key"))
	}
	if key == nil {
		return c.JSON(http.StatusNotFound, errorBody("License key not found. It may still be processing."))
	}
	return c.JSON(http.StatusOK, checkoutKeyBody(key))
}

// checkoutKeyBody is what the post-checkout success page displays.
func checkoutKeyBody(key *license.Key) map[string]interface{} {
	return map[string]interface{}{
		"keyCode":       key.KeyCode,
		"email":         key.CustomerEmail,
		"plan":          key.Plan.String(),
		"gobotLimit":    key.UsageLimit,
		"createdAt":     key.CreatedAt,
		"usageResetsAt": key.UsageResetsAt,
	}
}
