package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/gobot/internal/ai"
	"github.com/gobot/internal/analytics"
)

type clarifyRequest struct {
	ai.TicketInput
	AccessKey string `json:"accessKey"`
	Install   string `json:"install"`
}

type genCodeRequest struct {
	ai.CodeGenInput
	AccessKey string `json:"accessKey"`
}

// chargeQuota meters one unit against the key before any model work. An
// empty key is the free tier and passes through. When the increment is
// rejected the response has already been written and proceed is false.
func (s *Server) chargeQuota(c echo.Context, accessKey string) (proceed bool, err error) {
	if accessKey == "" {
		return true, nil
	}
	if s.deps.Licenses == nil {
		log.Warn().Msg("access key presented but no license store configured")
		return true, nil
	}

	ctx := c.Request().Context()
	used, limit, applied, err := s.deps.Licenses.ConsumeUsage(ctx, accessKey)
	if err != nil {
		return false, c.JSON(http.StatusInternalServerError, errorBody("Error tracking usage"))
	}
	if applied {
		log.Info().
			Str("key_code", accessKey).
			Int("used", used).
			Int("limit", limit).
			Msg("usage charged")
		return true, nil
	}

	// Rejected: distinguish a dead key from an exhausted one.
	key, err := s.deps.Licenses.GetByKeyCode(ctx, accessKey)
	if err != nil {
		return false, c.JSON(http.StatusInternalServerError, errorBody("Error tracking usage"))
	}
	if key == nil || !key.IsActive {
		return false, c.JSON(http.StatusForbidden, errorBody("Invalid or inactive license key"))
	}
	return false, c.JSON(http.StatusTooManyRequests, errorBody(
		fmt.Sprintf("Monthly limit of %d reached. Please upgrade or wait for reset.", key.UsageLimit)))
}

func (s *Server) clarify(c echo.Context) error {
	if s.deps.Generator == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody("AI service not configured"))
	}

	var req clarifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, errorBody("Ticket title is required"))
	}

	if ok, err := s.chargeQuota(c, req.AccessKey); !ok {
		return err
	}

	out, err := s.deps.Generator.Clarify(c.Request().Context(), req.TicketInput)
	if err != nil {
		log.Error().Err(err).Msg("clarification failed")
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to clarify ticket"))
	}

	s.recordTicket(req, out)
	return c.JSON(http.StatusOK, out)
}

// recordTicket stores the clarified ticket for analytics off the request
// path.
func (s *Server) recordTicket(req clarifyRequest, out *ai.ClarifiedTicket) {
	if !s.cfg.EnableAnalytics || s.deps.Analytics == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.deps.Analytics.InsertTicket(ctx, analytics.Ticket{
			Install:         req.Install,
			Title:           req.Title,
			Description:     req.Description,
			IssueType:       req.IssueType,
			Priority:        req.Priority,
			ClarifiedOutput: out,
			ProcessingTime:  out.ProcessingTime,
		})
	}()
}

func (s *Server) genCode(c echo.Context) error {
	if s.deps.Generator == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody("AI service not configured"))
	}

	var req genCodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
	}
	if req.JiraDescription == "" {
		return c.JSON(http.StatusBadRequest, errorBody("Jira description is required"))
	}

	if ok, err := s.chargeQuota(c, req.AccessKey); !ok {
		return err
	}

	out, err := s.deps.Generator.GenerateCode(c.Request().Context(), req.CodeGenInput)
	if err != nil {
		log.Error().Err(err).Msg("code generation failed")
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to generate code"))
	}
	return c.JSON(http.StatusOK, out)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
