package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/gobot/internal/analytics"
)

type feedbackRequest struct {
	FeedbackType    string                 `json:"feedbackType"`
	Install         string                 `json:"install"`
	TicketData      map[string]interface{} `json:"ticketData"`
	ClarifiedOutput map[string]interface{} `json:"clarifiedOutput"`
	Comment         string                 `json:"comment"`
}

func (s *Server) submitFeedback(c echo.Context) error {
	var req feedbackRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
	}
	if req.FeedbackType != "upvote" && req.FeedbackType != "downvote" {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid feedback type. Must be 'upvote' or 'downvote'"))
	}
	if s.deps.Analytics == nil {
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to store feedback"))
	}

	title, _ := req.TicketData["title"].(string)
	description, _ := req.TicketData["description"].(string)

	err := s.deps.Analytics.InsertFeedback(c.Request().Context(), analytics.Feedback{
		Install:         req.Install,
		TicketTitle:     title,
		TicketDesc:      description,
		ClarifiedOutput: req.ClarifiedOutput,
		FeedbackType:    req.FeedbackType,
		Comment:         req.Comment,
	})
	if err != nil {
		log.Error().Err(err).Msg("feedback storage failed")
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to store feedback"))
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Thank you for your feedback! This helps us improve.",
	})
}

func (s *Server) feedbackStats(c echo.Context) error {
	if s.deps.Analytics == nil {
		return c.JSON(http.StatusNotFound, errorBody("Database not configured"))
	}

	stats, err := s.deps.Analytics.FeedbackStats(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("feedback stats failed")
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to load feedback stats"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"period":   "Last 30 days",
		"feedback": stats,
	})
}

func (s *Server) installAnalytics(c echo.Context) error {
	if !s.cfg.EnableAnalytics || s.deps.Analytics == nil {
		return c.JSON(http.StatusNotFound, errorBody("Analytics not enabled"))
	}

	stats, err := s.deps.Analytics.StatsForInstall(c.Request().Context(), c.Param("install"))
	if err != nil {
		log.Error().Err(err).Msg("install analytics failed")
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to load analytics"))
	}
	return c.JSON(http.StatusOK, stats)
}
