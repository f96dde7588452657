package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// ────────────────────────────────────────────────────────────
// POST /events, POST /v1/events
// Run one event through the full cognition pipeline.
// ────────────────────────────────────────────────────────────

func (s *Server) postEventHandler(c *echo.Context) error {
	var envelope map[string]any
	if err := c.Bind(&envelope); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object")
	}

	resp, err := s.engine.ProcessEvent(c.Request().Context(), envelope)
	if err != nil {
		return mapPipelineError(err)
	}
	return c.JSON(http.StatusOK, resp)
}
