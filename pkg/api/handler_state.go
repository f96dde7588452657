package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// cciHistoryLimit caps the history read; retention trims the table well
// below this anyway.
const cciHistoryLimit = 500

// ────────────────────────────────────────────────────────────
// GET /state
// ────────────────────────────────────────────────────────────

func (s *Server) getStateHandler(c *echo.Context) error {
	state, err := s.store.LoadState(c.Request().Context())
	if err != nil {
		return mapPipelineError(err)
	}
	return c.JSON(http.StatusOK, &StateResponse{State: state})
}

// ────────────────────────────────────────────────────────────
// GET /cci
// ────────────────────────────────────────────────────────────

func (s *Server) getCCIHandler(c *echo.Context) error {
	result, err := s.engine.CCI(c.Request().Context())
	if err != nil {
		return mapPipelineError(err)
	}
	return c.JSON(http.StatusOK, &CCIResponse{CCI: result.Score})
}

// ────────────────────────────────────────────────────────────
// GET /cci/history
// ────────────────────────────────────────────────────────────

func (s *Server) getCCIHistoryHandler(c *echo.Context) error {
	history, err := s.store.CCIHistory(c.Request().Context(), cciHistoryLimit)
	if err != nil {
		return mapPipelineError(err)
	}
	// The store returns newest first; the chart wants chronological order.
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return c.JSON(http.StatusOK, &CCIHistoryResponse{History: history})
}
