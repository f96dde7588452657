package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// ────────────────────────────────────────────────────────────
// POST /agents/assistant/control/clear_memory
// Drops the learned bandit policy and conversation memory; the assistant
// restarts exploration from its configured epsilon.
// ────────────────────────────────────────────────────────────

func (s *Server) clearAssistantMemoryHandler(c *echo.Context) error {
	if s.assistant == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "assistant not configured")
	}

	deleted, err := s.assistant.ClearMemory(c.Request().Context())
	if err != nil {
		return mapPipelineError(err)
	}

	epsilon := 0.0
	if s.cfg != nil && s.cfg.Assistant != nil {
		epsilon = s.cfg.Assistant.EpsilonStart
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "cleared",
		"deleted": deleted,
		"epsilon": epsilon,
	})
}

// ────────────────────────────────────────────────────────────
// POST /agents/rover/control/{start,stop,reset,reset_stats,clear_policy}
// GET  /agents/rover/state
// ────────────────────────────────────────────────────────────

func (s *Server) requireRover() error {
	if s.rover == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "rover runtime not configured")
	}
	return nil
}

func (s *Server) startRoverHandler(c *echo.Context) error {
	if err := s.requireRover(); err != nil {
		return err
	}
	s.rover.Start()
	return c.JSON(http.StatusOK, map[string]any{
		"status": "running",
		"tick":   s.rover.State()["tick"],
	})
}

func (s *Server) stopRoverHandler(c *echo.Context) error {
	if err := s.requireRover(); err != nil {
		return err
	}
	s.rover.Stop()
	return c.JSON(http.StatusOK, map[string]any{
		"status": "stopped",
		"tick":   s.rover.State()["tick"],
	})
}

func (s *Server) resetRoverHandler(c *echo.Context) error {
	if err := s.requireRover(); err != nil {
		return err
	}
	payload := s.rover.Reset()
	return c.JSON(http.StatusOK, map[string]any{
		"status":     "reset",
		"episode_id": payload["episode_id"],
	})
}

func (s *Server) resetRoverStatsHandler(c *echo.Context) error {
	if err := s.requireRover(); err != nil {
		return err
	}
	s.rover.ResetStats()
	return c.JSON(http.StatusOK, map[string]any{"status": "stats_reset"})
}

func (s *Server) clearRoverPolicyHandler(c *echo.Context) error {
	if err := s.requireRover(); err != nil {
		return err
	}

	ctx := c.Request().Context()
	deleted, defaults, err := s.rover.ClearPolicy(ctx)
	if err != nil {
		return mapPipelineError(err)
	}

	// The RL mirror in engine state is stale once the Q-table is gone.
	state, err := s.store.LoadState(ctx)
	if err != nil {
		return mapPipelineError(err)
	}
	if _, ok := state["robotics_rl"]; ok {
		state["robotics_rl"] = map[string]any{}
		if err := s.store.SaveState(ctx, state); err != nil {
			return mapPipelineError(err)
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":   "cleared",
		"deleted":  deleted,
		"defaults": defaults,
	})
}

func (s *Server) getRoverStateHandler(c *echo.Context) error {
	if err := s.requireRover(); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.rover.State())
}
