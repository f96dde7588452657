package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
)

// transcriptPageLimit bounds one transcript read. Retention keeps the
// table smaller than this, so a since=0 read still returns everything.
const transcriptPageLimit = 1000

// ────────────────────────────────────────────────────────────
// GET /v1/os/agents/transcript?since=<cursor>
// ────────────────────────────────────────────────────────────

func (s *Server) getTranscriptHandler(c *echo.Context) error {
	var since int64
	if v := c.QueryParam("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be a non-negative integer")
		}
		since = n
	}

	ctx := c.Request().Context()
	items, err := s.store.TranscriptSince(ctx, since, transcriptPageLimit)
	if err != nil {
		return mapPipelineError(err)
	}
	cursor, err := s.store.LatestCursor(ctx)
	if err != nil {
		return mapPipelineError(err)
	}
	return c.JSON(http.StatusOK, &TranscriptResponse{Cursor: cursor, Items: items})
}
