package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/pce-project/pce/pkg/approval"
	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/store"
)

// mapPipelineError maps engine, store, and approval errors to HTTP error
// responses. Sentinel text is preserved for the approval workflow because
// operator tooling matches on it.
func mapPipelineError(err error) *echo.HTTPError {
	if errors.Is(err, engine.ErrInvalidEvent) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if errors.Is(err, approval.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, approval.ErrNotFound.Error())
	}
	if errors.Is(err, approval.ErrNotPending) {
		return echo.NewHTTPError(http.StatusConflict, approval.ErrNotPending.Error())
	}
	if errors.Is(err, approval.ErrInsufficientBudget) {
		return echo.NewHTTPError(http.StatusConflict, approval.ErrInsufficientBudget.Error())
	}
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	// Writer starvation surfaces as temporary unavailability; the client
	// should retry.
	if errors.Is(err, store.ErrConflict) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, store.ErrConflict.Error())
	}
	if errors.Is(err, store.ErrClosed) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "store is shutting down")
	}

	// Unexpected error
	slog.Error("Unexpected pipeline error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
