package wsapi

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/testerman-project/testerman-core/internal/scheduler"
)

// mapServiceError maps a job/scheduler-layer error (PreparationError,
// NotFound, LockConflict, ...) to an HTTP error response.
func mapServiceError(err error) *echo.HTTPError {
	if err == nil {
		return nil
	}
	if errors.Is(err, scheduler.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	slog.Error("wsapi: unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
