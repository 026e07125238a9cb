package wsapi

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/testerman-project/testerman-core/internal/job"
	"github.com/testerman-project/testerman-core/internal/scheduler"
)

// submitJob handles POST /api/v1/jobs.
func (s *Server) submitJob(c *echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed submission")
	}
	if req.Type != job.TypeATS && req.Type != job.TypeCampaign {
		return echo.NewHTTPError(http.StatusBadRequest, "type must be ats or campaign")
	}

	scheduledAt := time.Now()
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}

	j, err := s.builder.SubmitSource(req.Type, req.Name, req.Path, req.Username, req.Source, scheduledAt, req.Mapping, req.Groups)
	if err != nil {
		// Preparation errors are reported synchronously to the caller
		// but the job itself
		// still exists with a recorded id and error state.
		if j != nil {
			return c.JSON(http.StatusUnprocessableEntity, SubmitResponse{JobID: j.ID()})
		}
		return mapServiceError(err)
	}

	s.publishJobEvent(j)
	return c.JSON(http.StatusCreated, SubmitResponse{JobID: j.ID()})
}

// getJobInfo handles GET /api/v1/jobs/:id.
func (s *Server) getJobInfo(c *echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	j, ok := s.scheduler.Registry.Get(id)
	if !ok {
		return mapServiceError(notFound(id))
	}
	return c.JSON(http.StatusOK, BuildJobInfo(j))
}

// getJobDetails handles GET /api/v1/jobs/:id/details.
func (s *Server) getJobDetails(c *echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	j, ok := s.scheduler.Registry.Get(id)
	if !ok {
		return mapServiceError(notFound(id))
	}
	return c.JSON(http.StatusOK, BuildJobDetails(j))
}

// getJobLog handles GET /api/v1/jobs/:id/log.
func (s *Server) getJobLog(c *echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	j, ok := s.scheduler.Registry.Get(id)
	if !ok {
		return mapServiceError(notFound(id))
	}
	if j.LogPath() == "" {
		return echo.NewHTTPError(http.StatusNotFound, "job has no log yet")
	}
	content, err := job.ReadLog(j.LogPath())
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "log file not available")
	}
	return c.Blob(http.StatusOK, "application/xml", content)
}

// sendSignal handles POST /api/v1/jobs/:id/signal.
func (s *Server) sendSignal(c *echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req SignalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed signal request")
	}
	if err := s.scheduler.SendSignal(id, req.Signal); err != nil {
		return mapServiceError(err)
	}
	if j, ok := s.scheduler.Registry.Get(id); ok {
		s.publishJobEvent(j)
	}
	return c.NoContent(http.StatusAccepted)
}

// reschedule handles POST /api/v1/jobs/:id/reschedule.
func (s *Server) reschedule(c *echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed reschedule request")
	}
	j, ok := s.scheduler.Registry.Get(id)
	if !ok {
		return mapServiceError(notFound(id))
	}
	if j.State() != job.StateWaiting {
		return echo.NewHTTPError(http.StatusConflict, "job has already started")
	}
	if err := s.scheduler.Reschedule(id, req.At); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

// purge handles POST /api/v1/jobs/purge.
func (s *Server) purge(c *echo.Context) error {
	var req PurgeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed purge request")
	}
	n, err := s.scheduler.Purge(time.Duration(req.OlderThanSeconds) * time.Second)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, PurgeResponse{Removed: n})
}

// getVariables handles GET /api/v1/variables.
func (s *Server) getVariables(c *echo.Context) error {
	all := s.scheduler.Registry.All()
	running := 0
	for _, j := range all {
		if j.State() == job.StateRunning {
			running++
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"total_jobs":   len(all),
		"running_jobs": running,
		"version":      Version(),
	})
}

// publishJobEvent mirrors a job's current state on the Xc bus.
func (s *Server) publishJobEvent(j job.Job) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJobEvent(j.ID(), BuildJobInfo(j)); err != nil {
		_ = err // notification delivery failures never fail the request
	}
}

func notFound(id int64) error { return scheduler.NotFoundError(id) }
