package progress

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/arena/internal/pkg/common"
)

const DefaultRingSize = 256

// StatusService exposes the events of the current run over HTTP.
type StatusService struct {
	RunID   string
	Ring    *Ring
	Started time.Time
}

func NewStatusService(i do.Injector) (*StatusService, error) {
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run ID: %w", err)
	}

	ring, err := NewRing(DefaultRingSize)
	if err != nil {
		return nil, err
	}

	result := &StatusService{
		RunID:   runID.String(),
		Ring:    ring,
		Started: time.Now().UTC(),
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Register)

	return result, nil
}

func (s *StatusService) Register(e *echo.Echo) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/health", s.GetHealth)
	apiGroup.GET("/progress", s.GetProgress)
}

type health struct {
	RunID  string `json:"runId"`
	Uptime string `json:"uptime"`
	Events int    `json:"events"`
	Last   *Event `json:"last,omitempty"`
}

func (s *StatusService) GetHealth(c echo.Context) error {
	h := health{
		RunID:  s.RunID,
		Uptime: time.Since(s.Started).Round(time.Second).String(),
		Events: s.Ring.Len(),
	}

	if last, ok := s.Ring.Last(); ok {
		h.Last = &last
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, h)
}

// GetProgress returns the retained events, optionally only the newest ?limit=n.
func (s *StatusService) GetProgress(c echo.Context) error {
	events := s.Ring.Snapshot()

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}

		if limit < len(events) {
			events = events[len(events)-limit:]
		}
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, events, "  ")
}
