package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/do/v2"
)

type EchoService struct {
	echo *echo.Echo
	port int
}

func NewEchoService(i do.Injector) (*EchoService, error) {
	port := do.MustInvokeNamed[int](i, "status-port")

	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	return &EchoService{
		echo: e,
		port: port,
	}, nil
}

func (s *EchoService) Register(c func(e *echo.Echo)) {
	c(s.echo)
}

func (s *EchoService) Enabled() bool {
	return s.port > 0
}

// Start serves in the background; a zero port disables the server.
func (s *EchoService) Start() {
	if !s.Enabled() {
		return
	}

	go func() {
		err := s.echo.Start(fmt.Sprintf("127.0.0.1:%d", s.port))
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.echo.Logger.Error(err)
		}
	}()
}

func (s *EchoService) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("failed to shutdown echo server: %w", err)
	}

	return nil
}
