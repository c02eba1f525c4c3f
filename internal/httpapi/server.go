// Package httpapi serves the device operations over HTTP with echo.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/matterctl/internal/auth"
	"github.com/danmuck/matterctl/internal/device"
	"github.com/danmuck/matterctl/internal/observability"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Devices is the facade the routes call into.
type Devices interface {
	PowerOn(ctx context.Context, addr device.Address) device.Result
	PowerOff(ctx context.Context, addr device.Address) device.Result
	Toggle(ctx context.Context, addr device.Address) device.Result
	ReadState(ctx context.Context, addr device.Address) device.Result
	ListDevices(ctx context.Context) device.Result
}

type Server struct {
	echo      *echo.Echo
	devices   Devices
	validator auth.Validator
	origins   []string
	started   time.Time
	version   string
	logger    zerolog.Logger
}

type Option func(*Server)

// WithCORS lets browsers on the listed origins call the API. Without it no
// CORS headers are sent.
func WithCORS(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithAuth requires a bearer token accepted by v on the /devices routes.
func WithAuth(v auth.Validator) Option {
	return func(s *Server) {
		s.validator = v
	}
}

func New(devices Devices, version string, logger zerolog.Logger, opts ...Option) *Server {
	logger = logger.With().Str("component", "http").Logger()
	observability.RegisterMetrics()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(observability.RequestMetrics(), observability.RequestLogger(logger))

	s := &Server{
		echo:    e,
		devices: devices,
		started: time.Now(),
		version: version,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.origins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
			MaxAge:       int((12 * time.Hour).Seconds()),
		}))
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// ListenAndServe blocks until ctx is done or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("httpapi.Server.ListenAndServe listening")
		errc <- s.echo.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info().Msg("httpapi.Server.ListenAndServe stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var guard []echo.MiddlewareFunc
	if s.validator != nil {
		guard = append(guard, auth.Middleware(s.validator))
	}
	devices := s.echo.Group("/devices", guard...)
	devices.GET("", s.handleList)
	devices.POST("/power/:action", s.handlePower)
	devices.GET("/state", s.handleState)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "matterctl",
		"version": s.version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleList(c echo.Context) error {
	return respond(c, s.devices.ListDevices(c.Request().Context()))
}

// addressRequest is the optional JSON body of a power request.
type addressRequest struct {
	NodeID     string `json:"nodeId"`
	EndpointID string `json:"endpointId"`
}

func (s *Server) handlePower(c echo.Context) error {
	var op func(context.Context, device.Address) device.Result
	switch strings.ToLower(c.Param("action")) {
	case "on":
		op = s.devices.PowerOn
	case "off":
		op = s.devices.PowerOff
	case "toggle":
		op = s.devices.Toggle
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown action %q: want on, off or toggle", c.Param("action")))
	}

	var body addressRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	addr := queryAddress(c)
	if addr.NodeID == "" {
		addr.NodeID = body.NodeID
	}
	if addr.EndpointID == "" {
		addr.EndpointID = body.EndpointID
	}
	return respond(c, op(c.Request().Context(), addr))
}

func (s *Server) handleState(c echo.Context) error {
	return respond(c, s.devices.ReadState(c.Request().Context(), queryAddress(c)))
}

func queryAddress(c echo.Context) device.Address {
	return device.Address{
		NodeID:     strings.TrimSpace(c.QueryParam("node")),
		EndpointID: strings.TrimSpace(c.QueryParam("endpoint")),
	}
}

// respond maps a failed operation to 502 since the upstream shell failed.
func respond(c echo.Context, res device.Result) error {
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	return c.JSON(status, res)
}
