// Package rpc exposes the control surface over HTTP/JSON using Echo, the
// same shape as the teacher's server/internal/httpapi package: one Echo
// instance, middleware.Recover, a slog request logger, and a handful of
// narrow handlers each wrapping one control.Surface operation.
package rpc

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"bken/mixcore/internal/control"
	"bken/mixcore/internal/daemon"
	"bken/mixcore/internal/deviceio"
	"bken/mixcore/internal/graph"
	"bken/mixcore/internal/render"
)

// Server is the Echo application wrapping one routing engine instance.
type Server struct {
	echo    *echo.Echo
	surface *control.Surface
	backend deviceio.Backend
	outputs *render.Registry
	daemon  *daemon.Client
}

// New constructs an Echo app with every control-surface route registered.
// daemon may be nil, in which case the prism-routing endpoint reports
// unavailable rather than panicking.
func New(surface *control.Surface, backend deviceio.Backend, outputs *render.Registry, daemonClient *daemon.Client) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, surface: surface, backend: backend, outputs: outputs, daemon: daemonClient}
	s.registerRoutes()
	return s
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := uuid.NewString()
			c.Response().Header().Set("X-Request-Id", id)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			slog.Info("http request",
				"request_id", id,
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) registerRoutes() {
	s.echo.GET("/api/output_devices", s.handleGetOutputDevices)
	s.echo.POST("/api/outputs/:device_id/start", s.handleStartOutput)
	s.echo.POST("/api/outputs/:device_id/stop", s.handleStopOutput)
	s.echo.POST("/api/nodes/source", s.handleAddSource)
	s.echo.POST("/api/nodes/source/prism_route", s.handleRoutePrismSource)
	s.echo.POST("/api/nodes/bus", s.handleAddBus)
	s.echo.POST("/api/nodes/sink", s.handleAddSink)
	s.echo.DELETE("/api/nodes/:handle", s.handleRemoveNode)
	s.echo.POST("/api/edges", s.handleAddEdge)
	s.echo.DELETE("/api/edges/:id", s.handleRemoveEdge)
	s.echo.PATCH("/api/edges/:id/gain", s.handleSetEdgeGain)
	s.echo.PATCH("/api/edges/:id/muted", s.handleSetEdgeMuted)
	s.echo.GET("/api/meters", s.handleReadMeters)
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutCtx)
	}
}

// errorEnvelope is the §7 error response shape.
type errorEnvelope struct {
	Error string `json:"error"`
}

func jsonError(c echo.Context, status int, err error) error {
	return c.JSON(status, errorEnvelope{Error: err.Error()})
}

func (s *Server) handleGetOutputDevices(c echo.Context) error {
	devices, err := s.backend.Devices()
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	outputs := make([]deviceio.Device, 0, len(devices))
	for _, d := range devices {
		if d.OutputChannels > 0 {
			outputs = append(outputs, d)
		}
	}
	return c.JSON(http.StatusOK, outputs)
}

func (s *Server) handleStartOutput(c echo.Context) error {
	deviceID := c.Param("device_id")
	if err := s.outputs.Start(deviceID); err != nil {
		return jsonError(c, http.StatusConflict, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleStopOutput(c echo.Context) error {
	deviceID := c.Param("device_id")
	if err := s.outputs.Stop(deviceID); err != nil {
		return jsonError(c, http.StatusConflict, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type addSourceRequest struct {
	Kind     string `json:"kind"` // "prism" or "input_device"
	DeviceID string `json:"device_id,omitempty"`
	Channel  int    `json:"channel"`
	Label    string `json:"label"`
	Capacity int    `json:"capacity"`
}

func (s *Server) handleAddSource(c echo.Context) error {
	var req addSourceRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}
	kind := graph.SourcePrismChannel
	if req.Kind == "input_device" {
		kind = graph.SourceInputDevice
	}
	capacity := req.Capacity
	if capacity <= 0 {
		capacity = 4096
	}
	id := graph.SourceId{Kind: kind, DeviceID: req.DeviceID, Channel: req.Channel}
	h := s.surface.AddNode(graph.NewSource(id, req.Label, capacity))
	return c.JSON(http.StatusCreated, map[string]any{"handle": h})
}

type routePrismSourceRequest struct {
	Pid      int32   `json:"pid,omitempty"`
	ClientID *uint32 `json:"client_id,omitempty"`
	Offset   uint32  `json:"offset"`
	Label    string  `json:"label"`
	Capacity int     `json:"capacity"`
}

// handleRoutePrismSource asks prismd to assign a channel offset to a pid
// or daemon client id, then builds a Source node carrying that offset as
// the opaque Channel of a SourcePrismChannel id, per spec.md §6's
// "channel offset as opaque input to source naming" integration.
func (s *Server) handleRoutePrismSource(c echo.Context) error {
	if s.daemon == nil {
		return jsonError(c, http.StatusServiceUnavailable, errors.New("rpc: no daemon client configured"))
	}
	var req routePrismSourceRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}

	var offset uint32
	if req.ClientID != nil {
		update, err := s.daemon.SetClient(*req.ClientID, req.Offset)
		if err != nil {
			return jsonError(c, http.StatusBadGateway, err)
		}
		offset = update.ChannelOffset
	} else {
		update, err := s.daemon.Set(req.Pid, req.Offset)
		if err != nil {
			return jsonError(c, http.StatusBadGateway, err)
		}
		offset = update.ChannelOffset
	}

	capacity := req.Capacity
	if capacity <= 0 {
		capacity = 4096
	}
	id := graph.SourceId{Kind: graph.SourcePrismChannel, Channel: int(offset)}
	h := s.surface.AddNode(graph.NewSource(id, req.Label, capacity))
	return c.JSON(http.StatusCreated, map[string]any{"handle": h, "channel_offset": offset})
}

type addBusRequest struct {
	Label     string `json:"label"`
	PortCount int    `json:"port_count"`
	Capacity  int    `json:"capacity"`
}

func (s *Server) handleAddBus(c echo.Context) error {
	var req addBusRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}
	capacity := req.Capacity
	if capacity <= 0 {
		capacity = 4096
	}
	h := s.surface.AddNode(graph.NewBus(req.Label, req.PortCount, capacity))
	return c.JSON(http.StatusCreated, map[string]any{"handle": h})
}

type addSinkRequest struct {
	DeviceID      string `json:"device_id"`
	ChannelOffset int    `json:"channel_offset"`
	ChannelCount  int    `json:"channel_count"`
	Label         string `json:"label"`
	Capacity      int    `json:"capacity"`
}

func (s *Server) handleAddSink(c echo.Context) error {
	var req addSinkRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}
	capacity := req.Capacity
	if capacity <= 0 {
		capacity = 4096
	}
	id := graph.SinkId{DeviceID: req.DeviceID, ChannelOffset: req.ChannelOffset, ChannelCount: req.ChannelCount}
	h := s.surface.AddNode(graph.NewSink(id, req.Label, capacity))
	return c.JSON(http.StatusCreated, map[string]any{"handle": h})
}

func (s *Server) handleRemoveNode(c echo.Context) error {
	h, err := parseUint32Param(c, "handle")
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}
	if !s.surface.RemoveNode(graph.NodeHandle(h)) {
		return jsonError(c, http.StatusNotFound, graph.ErrNodeNotFound)
	}
	return c.NoContent(http.StatusNoContent)
}

type addEdgeRequest struct {
	SourceHandle uint32 `json:"source_handle"`
	SourcePort   uint8  `json:"source_port"`
	TargetHandle uint32 `json:"target_handle"`
	TargetPort   uint8  `json:"target_port"`
}

func (s *Server) handleAddEdge(c echo.Context) error {
	var req addEdgeRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}
	id, err := s.surface.AddEdge(
		graph.NodeHandle(req.SourceHandle), graph.PortId(req.SourcePort),
		graph.NodeHandle(req.TargetHandle), graph.PortId(req.TargetPort),
	)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleRemoveEdge(c echo.Context) error {
	id, err := parseUint32Param(c, "id")
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}
	if !s.surface.RemoveEdge(graph.EdgeId(id)) {
		return jsonError(c, http.StatusNotFound, errors.New("edge not found"))
	}
	return c.NoContent(http.StatusNoContent)
}

type setGainRequest struct {
	Gain float32 `json:"gain"`
}

func (s *Server) handleSetEdgeGain(c echo.Context) error {
	id, err := parseUint32Param(c, "id")
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}
	var req setGainRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}
	if !s.surface.SetEdgeGain(graph.EdgeId(id), req.Gain) {
		return jsonError(c, http.StatusNotFound, errors.New("edge not found"))
	}
	return c.NoContent(http.StatusNoContent)
}

type setMutedRequest struct {
	Muted bool `json:"muted"`
}

func (s *Server) handleSetEdgeMuted(c echo.Context) error {
	id, err := parseUint32Param(c, "id")
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}
	var req setMutedRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}
	if !s.surface.SetEdgeMuted(graph.EdgeId(id), req.Muted) {
		return jsonError(c, http.StatusNotFound, errors.New("edge not found"))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleReadMeters(c echo.Context) error {
	return c.JSON(http.StatusOK, s.surface.ReadMeters())
}

func parseUint32Param(c echo.Context, name string) (uint32, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
