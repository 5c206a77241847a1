// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package api implements the local HTTP control surface of the daemon.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/logger"
	"github.com/wneessen/fuelwatch/internal/tracker"
)

const (
	PathTracking = "/v1/tracking"
	PathTrip     = "/v1/trip"
	PathPosition = "/v1/position"
	PathHealth   = "/healthz"
	PathMetrics  = "/metrics"

	shutdownTimeout   = time.Second * 5
	readHeaderTimeout = time.Second * 5
)

// Controller is the part of the service the API drives.
type Controller interface {
	EnableTracking(ctx context.Context) error
	DisableTracking(ctx context.Context) *tracker.Summary
	StartTrip(ctx context.Context, params tracker.Params) (tracker.Trip, error)
	StopTrip(ctx context.Context) (tracker.Summary, error)
	Status() Status
	CurrentPosition(ctx context.Context) (geobus.Fix, error)
}

// Status is the response of GET /v1/trip.
type Status struct {
	State                string        `json:"state"`
	Trip                 *tracker.Trip `json:"trip,omitempty"`
	NextNotificationAtKm float64       `json:"next_notification_at_km,omitempty"`
	LastStatus           string        `json:"last_status,omitempty"`
}

// TrackingResponse is the response of the /v1/tracking endpoints.
type TrackingResponse struct {
	State   string           `json:"state"`
	Summary *tracker.Summary `json:"summary,omitempty"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	ctrl    Controller
	log     *logger.Logger
	metrics http.Handler
	engine  *gin.Engine
}

// New builds the router. metrics may be nil, in which case /metrics is not served.
func New(ctrl Controller, metrics http.Handler, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	server := &Server{
		ctrl:    ctrl,
		log:     log,
		metrics: metrics,
		engine:  gin.New(),
	}
	server.engine.Use(gin.Recovery(), server.logRequests)
	server.routes()
	return server
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves the API on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()
	s.log.Info("control API listening", slog.String("addr", addr))

	select {
	case err := <-errs:
		return fmt.Errorf("control API failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down control API: %w", err)
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() {
	s.engine.GET(PathHealth, s.health)
	if s.metrics != nil {
		s.engine.GET(PathMetrics, gin.WrapH(s.metrics))
	}

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/tracking", s.enableTracking)
		v1.DELETE("/tracking", s.disableTracking)
		v1.GET("/trip", s.tripStatus)
		v1.POST("/trip", s.startTrip)
		v1.DELETE("/trip", s.stopTrip)
		v1.GET("/position", s.position)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "state": s.ctrl.Status().State})
}

func (s *Server) enableTracking(c *gin.Context) {
	if err := s.ctrl.EnableTracking(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, TrackingResponse{State: s.ctrl.Status().State})
}

func (s *Server) disableTracking(c *gin.Context) {
	summary := s.ctrl.DisableTracking(c.Request.Context())
	c.JSON(http.StatusOK, TrackingResponse{State: s.ctrl.Status().State, Summary: summary})
}

func (s *Server) tripStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Status())
}

func (s *Server) startTrip(c *gin.Context) {
	var params tracker.Params
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			respondError(c, fmt.Errorf("%w: %w", tracker.ErrInvalidParams, err))
			return
		}
	}
	trip, err := s.ctrl.StartTrip(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, trip)
}

func (s *Server) stopTrip(c *gin.Context) {
	summary, err := s.ctrl.StopTrip(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) position(c *gin.Context) {
	fix, err := s.ctrl.CurrentPosition(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fix)
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("api request", slog.String("method", c.Request.Method), slog.String("path", c.FullPath()),
		slog.Int("status", c.Writer.Status()), slog.Duration("took", time.Since(start)))
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusCode(err), ErrorResponse{Error: err.Error()})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, tracker.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, tracker.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, geobus.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, geobus.ErrPositionUnavailable), errors.Is(err, geobus.ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
