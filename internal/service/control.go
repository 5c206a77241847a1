// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wneessen/fuelwatch/internal/api"
	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/logger"
	"github.com/wneessen/fuelwatch/internal/tracker"
)

const (
	orphanPolicyResume  = "resume"
	orphanPolicyArchive = "archive"
)

// EnableTracking starts sampling. The sampling session lives as long as the service, not
// as long as ctx. A trip that was active when the daemon stopped is resumed afterwards.
func (s *Service) EnableTracking(context.Context) error {
	if err := s.machine.EnableTracking(s.trackingCtx); err != nil {
		return err
	}
	s.resumeOrphan()
	s.requestRefresh()
	return nil
}

// DisableTracking stops sampling. A trip that was still running is aborted and its summary
// presented.
func (s *Service) DisableTracking(ctx context.Context) *tracker.Summary {
	summary := s.machine.DisableTracking()
	if summary != nil {
		s.presentSummary(ctx, *summary)
	}
	s.requestRefresh()
	return summary
}

func (s *Service) StartTrip(_ context.Context, params tracker.Params) (tracker.Trip, error) {
	trip, err := s.machine.StartTrip(params)
	if err != nil {
		return tracker.Trip{}, err
	}
	s.stateLock.Lock()
	s.orphan = nil
	s.stateLock.Unlock()
	s.requestRefresh()
	return trip, nil
}

func (s *Service) StopTrip(ctx context.Context) (tracker.Summary, error) {
	summary, err := s.machine.StopTrip()
	if err != nil {
		return tracker.Summary{}, err
	}
	s.presentSummary(ctx, summary)
	s.requestRefresh()
	return summary, nil
}

// ToggleTracking enables tracking while idle and disables it otherwise.
func (s *Service) ToggleTracking(ctx context.Context) error {
	if s.machine.State() == tracker.StateIdle {
		return s.EnableTracking(ctx)
	}
	s.DisableTracking(ctx)
	return nil
}

func (s *Service) Status() api.Status {
	status := api.Status{State: s.machine.State().String()}
	if trip, ok := s.machine.Snapshot(); ok {
		status.Trip = &trip
		status.NextNotificationAtKm = trip.NextNotificationAtKm()
	}
	s.stateLock.Lock()
	if s.lastStatus != nil {
		status.LastStatus = s.presenter.StatusMessage(*s.lastStatus)
	}
	s.stateLock.Unlock()
	return status
}

// CurrentPosition returns the last fix of the running sampler. Without one it asks the
// one-shot locator, if the provider has one.
func (s *Service) CurrentPosition(ctx context.Context) (geobus.Fix, error) {
	fix, err := s.machine.CurrentPosition(ctx)
	if err == nil || s.locator == nil {
		return fix, err
	}
	if !errors.Is(err, geobus.ErrPositionUnavailable) {
		return fix, err
	}
	return s.locator.CurrentPosition(ctx)
}

// reconcile looks up a trip that was left active by a previous run and applies the
// configured orphan policy.
func (s *Service) reconcile(ctx context.Context) {
	if s.recorder == nil {
		return
	}
	trip, ok, err := s.recorder.ActiveTrip(ctx)
	if err != nil {
		s.logger.Error("failed to look up active trip", logger.Err(err))
		return
	}
	if !ok {
		return
	}

	switch s.config.Trip.OrphanPolicy {
	case orphanPolicyArchive:
		trip.Status = tracker.TripStatusOrphaned
		trip.EndedAt = time.Now()
		trip.LastFix = nil
		if err = s.recorder.TripEnded(trip); err != nil {
			s.logger.Error("failed to archive orphaned trip", slog.String("trip_id", trip.ID),
				logger.Err(err))
			return
		}
		s.logger.Info("archived orphaned trip", slog.String("trip_id", trip.ID),
			slog.Float64("distance_km", trip.DistanceTraveledKm))
	case orphanPolicyResume, "":
		s.stateLock.Lock()
		s.orphan = &trip
		s.stateLock.Unlock()
		s.logger.Info("found unfinished trip, resuming once tracking is enabled",
			slog.String("trip_id", trip.ID), slog.Float64("distance_km", trip.DistanceTraveledKm))
	}
}

// releaseTrip stops sampling on shutdown. An active trip is left open upstream, so the next
// start reconciles it with the configured orphan policy.
func (s *Service) releaseTrip() {
	trip, ok := s.machine.Shutdown()
	if !ok {
		return
	}
	s.logger.Info("leaving trip open for the next start", slog.String("trip_id", trip.ID),
		slog.Float64("distance_km", trip.DistanceTraveledKm))
}

func (s *Service) resumeOrphan() {
	s.stateLock.Lock()
	orphan := s.orphan
	s.orphan = nil
	s.stateLock.Unlock()
	if orphan == nil {
		return
	}

	if _, err := s.machine.ResumeTrip(*orphan); err != nil {
		s.logger.Error("failed to resume trip", slog.String("trip_id", orphan.ID), logger.Err(err))
	}
}

func (s *Service) requestRefresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}
