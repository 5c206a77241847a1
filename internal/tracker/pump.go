// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package tracker

import (
	"context"
	"log/slog"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/logger"
)

// startPump starts the sampling loop. The caller must hold the lock.
func (m *Machine) startPump(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	pumpCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.parent = ctx
	m.pumpCancel = cancel
	m.pumpDone = done
	go m.pump(pumpCtx, done)
}

// pumpAlive reports whether the sampling loop is still running. The caller must hold the lock.
func (m *Machine) pumpAlive() bool {
	if m.pumpDone == nil {
		return false
	}
	select {
	case <-m.pumpDone:
		return false
	default:
		return true
	}
}

func stopPump(cancel context.CancelFunc, done chan struct{}) {
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// pump runs sampling sessions until ctx is done. Sessions that end with a retryable error
// are restarted with an exponential backoff, which is reset once a session delivered fixes.
func (m *Machine) pump(ctx context.Context, done chan struct{}) {
	defer close(done)
	backoff := geobus.InitialBackoff

	for {
		sub, err := m.sampler.Start(ctx, m.config.Sampling)
		if err != nil {
			m.logger.Error("failed to start sampling", slog.String("provider", m.sampler.Name()), logger.Err(err))
			m.report(Status{Kind: StatusGeoError, Err: err})
			return
		}
		gotFix, geoErr := m.drain(ctx, sub)
		sub.Stop()
		if ctx.Err() != nil {
			return
		}

		if geoErr != nil {
			m.logger.Warn("sampling session ended", slog.String("provider", geoErr.Provider),
				slog.String("kind", geoErr.Kind.String()), logger.Err(geoErr.Err))
			m.report(Status{Kind: StatusGeoError, TripID: m.activeTripID(), Err: geoErr})
			if !geoErr.Retryable() {
				m.logger.Error("giving up on sampling, enable tracking again to retry",
					slog.String("provider", geoErr.Provider), logger.Err(geoErr))
				return
			}
		}
		if gotFix {
			backoff = geobus.InitialBackoff
		}
		if !geobus.SleepOrDone(ctx, backoff) {
			return
		}
		backoff = geobus.NextBackoff(backoff)
	}
}

// drain relays the fixes of a session to HandleFix until the session ends.
func (m *Machine) drain(ctx context.Context, sub *geobus.Subscription) (gotFix bool, geoErr *geobus.GeoError) {
	for {
		select {
		case <-ctx.Done():
			return gotFix, nil
		case ev, ok := <-sub.C():
			if !ok {
				return gotFix, nil
			}
			if ev.Err != nil {
				return gotFix, ev.Err
			}
			gotFix = true
			m.HandleFix(ev.Fix)
		}
	}
}

func (m *Machine) activeTripID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trip == nil {
		return ""
	}
	return m.trip.ID
}
