// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/logger"
)

const (
	dbusInterface   = "org.freedesktop.login1.Manager"
	dbusWatchMember = "PrepareForSleep"

	resumeDebounce   = 2 * time.Second
	signalBufferSize = 8

	busRetryDelay      = 5 * time.Second
	networkWakeupDelay = 10 * time.Second
)

// sleepWatch is a subscription to the login1 sleep signal on the system bus.
type sleepWatch struct {
	conn    *dbus.Conn
	signals chan *dbus.Signal
}

func (w *sleepWatch) close() error {
	w.conn.RemoveSignal(w.signals)
	return w.conn.Close()
}

// monitorSleepResume restarts position sampling whenever the system resumes from suspend.
// The bus subscription is re-established until ctx is done.
func (s *Service) monitorSleepResume(ctx context.Context) {
	var lastResume time.Time
	for {
		watch, err := s.watchSleep()
		if err != nil {
			s.logger.Debug("sleep monitoring unavailable, retrying", logger.Err(err))
			if !geobus.SleepOrDone(ctx, busRetryDelay) {
				return
			}
			continue
		}
		s.logger.Debug("subscribed to dbus signal", slog.String("interface", dbusInterface),
			slog.String("member", dbusWatchMember))

		done := s.consumeSleepSignals(ctx, watch.signals, &lastResume)
		if err = watch.close(); err != nil {
			s.logger.Error("failed to close system bus connection", logger.Err(err))
		}
		if done || !geobus.SleepOrDone(ctx, busRetryDelay) {
			return
		}
	}
}

func (s *Service) watchSleep() (*sleepWatch, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	if err = conn.AddMatchSignal(dbus.WithMatchInterface(dbusInterface),
		dbus.WithMatchMember(dbusWatchMember)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s.%s: %w", dbusInterface, dbusWatchMember, err)
	}
	watch := &sleepWatch{conn: conn, signals: make(chan *dbus.Signal, signalBufferSize)}
	conn.Signal(watch.signals)
	return watch, nil
}

// consumeSleepSignals handles signals until ctx is done, which returns true, or the channel
// is closed by a lost connection.
func (s *Service) consumeSleepSignals(ctx context.Context, signals <-chan *dbus.Signal, lastResume *time.Time) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case sig, ok := <-signals:
			if !ok {
				return false
			}
			if !isResumeSignal(sig) {
				continue
			}
			now := time.Now()
			if now.Sub(*lastResume) < resumeDebounce {
				continue
			}
			*lastResume = now
			s.handleResume(ctx)
		}
	}
}

// isResumeSignal reports whether sig is PrepareForSleep(false).
func isResumeSignal(sig *dbus.Signal) bool {
	if sig == nil || len(sig.Body) != 1 {
		return false
	}
	sleeping, ok := sig.Body[0].(bool)
	return ok && !sleeping
}

// handleResume restarts the sampling session, since provider connections do not survive a
// suspend.
func (s *Service) handleResume(ctx context.Context) {
	// network needs a moment after wake-up
	if !geobus.SleepOrDone(ctx, networkWakeupDelay) {
		return
	}
	s.logger.Debug("resumed from sleep, restarting position sampling",
		slog.String("state", s.machine.State().String()))
	s.machine.RestartSampler()
	s.requestRefresh()
}
