// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wneessen/fuelwatch/internal/logger"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// stdLibSignalSource is the production implementation.
type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleSignals toggles tracking on SIGUSR1 and logs the current status on SIGUSR2.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				if err := s.ToggleTracking(ctx); err != nil {
					s.logger.Error("failed to toggle tracking", logger.Err(err))
				}
			case syscall.SIGUSR2:
				status := s.Status()
				attrs := []any{slog.String("state", status.State)}
				if status.Trip != nil {
					attrs = append(attrs, slog.String("trip_id", status.Trip.ID),
						slog.Float64("distance_km", status.Trip.DistanceTraveledKm),
						slog.Float64("next_notification_at_km", status.NextNotificationAtKm))
				}
				if status.LastStatus != "" {
					attrs = append(attrs, slog.String("last_status", status.LastStatus))
				}
				s.logger.Info("current status", attrs...)
			}
		}
	}
}
