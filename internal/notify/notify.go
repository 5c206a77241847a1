// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package notify shows station recommendations and trip summaries to the user.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/fuelwatch/internal/tracker"
)

var ErrPresentFailed = errors.New("failed to present notification")

// Presenter shows a message to the user.
type Presenter interface {
	Present(ctx context.Context, title, body string) error
}

// Channel names the way a message reached the user.
type Channel string

const (
	ChannelNative   Channel = "native"
	ChannelFallback Channel = "fallback"
)

// Renderer turns trip events into message texts. It is satisfied by *presenter.Presenter.
type Renderer interface {
	RenderNotification(n tracker.Notification) (string, string, error)
	RenderSummary(s tracker.Summary) (string, string)
}

// StationNotifier renders and presents station recommendations. It implements
// tracker.Notifier.
type StationNotifier struct {
	renderer  Renderer
	presenter Presenter
}

func NewStationNotifier(renderer Renderer, presenter Presenter) *StationNotifier {
	return &StationNotifier{renderer: renderer, presenter: presenter}
}

func (s *StationNotifier) NotifyStation(ctx context.Context, n tracker.Notification) error {
	title, body, err := s.renderer.RenderNotification(n)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPresentFailed, err)
	}
	if err = s.presenter.Present(ctx, title, body); err != nil {
		return fmt.Errorf("%w: %w", ErrPresentFailed, err)
	}
	return nil
}

// NotifySummary presents the summary of an ended trip.
func (s *StationNotifier) NotifySummary(ctx context.Context, summary tracker.Summary) error {
	title, body := s.renderer.RenderSummary(summary)
	if err := s.presenter.Present(ctx, title, body); err != nil {
		return fmt.Errorf("%w: %w", ErrPresentFailed, err)
	}
	return nil
}
