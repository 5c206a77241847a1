// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/fuelwatch/internal/logger"
)

var errStreamClosed = errors.New("provider stream closed")

// Sampler starts sampling sessions on a provider.
type Sampler struct {
	provider Provider
	logger   *logger.Logger
	now      func() time.Time
}

// Subscription is a running sampling session. Events are delivered on C until Stop is
// called, the parent context is done or the session ended with an error event.
type Subscription struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewSampler returns a Sampler for the given provider.
func NewSampler(provider Provider, log *logger.Logger) *Sampler {
	return &Sampler{
		provider: provider,
		logger:   log,
		now:      time.Now,
	}
}

// Name returns the name of the underlying provider.
func (s *Sampler) Name() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// Start begins a new sampling session. Every call returns an independent Subscription.
func (s *Sampler) Start(ctx context.Context, opts Options) (*Subscription, error) {
	if s.provider == nil {
		return nil, ErrNoProvider
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		events: make(chan Event),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	src := s.safeStream(ctx, opts)
	go s.forward(ctx, sub, src, opts)

	s.logger.Debug("sampling session started", slog.String("provider", s.provider.Name()),
		slog.Bool("high_accuracy", opts.HighAccuracy), slog.Duration("timeout", opts.Timeout),
		slog.Duration("max_fix_age", opts.MaxFixAge))
	return sub, nil
}

// C returns the event channel. It is closed when the session ends.
func (sub *Subscription) C() <-chan Event {
	return sub.events
}

// Stop ends the session. Once Stop returns no further events are delivered. Stop is safe to
// call more than once and from multiple goroutines.
func (sub *Subscription) Stop() {
	sub.once.Do(sub.cancel)
	<-sub.done
}

// forward relays provider events to the subscriber, applying the session options.
func (s *Sampler) forward(ctx context.Context, sub *Subscription, src <-chan Event, opts Options) {
	defer close(sub.done)
	defer close(sub.events)
	defer sub.once.Do(sub.cancel)

	name := s.provider.Name()
	if src == nil {
		sub.emit(ctx, Event{Err: NewGeoError(PositionUnavailable, name, errors.New("provider failed to start"))})
		return
	}

	var timeoutC <-chan time.Time
	var timer *time.Timer
	if opts.Timeout > 0 {
		timer = time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-timeoutC:
			sub.emit(ctx, Event{Err: NewGeoError(Timeout, name,
				fmt.Errorf("no usable fix within %s", opts.Timeout))})
			return
		case ev, ok := <-src:
			if !ok {
				sub.emit(ctx, Event{Err: NewGeoError(PositionUnavailable, name, errStreamClosed)})
				return
			}
			if ev.Err != nil {
				if ev.Err.Provider == "" {
					ev.Err.Provider = name
				}
				sub.emit(ctx, ev)
				return
			}
			fix, usable := s.prepare(ev.Fix, opts)
			if !usable {
				continue
			}
			if timer != nil {
				timer.Reset(opts.Timeout)
			}
			if !sub.emit(ctx, Event{Fix: fix}) {
				return
			}
		}
	}
}

// prepare fills in missing metadata and filters invalid or outdated fixes.
func (s *Sampler) prepare(fix Fix, opts Options) (Fix, bool) {
	now := s.now()
	if fix.Timestamp.IsZero() {
		fix.Timestamp = now
	}
	if fix.Source == "" {
		fix.Source = s.provider.Name()
	}
	if !fix.Valid() {
		s.logger.Debug("dropping invalid fix", slog.Float64("lat", fix.Lat), slog.Float64("lon", fix.Lon))
		return fix, false
	}
	if opts.MaxFixAge > 0 && fix.Age(now) > opts.MaxFixAge {
		s.logger.Debug("dropping outdated fix", slog.Duration("age", fix.Age(now)),
			slog.Duration("max_fix_age", opts.MaxFixAge))
		return fix, false
	}
	return fix, true
}

// emit delivers ev unless the session was cancelled first.
func (sub *Subscription) emit(ctx context.Context, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case sub.events <- ev:
		return true
	}
}

// safeStream invokes Stream on the provider and recovers from potential panics.
func (s *Sampler) safeStream(ctx context.Context, opts Options) (ch <-chan Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("position provider panicked", slog.String("provider", s.provider.Name()),
				slog.Any("panic", r))
			ch = nil
		}
	}()
	return s.provider.Stream(ctx, opts)
}
