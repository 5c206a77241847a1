// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/fuelwatch/internal/config"
	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/geobus/provider/gpsd"
	"github.com/wneessen/fuelwatch/internal/geobus/provider/ichnaea"
	"github.com/wneessen/fuelwatch/internal/geobus/provider/owntracks"
	"github.com/wneessen/fuelwatch/internal/geobus/provider/simulator"
	"github.com/wneessen/fuelwatch/internal/geobus/provider/trackfile"
	"github.com/wneessen/fuelwatch/internal/geocode"
	"github.com/wneessen/fuelwatch/internal/geocode/provider/nominatim"
	"github.com/wneessen/fuelwatch/internal/gpspoll"
	"github.com/wneessen/fuelwatch/internal/http"
	"github.com/wneessen/fuelwatch/internal/logger"
	"github.com/wneessen/fuelwatch/internal/recorder"
	"github.com/wneessen/fuelwatch/internal/recorder/backend/amqp"
	"github.com/wneessen/fuelwatch/internal/recorder/backend/httpapi"
	"github.com/wneessen/fuelwatch/internal/recorder/backend/nats"
	"github.com/wneessen/fuelwatch/internal/recorder/backend/postgres"
	"github.com/wneessen/fuelwatch/internal/recorder/backend/redis"
)

// intervalProvider is implemented by providers that deliver fixes at a fixed pace.
type intervalProvider interface {
	Interval() time.Duration
}

func (s *Service) selectPositionProvider() (geobus.Provider, error) {
	conf := s.config.Tracking
	switch strings.ToLower(conf.Provider) {
	case "gpsd":
		port, err := strconv.Atoi(conf.GPSD.Port)
		if err != nil {
			return nil, fmt.Errorf("invalid gpsd port %q: %w", conf.GPSD.Port, err)
		}
		return gpsd.New(conf.GPSD.Host, port), nil
	case "trackfile":
		return trackfile.New(conf.TrackFile.Path, conf.TrackFile.Interval), nil
	case "simulator":
		return simulator.New(simulator.Config{
			StartLat:       conf.Simulator.StartLat,
			StartLon:       conf.Simulator.StartLon,
			TargetLat:      conf.Simulator.TargetLat,
			TargetLon:      conf.Simulator.TargetLon,
			SpeedKmh:       conf.Simulator.SpeedKmh,
			UpdateInterval: conf.Simulator.UpdateInterval,
		}), nil
	case "owntracks":
		return owntracks.New(owntracks.Config{
			Broker:   conf.OwnTracks.Broker,
			Topic:    conf.OwnTracks.Topic,
			ClientID: conf.OwnTracks.ClientID,
			Username: conf.OwnTracks.Username,
			Password: conf.OwnTracks.Password,
		}), nil
	case "ichnaea":
		provider, err := ichnaea.New(http.New(s.logger), 0)
		if err != nil {
			return nil, fmt.Errorf("failed to create ICHNAEA provider: %w", err)
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unsupported tracking provider: %s", conf.Provider)
	}
}

// selectLocator returns a one-shot position source for providers that have one.
func (s *Service) selectLocator() geobus.Locator {
	if strings.ToLower(s.config.Tracking.Provider) != "gpsd" {
		return nil
	}
	return gpspoll.New(s.config.Tracking.GPSD.Host, s.config.Tracking.GPSD.Port)
}

// samplingOptions returns the session options for provider. A provider that only reports
// every interval would time out before its second fix, so the timeout is raised to at least
// two intervals.
func (s *Service) samplingOptions(provider geobus.Provider) geobus.Options {
	timeout := s.config.Tracking.Timeout
	if p, ok := provider.(intervalProvider); ok {
		timeout = max(timeout, 2*p.Interval())
	}
	return geobus.Options{
		HighAccuracy: !s.config.Tracking.LowAccuracy,
		Timeout:      timeout,
		MaxFixAge:    s.config.Tracking.MaxFixAge,
	}
}

func selectGeocodeProvider(conf *config.Config, log *logger.Logger, lang language.Tag) (*geocode.CachedGeocoder, error) {
	switch strings.ToLower(conf.GeoCoder.Provider) {
	case "nominatim":
		return geocode.NewCachedGeocoder(nominatim.New(http.New(log), lang), cacheHitTTL, cacheMissTTL), nil
	default:
		return nil, fmt.Errorf("unsupported geocoder type: %s", conf.GeoCoder.Provider)
	}
}

// openRecorderBackends connects to every configured backend. Backends that were opened
// before a failure are closed again.
func (s *Service) openRecorderBackends(ctx context.Context) ([]recorder.Backend, error) {
	conf := s.config.Recorder
	backends := make([]recorder.Backend, 0, len(conf.Backends))
	closeAll := func() {
		for _, backend := range backends {
			_ = backend.Close()
		}
	}

	for _, name := range conf.Backends {
		var backend recorder.Backend
		var err error
		switch name {
		case "http":
			backend = httpapi.New(http.New(s.logger), conf.HTTP.Endpoint, conf.HTTP.APIKey)
		case "postgres":
			backend, err = postgres.Open(ctx, conf.Postgres.DSN)
		case "redis":
			backend, err = redis.Open(ctx, conf.Redis.Addr, conf.Redis.Password, conf.Redis.DB)
		case "nats":
			backend, err = nats.Open(conf.NATS.URL, conf.NATS.SubjectPrefix, s.logger)
		case "amqp":
			backend, err = amqp.Open(conf.AMQP.URL, conf.AMQP.Exchange)
		default:
			err = fmt.Errorf("unsupported recorder backend: %s", name)
		}
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to open %s recorder: %w", name, err)
		}
		backends = append(backends, backend)
	}
	return backends, nil
}

func (s *Service) newRecorder(backends []recorder.Backend) *recorder.Multi {
	if len(backends) == 0 {
		return nil
	}
	opts := recorder.Options{
		QueueSize:        s.config.Recorder.QueueSize,
		RetryInterval:    s.config.Recorder.RetryInterval,
		MaxRetryInterval: s.config.Recorder.MaxRetry,
		MaxAttempts:      s.config.Recorder.MaxAttempts,
		Observer:         s.metrics,
	}
	dispatchers := make([]*recorder.Dispatcher, 0, len(backends))
	for _, backend := range backends {
		dispatchers = append(dispatchers, recorder.NewDispatcher(backend, opts, s.logger))
	}
	return recorder.NewMulti(dispatchers...)
}
