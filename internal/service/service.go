// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"

	"github.com/wneessen/fuelwatch/internal/api"
	"github.com/wneessen/fuelwatch/internal/config"
	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/geocode"
	"github.com/wneessen/fuelwatch/internal/http"
	"github.com/wneessen/fuelwatch/internal/i18n"
	"github.com/wneessen/fuelwatch/internal/logger"
	"github.com/wneessen/fuelwatch/internal/metrics"
	"github.com/wneessen/fuelwatch/internal/notify"
	"github.com/wneessen/fuelwatch/internal/presenter"
	"github.com/wneessen/fuelwatch/internal/pricelookup"
	"github.com/wneessen/fuelwatch/internal/recorder"
	"github.com/wneessen/fuelwatch/internal/tracker"
)

const (
	cacheHitTTL        = time.Hour * 12
	cacheMissTTL       = time.Minute * 10
	cachePurgeInterval = time.Minute * 10
	reconcileTimeout   = time.Second * 10
	presentTimeout     = time.Second * 10
)

type outputData struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip"`
	Class   string `json:"class"`
}

type Service struct {
	config    *config.Config
	logger    *logger.Logger
	t         *spreak.Localizer
	lang      language.Tag
	scheduler gocron.Scheduler
	presenter *presenter.Presenter
	metrics   *metrics.Collector
	notifier  *notify.StationNotifier
	native    *notify.DBus
	output    io.Writer
	jobs      []gocron.Job
	SignalSrc signalSource

	machine  *tracker.Machine
	recorder *recorder.Multi
	locator  geobus.Locator
	lookup   *pricelookup.CachedClient
	geocoder *geocode.CachedGeocoder
	refresh  chan struct{}

	// trackingCtx bounds sampling sessions started through the control surface.
	trackingCtx context.Context

	stateLock  sync.Mutex
	orphan     *tracker.Trip
	lastStatus *tracker.Status

	outputLock sync.Mutex
}

func New(conf *config.Config, log *logger.Logger, t *spreak.Localizer) (*Service, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if t == nil {
		return nil, errors.New("localizer is required")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	lang := i18n.Tag(conf.Locale)
	pres, err := presenter.New(conf, t, lang)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}

	service := &Service{
		config:    conf,
		logger:    log,
		t:         t,
		lang:      lang,
		scheduler: scheduler,
		presenter: pres,
		metrics:   metrics.NewCollector(),
		output:    os.Stdout,
		SignalSrc: stdLibSignalSource{},
		refresh:   make(chan struct{}, 1),
	}

	if !conf.Notify.DisableNative {
		native, err := notify.NewDBus()
		if err != nil {
			log.Warn("desktop notifications unavailable, falling back to terminal output", logger.Err(err))
		} else {
			service.native = native
		}
	}
	var nativePresenter notify.Presenter
	if service.native != nil {
		nativePresenter = service.native
	}
	fallback := notify.NewFallback(nativePresenter, os.Stderr, log, service.metrics.NotificationPresented)
	service.notifier = notify.NewStationNotifier(pres, fallback)

	return service, nil
}

func (s *Service) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	if err := s.setup(ctx); err != nil {
		return err
	}
	s.trackingCtx = ctx

	// Start scheduled jobs
	if err := s.createScheduledJob(ctx, s.config.Intervals.Output, s.printStatus,
		"status_output_job"); err != nil {
		return err
	}
	if err := s.createScheduledJob(ctx, cachePurgeInterval, s.purgeCaches, "cache_purge_job"); err != nil {
		return err
	}
	s.scheduler.Start()

	var wg sync.WaitGroup
	if s.recorder != nil {
		wg.Go(func() { s.recorder.Run(ctx) })
	}
	wg.Go(func() { s.refreshStatus(ctx) })
	wg.Go(func() { s.monitorSleepResume(ctx) })

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	defer s.SignalSrc.Stop(sigChan)
	wg.Go(func() { s.HandleSignals(ctx, sigChan) })

	apiErr := make(chan error, 1)
	if s.config.API.Listen != "" {
		var metricsHandler nethttp.Handler
		if !s.config.Metrics.Disable {
			metricsHandler = s.metrics.Handler()
		}
		server := api.New(s, metricsHandler, s.logger)
		wg.Go(func() { apiErr <- server.Run(ctx, s.config.API.Listen) })
	}

	reconcileCtx, cancel := context.WithTimeout(ctx, reconcileTimeout)
	s.reconcile(reconcileCtx)
	cancel()
	if s.config.Tracking.AutoEnable {
		if err := s.EnableTracking(ctx); err != nil {
			s.logger.Error("failed to enable tracking", logger.Err(err))
		}
	}
	s.printStatus(ctx)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-apiErr:
		s.logger.Error("control API stopped", logger.Err(runErr))
	}

	s.releaseTrip()
	stop()
	wg.Wait()
	if s.native != nil {
		if err := s.native.Close(); err != nil {
			s.logger.Error("failed to close session bus connection", logger.Err(err))
		}
	}
	return errors.Join(runErr, s.scheduler.Shutdown())
}

// setup creates the parts of the service that need the network or the configured providers.
func (s *Service) setup(ctx context.Context) error {
	provider, err := s.selectPositionProvider()
	if err != nil {
		return fmt.Errorf("failed to create position provider: %w", err)
	}
	s.locator = s.selectLocator()

	s.lookup = pricelookup.NewCachedClient(
		pricelookup.NewHTTP(http.New(s.logger), s.config.Lookup.Endpoint, s.config.Lookup.APIKey,
			s.config.Lookup.Timeout),
		s.config.Lookup.CacheHitTTL, s.config.Lookup.CacheMissTTL)

	var labeler tracker.Labeler
	if !s.config.GeoCoder.Disable {
		s.geocoder, err = selectGeocodeProvider(s.config, s.logger, s.lang)
		if err != nil {
			return fmt.Errorf("failed to create geocode provider: %w", err)
		}
		labeler = geocode.NewLabeler(s.geocoder)
	}

	backends, err := s.openRecorderBackends(ctx)
	if err != nil {
		return err
	}
	s.recorder = s.newRecorder(backends)

	deps := tracker.Deps{
		Sampler:  geobus.NewSampler(provider, s.logger),
		Lookup:   s.lookup,
		Notifier: s.notifier,
		Observer: s.metrics,
		Labeler:  labeler,
		Status:   s.reportStatus,
	}
	if s.recorder != nil {
		deps.Recorder = s.recorder
	}
	s.machine, err = tracker.New(tracker.Config{
		Sampling: s.samplingOptions(provider),
		Accumulator: tracker.AccumulatorConfig{
			MaxAccuracyMeters: s.config.Accumulator.MaxAccuracyMeters,
			MaxSpeedKmh:       s.config.Accumulator.MaxSpeedKmh,
		},
		LookupTimeout:     s.config.Lookup.Timeout,
		LookupRadiusKm:    s.config.Trip.LookupRadiusKm,
		DefaultFuelType:   s.config.Trip.FuelType,
		DefaultIntervalKm: s.config.Trip.NotificationIntervalKm,
		FuelTypes:         config.FuelTypes,
	}, deps, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create trip state machine: %w", err)
	}
	return nil
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// printStatus writes the waybar status line for the current state to the output.
func (s *Service) printStatus(context.Context) {
	if s.machine == nil {
		return
	}
	state := s.machine.State()
	trip, active := s.machine.Snapshot()

	s.stateLock.Lock()
	last := s.lastStatus
	s.stateLock.Unlock()

	rendered, err := s.presenter.Render(s.presenter.BuildStatusContext(state, trip, active, last))
	if err != nil {
		s.logger.Error("failed to render status", logger.Err(err))
		return
	}
	output := outputData{
		Text:    rendered["text"],
		Tooltip: rendered["tooltip"],
		Class:   presenter.StateClasses[state],
	}

	s.outputLock.Lock()
	defer s.outputLock.Unlock()
	if err = json.NewEncoder(s.output).Encode(output); err != nil {
		s.logger.Error("failed to encode status output", logger.Err(err))
	}
}

// reportStatus is the status sink of the machine. It runs under the machine lock, so the
// status output is refreshed from another goroutine.
func (s *Service) reportStatus(st tracker.Status) {
	s.stateLock.Lock()
	s.lastStatus = &st
	s.stateLock.Unlock()
	s.metrics.StatusReported(st)

	msg := s.presenter.StatusMessage(st)
	switch st.Kind {
	case tracker.StatusNotified, tracker.StatusNoStation:
		s.logger.Info(msg, slog.String("trip_id", st.TripID))
	default:
		s.logger.Warn(msg, slog.String("kind", st.Kind.String()), slog.String("trip_id", st.TripID),
			logger.Err(st.Err))
	}

	s.requestRefresh()
}

func (s *Service) refreshStatus(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.refresh:
			s.printStatus(ctx)
		}
	}
}

func (s *Service) purgeCaches(context.Context) {
	purged := s.lookup.Purge()
	if s.geocoder != nil {
		purged += s.geocoder.Purge()
	}
	if purged > 0 {
		s.logger.Debug("purged expired cache entries", slog.Int("entries", purged))
	}
}

func (s *Service) presentSummary(ctx context.Context, summary tracker.Summary) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presentTimeout)
	defer cancel()
	if err := s.notifier.NotifySummary(ctx, summary); err != nil {
		s.reportStatus(tracker.Status{Kind: tracker.StatusPresentFailure, TripID: summary.TripID, Err: err,
			At: time.Now()})
	}
}
