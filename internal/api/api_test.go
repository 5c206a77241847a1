// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/logger"
	"github.com/wneessen/fuelwatch/internal/tracker"
)

type mockController struct {
	state       string
	enableErr   error
	startFn     func(params tracker.Params) (tracker.Trip, error)
	stopFn      func() (tracker.Summary, error)
	summary     *tracker.Summary
	position    geobus.Fix
	positionErr error
}

func (m *mockController) EnableTracking(context.Context) error {
	if m.enableErr != nil {
		return m.enableErr
	}
	m.state = tracker.StateTracking.String()
	return nil
}

func (m *mockController) DisableTracking(context.Context) *tracker.Summary {
	m.state = tracker.StateIdle.String()
	return m.summary
}

func (m *mockController) StartTrip(_ context.Context, params tracker.Params) (tracker.Trip, error) {
	return m.startFn(params)
}

func (m *mockController) StopTrip(context.Context) (tracker.Summary, error) {
	return m.stopFn()
}

func (m *mockController) Status() Status {
	return Status{State: m.state, LastStatus: "No fuel station found nearby."}
}

func (m *mockController) CurrentPosition(context.Context) (geobus.Fix, error) {
	return m.position, m.positionErr
}

func serve(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %s", w.Body.String(), err)
	}
	return v
}

func TestServer_tracking(t *testing.T) {
	t.Run("enable tracking", func(t *testing.T) {
		ctrl := &mockController{state: "idle"}
		w := serve(t, New(ctrl, nil, logger.Discard()), http.MethodPost, PathTracking, "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if resp := decode[TrackingResponse](t, w); resp.State != "tracking" {
			t.Errorf("expected tracking state, got %q", resp.State)
		}
	})
	t.Run("enable tracking fails", func(t *testing.T) {
		ctrl := &mockController{enableErr: errors.New("sampler unavailable")}
		w := serve(t, New(ctrl, nil, logger.Discard()), http.MethodPost, PathTracking, "")
		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", w.Code)
		}
	})
	t.Run("disable tracking returns the aborted trip", func(t *testing.T) {
		ctrl := &mockController{
			state:   "trip_active",
			summary: &tracker.Summary{TripID: "trip-1", DistanceTraveledKm: 42, Abnormal: true},
		}
		w := serve(t, New(ctrl, nil, logger.Discard()), http.MethodDelete, PathTracking, "")
		resp := decode[TrackingResponse](t, w)
		if resp.State != "idle" || resp.Summary == nil || !resp.Summary.Abnormal {
			t.Errorf("unexpected response %+v", resp)
		}
	})
}

func TestServer_trip(t *testing.T) {
	t.Run("start trip with parameters", func(t *testing.T) {
		ctrl := &mockController{startFn: func(params tracker.Params) (tracker.Trip, error) {
			if params.FuelType != "ethanol" || params.NotificationIntervalKm != 50 || params.Destination != "Curitiba" {
				t.Errorf("unexpected params %+v", params)
			}
			return tracker.Trip{ID: "trip-1", FuelType: params.FuelType, Status: tracker.TripStatusActive}, nil
		}}
		w := serve(t, New(ctrl, nil, logger.Discard()), http.MethodPost, PathTrip,
			`{"destination":"Curitiba","fuel_type":"ethanol","notification_interval_km":50}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body)
		}
		if trip := decode[tracker.Trip](t, w); trip.ID != "trip-1" {
			t.Errorf("unexpected trip %+v", trip)
		}
	})
	t.Run("start trip without body uses defaults", func(t *testing.T) {
		ctrl := &mockController{startFn: func(params tracker.Params) (tracker.Trip, error) {
			if params != (tracker.Params{}) {
				t.Errorf("expected empty params, got %+v", params)
			}
			return tracker.Trip{ID: "trip-2"}, nil
		}}
		w := serve(t, New(ctrl, nil, logger.Discard()), http.MethodPost, PathTrip, "")
		if w.Code != http.StatusCreated {
			t.Errorf("expected 201, got %d", w.Code)
		}
	})

	tests := []struct {
		name string
		err  error
		body string
		want int
	}{
		{"trip while idle conflicts", fmt.Errorf("%w: tracking disabled", tracker.ErrPrecondition), "", http.StatusConflict},
		{"invalid parameters", fmt.Errorf("%w: unknown fuel type", tracker.ErrInvalidParams), "", http.StatusBadRequest},
		{"malformed body", nil, `{"fuel_type":`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := &mockController{startFn: func(tracker.Params) (tracker.Trip, error) {
				return tracker.Trip{}, tc.err
			}}
			w := serve(t, New(ctrl, nil, logger.Discard()), http.MethodPost, PathTrip, tc.body)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
			if resp := decode[ErrorResponse](t, w); resp.Error == "" {
				t.Error("expected error message")
			}
		})
	}

	t.Run("stop trip returns the summary", func(t *testing.T) {
		ctrl := &mockController{stopFn: func() (tracker.Summary, error) {
			return tracker.Summary{TripID: "trip-1", DistanceTraveledKm: 60, Notifications: 1}, nil
		}}
		w := serve(t, New(ctrl, nil, logger.Discard()), http.MethodDelete, PathTrip, "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if s := decode[tracker.Summary](t, w); s.DistanceTraveledKm != 60 || s.Notifications != 1 {
			t.Errorf("unexpected summary %+v", s)
		}
	})
	t.Run("stop trip without active trip conflicts", func(t *testing.T) {
		ctrl := &mockController{stopFn: func() (tracker.Summary, error) {
			return tracker.Summary{}, tracker.ErrPrecondition
		}}
		w := serve(t, New(ctrl, nil, logger.Discard()), http.MethodDelete, PathTrip, "")
		if w.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", w.Code)
		}
	})
	t.Run("trip status", func(t *testing.T) {
		ctrl := &mockController{state: "tracking"}
		w := serve(t, New(ctrl, nil, logger.Discard()), http.MethodGet, PathTrip, "")
		resp := decode[Status](t, w)
		if resp.State != "tracking" || resp.Trip != nil || resp.LastStatus == "" {
			t.Errorf("unexpected status %+v", resp)
		}
	})
}

func TestServer_position(t *testing.T) {
	t.Run("position is returned", func(t *testing.T) {
		ctrl := &mockController{position: geobus.Fix{Lat: -26.99, Lon: -48.63, Source: "gpsd"}}
		w := serve(t, New(ctrl, nil, logger.Discard()), http.MethodGet, PathPosition, "")
		if fix := decode[geobus.Fix](t, w); fix.Lat != -26.99 || fix.Source != "gpsd" {
			t.Errorf("unexpected fix %+v", fix)
		}
	})

	tests := []struct {
		kind geobus.ErrorKind
		want int
	}{
		{geobus.PermissionDenied, http.StatusForbidden},
		{geobus.PositionUnavailable, http.StatusServiceUnavailable},
		{geobus.Timeout, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			ctrl := &mockController{positionErr: geobus.NewGeoError(tc.kind, "gpsd", nil)}
			w := serve(t, New(ctrl, nil, logger.Discard()), http.MethodGet, PathPosition, "")
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestServer_healthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("fuelwatch_trips_started_total 0\n"))
	})
	srv := New(&mockController{state: "idle"}, metrics, logger.Discard())

	w := serve(t, srv, http.MethodGet, PathHealth, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"healthy"`) {
		t.Errorf("unexpected health response %d: %s", w.Code, w.Body)
	}
	w = serve(t, srv, http.MethodGet, PathMetrics, "")
	if !strings.Contains(w.Body.String(), "fuelwatch_trips_started_total") {
		t.Errorf("unexpected metrics response: %s", w.Body)
	}

	w = serve(t, New(&mockController{}, nil, logger.Discard()), http.MethodGet, PathMetrics, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected metrics to be disabled, got %d", w.Code)
	}
}

func TestServer_Run(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()

	ctx, cancel := context.WithCancel(t.Context())
	errs := make(chan error, 1)
	go func() {
		errs <- New(&mockController{state: "idle"}, nil, logger.Discard()).Run(ctx, addr)
	}()

	var resp *http.Response
	for range 50 {
		resp, err = http.Get("http://" + addr + PathHealth)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server did not come up: %s", err)
	}
	_ = resp.Body.Close()

	cancel()
	if err = <-errs; err != nil {
		t.Errorf("expected clean shutdown, got %s", err)
	}
}
