// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package httpapi records trip events with the trip REST API of the fuel price service.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/wneessen/fuelwatch/internal/http"
	"github.com/wneessen/fuelwatch/internal/recorder"
	"github.com/wneessen/fuelwatch/internal/tracker"
)

const (
	name          = "http"
	apiTimeout    = time.Second * 10
	eventsPath    = "/events"
	activeTripURL = "/trips/active"
)

type Backend struct {
	http     *http.Client
	endpoint string
	apiKey   string
}

func New(client *http.Client, endpoint, apiKey string) *Backend {
	return &Backend{
		http:     client,
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
	}
}

func (b *Backend) Name() string {
	return name
}

func (b *Backend) Write(ctx context.Context, ev recorder.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: failed to encode event: %w", recorder.ErrRejected, err)
	}

	code, err := b.http.PostWithTimeout(ctx, b.endpoint+eventsPath, nil, bytes.NewReader(body), b.headers(), apiTimeout)
	if err != nil {
		return fmt.Errorf("failed to post event: %w", err)
	}
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == stdhttp.StatusConflict:
		// already recorded
		return nil
	case code == stdhttp.StatusRequestTimeout, code == stdhttp.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("trip API returned status %d", code)
	default:
		return fmt.Errorf("%w: trip API returned status %d", recorder.ErrRejected, code)
	}
}

// ActiveTrip returns the trip the API still considers active.
func (b *Backend) ActiveTrip(ctx context.Context) (tracker.Trip, bool, error) {
	var trip tracker.Trip
	code, err := b.http.GetWithTimeout(ctx, b.endpoint+activeTripURL, &trip, nil, b.headers(), apiTimeout)
	if code == stdhttp.StatusNotFound || code == stdhttp.StatusNoContent {
		return tracker.Trip{}, false, nil
	}
	if err != nil {
		return tracker.Trip{}, false, fmt.Errorf("failed to fetch active trip: %w", err)
	}
	if code != stdhttp.StatusOK {
		return tracker.Trip{}, false, fmt.Errorf("trip API returned status %d", code)
	}
	if trip.ID == "" {
		return tracker.Trip{}, false, nil
	}
	return trip, true, nil
}

func (b *Backend) Close() error {
	return nil
}

func (b *Backend) headers() map[string]string {
	headers := map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}
	if b.apiKey != "" {
		headers["Authorization"] = "Bearer " + b.apiKey
	}
	return headers
}
