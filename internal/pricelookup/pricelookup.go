// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package pricelookup asks the fuel price backend for the cheapest station near a position.
package pricelookup

import (
	"context"
	"errors"
)

var (
	// ErrNetwork is returned when the backend could not be reached.
	ErrNetwork = errors.New("price lookup: network error")
	// ErrTimeout is returned when the backend did not answer in time.
	ErrTimeout = errors.New("price lookup: timeout")
	// ErrBadResponse is returned when the backend answered with an error or an unreadable body.
	ErrBadResponse = errors.New("price lookup: bad response")
)

// Request describes a lookup around a position.
type Request struct {
	Lat      float64
	Lon      float64
	FuelType string
	RadiusKm float64
}

// Station is a fuel station recommended by the backend.
type Station struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Brand      string  `json:"brand,omitempty"`
	Address    string  `json:"address,omitempty"`
	DistanceKm float64 `json:"distance_km"`
	Price      float64 `json:"price"`
	Coupon     string  `json:"coupon,omitempty"`
}

// Result is the answer of a lookup. Found is false if no station matched.
type Result struct {
	Found   bool     `json:"found"`
	Station *Station `json:"station,omitempty"`
	// CacheHit is set if the result was served from the cache.
	CacheHit bool `json:"-"`
}

// Client looks up the cheapest station. "No station" is reported as a Result with Found set to
// false and a nil error. Failures wrap ErrNetwork, ErrTimeout or ErrBadResponse.
type Client interface {
	Name() string
	Cheapest(ctx context.Context, req Request) (Result, error)
}
