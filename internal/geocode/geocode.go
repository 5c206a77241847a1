// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geocode resolves coordinates into addresses. fuelwatch uses it to name the origin
// of a trip when the user did not give one.
package geocode

import (
	"context"
	"errors"
	"strings"
)

var ErrAddressNotFound = errors.New("no address found for coordinates")

type Address struct {
	AddressFound bool
	CacheHit     bool
	Latitude     float64
	Longitude    float64
	DisplayName  string
	Country      string
	State        string
	Municipality string
	CityDistrict string
	Postcode     string
	City         string
	Suburb       string
	Street       string
}

type Geocoder interface {
	Name() string
	Reverse(ctx context.Context, lat, lon float64) (Address, error)
}

// Label returns a short place name like "Itajaí, Santa Catarina".
func (a Address) Label() string {
	place := a.City
	if place == "" {
		place = a.Municipality
	}
	if place == "" {
		place = a.Suburb
	}
	switch {
	case place != "" && a.State != "":
		return place + ", " + a.State
	case place != "":
		return place
	}

	// fall back to the two most specific parts of the display name
	parts := strings.Split(a.DisplayName, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ", ")
}

// Labeler names positions with the help of a Geocoder.
type Labeler struct {
	coder Geocoder
}

func NewLabeler(coder Geocoder) *Labeler {
	return &Labeler{coder: coder}
}

// Label returns the short place name of the given position.
func (l *Labeler) Label(ctx context.Context, lat, lon float64) (string, error) {
	addr, err := l.coder.Reverse(ctx, lat, lon)
	if err != nil {
		return "", err
	}
	if !addr.AddressFound {
		return "", ErrAddressNotFound
	}
	return addr.Label(), nil
}
