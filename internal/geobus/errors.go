// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a sampling session ended.
type ErrorKind int

const (
	PositionUnavailable ErrorKind = iota
	PermissionDenied
	Timeout
)

var (
	ErrPermissionDenied    = errors.New("location access denied")
	ErrPositionUnavailable = errors.New("location unavailable")
	ErrTimeout             = errors.New("timed out while getting the location")

	ErrNoProvider = errors.New("no position provider configured")
)

func (k ErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "PermissionDenied"
	case Timeout:
		return "Timeout"
	default:
		return "PositionUnavailable"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case PermissionDenied:
		return ErrPermissionDenied
	case Timeout:
		return ErrTimeout
	default:
		return ErrPositionUnavailable
	}
}

// GeoError is the terminal error of a sampling session. It matches the sentinel of its kind
// with errors.Is.
type GeoError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

// NewGeoError returns a GeoError of the given kind.
func NewGeoError(kind ErrorKind, provider string, err error) *GeoError {
	return &GeoError{Kind: kind, Provider: provider, Err: err}
}

func (e *GeoError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind.sentinel())
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GeoError) Unwrap() error {
	return e.Err
}

func (e *GeoError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Retryable reports whether restarting the session may help. A denied permission needs the
// user to act first.
func (e *GeoError) Retryable() bool {
	return e.Kind != PermissionDenied
}
