// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package gpspoll implements a minimal one-shot gpsd client. It answers single position
// requests without keeping a watch session open.
package gpspoll

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"time"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/vartype"
)

const (
	fallbackAccuracy3DFix = 10  // ~10 m typical consumer GPS in open sky
	fallbackAccuracy2DFix = 25  // worse than 3D, but still accurate enough
	fallbackAccuracyNoFix = 1e6 // effectively unusable
	watchTimeout          = time.Second * 2
	name                  = "gpspoll"
)

var ErrNoTPV = errors.New("no TPV response received from gpsd")

// Client is a minimal GPSd client
type Client struct {
	Addr string
}

// Fix represents a single GPS fix from gpsd.
type Fix struct {
	Lat   float64
	Lon   float64
	Acc   float64
	Speed float64
	Track float64
	Mode  int
	Time  time.Time
}

// tpvResponse matches the subset of gpsd's TPV report we care about.
type tpvResponse struct {
	Class string    `json:"class"`
	Lat   float64   `json:"lat"`
	Lon   float64   `json:"lon"`
	Mode  int       `json:"mode"`
	Time  time.Time `json:"time"`
	Speed float64   `json:"speed"`
	Track float64   `json:"track"`
	Epx   float64   `json:"epx"`
	Epy   float64   `json:"epy"`
	Eph   float64   `json:"eph"`
}

// New constructs a new Client for the given host and port.
func New(host, port string) *Client {
	return &Client{
		Addr: net.JoinHostPort(host, port),
	}
}

// Poll connects to gpsd, enables a WATCH and returns the first TPV report. The connection is
// closed before returning.
func (c *Client) Poll(ctx context.Context) (Fix, error) {
	var zero Fix

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return zero, fmt.Errorf("gpspoll: dial gpsd: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	// Respect context deadline if present, otherwise we add a safety net so we don't hang
	// forever if ctx has no deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(watchTimeout))
	}

	if _, err = fmt.Fprint(conn, `?WATCH={"enable":true,"json":true}`+"\n"); err != nil {
		return zero, fmt.Errorf("gpspoll: write WATCH: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var resp tpvResponse

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		if err = json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		if resp.Class != "TPV" {
			continue
		}

		return Fix{
			Lat:   resp.Lat,
			Lon:   resp.Lon,
			Acc:   HorizontalAccuracy(resp.Mode, resp.Eph, resp.Epx, resp.Epy),
			Speed: resp.Speed,
			Track: resp.Track,
			Mode:  resp.Mode,
			Time:  resp.Time,
		}, nil
	}

	if err = scanner.Err(); err != nil {
		return zero, fmt.Errorf("failed to scan GPSd response: %w", err)
	}

	return zero, ErrNoTPV
}

// CurrentPosition polls gpsd once and converts the answer into a geobus.Fix. Failures are
// reported as *geobus.GeoError.
func (c *Client) CurrentPosition(ctx context.Context) (geobus.Fix, error) {
	fix, err := c.Poll(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return geobus.Fix{}, geobus.NewGeoError(geobus.Timeout, name, err)
	case err != nil:
		return geobus.Fix{}, geobus.NewGeoError(geobus.PositionUnavailable, name, err)
	case !fix.Has2DFix():
		return geobus.Fix{}, geobus.NewGeoError(geobus.PositionUnavailable, name,
			fmt.Errorf("gpsd reports no fix (mode %d)", fix.Mode))
	}

	return geobus.Fix{
		Lat:       fix.Lat,
		Lon:       fix.Lon,
		Accuracy:  vartype.NewVariable(fix.Acc),
		Speed:     vartype.NewVariable(fix.Speed),
		Heading:   vartype.NewVariable(fix.Track),
		Timestamp: fix.Time,
		Source:    name,
	}, nil
}

// Has2DFix reports whether the fix has at least a 2D fix.
func (f Fix) Has2DFix() bool {
	return f.Mode >= 2
}

// HorizontalAccuracy derives the horizontal accuracy in meters from the error estimates of a
// TPV report, falling back to typical values for the fix mode.
func HorizontalAccuracy(mode int, eph, epx, epy float64) float64 {
	switch {
	case eph > 0:
		return eph
	case epx > 0 && epy > 0:
		return math.Hypot(epx, epy)
	}
	switch mode {
	case 3:
		return fallbackAccuracy3DFix
	case 2:
		return fallbackAccuracy2DFix
	default:
		return fallbackAccuracyNoFix
	}
}
