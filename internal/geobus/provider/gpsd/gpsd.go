// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/gpspoll"
	"github.com/wneessen/fuelwatch/internal/vartype"
)

const (
	name = "gpsd"

	// reportBuffer is the number of TPV reports held back while the subscriber is busy.
	reportBuffer = 8
)

// Provider streams fixes from a gpsd daemon.
type Provider struct {
	name string
	addr string

	// dialFn opens the gpsd session. The returned function starts the watch and returns a
	// channel that is signaled when the watch ends.
	dialFn func(addr string, filter func(*gpsd.TPVReport)) (func() chan bool, error)
}

// New returns a gpsd Provider for the given host and port.
func New(host string, port int) *Provider {
	return &Provider{
		name:   name,
		addr:   net.JoinHostPort(host, strconv.Itoa(port)),
		dialFn: dial,
	}
}

// Name returns the name of the provider.
func (p *Provider) Name() string {
	return p.name
}

// Stream connects to gpsd and emits a fix for every usable TPV report. A failed connection or
// a lost watch session ends the stream with a PositionUnavailable error.
func (p *Provider) Stream(ctx context.Context, opts geobus.Options) <-chan geobus.Event {
	out := make(chan geobus.Event)

	// gpsd filters run on the go-gpsd reader goroutine, which we cannot stop. They only ever
	// write into this never-closed buffer.
	reports := make(chan geobus.Fix, reportBuffer)
	filter := func(tpv *gpsd.TPVReport) {
		fix, ok := toFix(tpv, opts.HighAccuracy)
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
		case reports <- fix:
		default:
			// subscriber is lagging, drop the report
		}
	}

	go func() {
		defer close(out)

		watch, err := p.dialFn(p.addr, filter)
		if err != nil {
			p.emit(ctx, out, geobus.Event{Err: geobus.NewGeoError(geobus.PositionUnavailable, p.name,
				fmt.Errorf("failed to connect to gpsd at %q: %w", p.addr, err))})
			return
		}
		done := watch()

		state := geobus.FixState{}
		for {
			select {
			case <-ctx.Done():
				// go-gpsd has no Close(), the reader goroutine ends with the connection.
				return
			case <-done:
				p.emit(ctx, out, geobus.Event{Err: geobus.NewGeoError(geobus.PositionUnavailable, p.name,
					fmt.Errorf("gpsd watch session at %q ended", p.addr))})
				return
			case fix := <-reports:
				if !state.HasChanged(fix) {
					continue
				}
				state.Update(fix)
				if !p.emit(ctx, out, geobus.Event{Fix: fix}) {
					return
				}
			}
		}
	}()

	return out
}

func (p *Provider) emit(ctx context.Context, out chan<- geobus.Event, ev geobus.Event) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

// toFix converts a TPV report into a fix. Reports without the required fix mode are rejected.
func toFix(tpv *gpsd.TPVReport, highAccuracy bool) (geobus.Fix, bool) {
	if tpv == nil {
		return geobus.Fix{}, false
	}
	required := gpsd.Mode2D
	if highAccuracy {
		required = gpsd.Mode3D
	}
	if tpv.Mode < required {
		return geobus.Fix{}, false
	}

	fix := geobus.Fix{
		Lat:      tpv.Lat,
		Lon:      tpv.Lon,
		Accuracy: vartype.NewVariable(gpspoll.HorizontalAccuracy(int(tpv.Mode), 0, tpv.Epx, tpv.Epy)),
		Source:   name,
	}
	if tpv.Speed > 0 || tpv.Track > 0 {
		fix.Speed.Set(tpv.Speed)
		fix.Heading.Set(tpv.Track)
	}
	return fix, true
}

func dial(addr string, filter func(*gpsd.TPVReport)) (func() chan bool, error) {
	session, err := gpsd.Dial(addr)
	if err != nil {
		return nil, err
	}
	session.AddFilter("TPV", func(r interface{}) {
		tpv, ok := r.(*gpsd.TPVReport)
		if !ok {
			return
		}
		filter(tpv)
	})
	return session.Watch, nil
}
