// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package trackfile

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/fuelwatch/internal/geobus"
)

const name = "trackfile"

var ErrNoCoordinates = errors.New("no valid coordinates found in track file")

// Provider replays a recorded track from a file. Each line holds
// "lat,lon[,accuracy_m[,speed_mps[,heading_deg[,timestamp]]]]", lines starting with # are
// ignored. Lines are replayed with the spacing of their RFC3339 timestamps, or one per
// interval if those are missing. Once the end of the track is reached the last position is
// repeated.
//
// The replay position is kept across sampling sessions, so a restarted session continues
// where the previous one stopped.
type Provider struct {
	name   string
	path   string
	period time.Duration
	loadFn func() ([]geobus.Fix, error)

	mu     sync.Mutex
	cursor int
}

// New returns a Provider replaying the track file at path every interval.
func New(path string, interval time.Duration) *Provider {
	if interval <= 0 {
		interval = time.Second
	}
	provider := &Provider{
		name:   name,
		path:   path,
		period: interval,
	}
	provider.loadFn = provider.readFile
	return provider
}

// Name returns the name of the provider.
func (p *Provider) Name() string {
	return p.name
}

// Interval returns the replay interval.
func (p *Provider) Interval() time.Duration {
	return p.period
}

// Stream replays the track. The file is read once per session.
func (p *Provider) Stream(ctx context.Context, opts geobus.Options) <-chan geobus.Event {
	out := make(chan geobus.Event)
	go func() {
		defer close(out)

		track, err := p.loadFn()
		if err != nil {
			kind := geobus.PositionUnavailable
			if errors.Is(err, os.ErrPermission) {
				kind = geobus.PermissionDenied
			}
			p.emit(ctx, out, geobus.Event{Err: geobus.NewGeoError(kind, p.name, err)})
			return
		}

		var wait time.Duration
		for {
			if wait > 0 && !geobus.SleepOrDone(ctx, wait) {
				return
			}

			var fix geobus.Fix
			fix, wait = p.next(track)
			if opts.HighAccuracy && fix.Accuracy.IsSet() && fix.Accuracy.Value() > geobus.AccuracyHigh {
				continue
			}
			if !p.emit(ctx, out, geobus.Event{Fix: fix}) {
				return
			}
		}
	}()
	return out
}

// next returns the fix at the replay cursor, advances it and returns how long to wait before
// the following fix. Recorded timestamps are shifted so that the replay looks live.
func (p *Provider) next(track []geobus.Fix) (geobus.Fix, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.cursor
	if idx >= len(track) {
		idx = len(track) - 1
	} else {
		p.cursor++
	}
	fix := track[idx]

	wait := p.period
	if idx+1 < len(track) && !fix.Timestamp.IsZero() && !track[idx+1].Timestamp.IsZero() {
		if delta := track[idx+1].Timestamp.Sub(fix.Timestamp); delta > 0 {
			wait = delta
		}
	}

	fix.Timestamp = time.Now()
	fix.Source = p.name
	return fix, wait
}

func (p *Provider) emit(ctx context.Context, out chan<- geobus.Event, ev geobus.Event) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

// readFile reads and parses the track file at the configured path.
func (p *Provider) readFile() ([]geobus.Fix, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read track file %q: %w", p.path, err)
	}
	track, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse track file %q: %w", p.path, err)
	}
	return track, nil
}

// Parse parses track data. Malformed lines are skipped.
func Parse(data []byte) ([]geobus.Fix, error) {
	var track []geobus.Fix
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fix, err := parseLine(line)
		if err != nil {
			continue
		}
		track = append(track, fix)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(track) == 0 {
		return nil, ErrNoCoordinates
	}
	return track, nil
}

func parseLine(line string) (geobus.Fix, error) {
	var fix geobus.Fix
	fields := strings.Split(line, ",")
	if len(fields) < 2 || len(fields) > 6 {
		return fix, fmt.Errorf("unexpected number of fields: %d", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	var err error
	if fix.Lat, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return fix, fmt.Errorf("invalid latitude: %w", err)
	}
	if fix.Lon, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return fix, fmt.Errorf("invalid longitude: %w", err)
	}
	optional := []struct {
		idx int
		set func(float64)
	}{
		{2, fix.Accuracy.Set},
		{3, fix.Speed.Set},
		{4, fix.Heading.Set},
	}
	for _, o := range optional {
		if len(fields) <= o.idx || fields[o.idx] == "" {
			continue
		}
		val, err := strconv.ParseFloat(fields[o.idx], 64)
		if err != nil {
			return fix, fmt.Errorf("invalid value in field %d: %w", o.idx+1, err)
		}
		o.set(val)
	}
	if len(fields) == 6 && fields[5] != "" {
		if fix.Timestamp, err = time.Parse(time.RFC3339, fields[5]); err != nil {
			return fix, fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	if !fix.Valid() {
		return fix, errors.New("coordinates out of range")
	}
	return fix, nil
}
