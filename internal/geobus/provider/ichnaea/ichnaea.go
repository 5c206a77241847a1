// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdhttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/http"
	"github.com/wneessen/fuelwatch/internal/vartype"
)

const (
	apiEndpoint   = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout = time.Second * 5
	wifiScanTime  = time.Minute * 2
	name          = "ichnaea"

	// DefaultInterval is the time between two location requests.
	DefaultInterval = time.Minute
)

var ErrNotFound = errors.New("no location found for the submitted networks")

// accessPointScanner lists the WiFi access points in reach.
type accessPointScanner interface {
	Interfaces() ([]*wifi.Interface, error)
	AccessPoints(ifi *wifi.Interface) ([]*wifi.BSS, error)
}

// Provider locates the device through an Ichnaea compatible geolocation API using the WiFi
// access points in reach. Without WiFi support the API falls back to the IP address, which
// rarely satisfies a high accuracy request.
type Provider struct {
	name     string
	endpoint string
	http     *http.Client
	wlan     accessPointScanner
	period   time.Duration
	locateFn func(ctx context.Context) (geobus.Fix, error)

	apLock sync.RWMutex
	aps    []WirelessNetwork
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

// New returns an Ichnaea Provider that requests a location every interval.
func New(client *http.Client, interval time.Duration) (*Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	provider := &Provider{
		name:     name,
		endpoint: apiEndpoint,
		http:     client,
		period:   interval,
	}
	if wlan, err := wifi.New(); err == nil {
		provider.wlan = wlan
	}
	provider.locateFn = provider.locate
	return provider, nil
}

// Name returns the name of the provider.
func (p *Provider) Name() string {
	return p.name
}

// Interval returns the time between two location requests.
func (p *Provider) Interval() time.Duration {
	return p.period
}

// Stream requests a location right away and then once per interval. Failed requests are
// skipped, the sampling session timeout decides when to give up.
func (p *Provider) Stream(ctx context.Context, opts geobus.Options) <-chan geobus.Event {
	out := make(chan geobus.Event)
	if p.wlan != nil {
		go p.monitorWifiAccessPoints(ctx)
	}
	go func() {
		defer close(out)
		firstRun := true

		for {
			if !firstRun && !geobus.SleepOrDone(ctx, p.period) {
				return
			}
			firstRun = false

			fix, err := p.locateFn(ctx)
			if err != nil {
				continue
			}
			if opts.HighAccuracy && fix.Accuracy.ValueOr(0) > geobus.AccuracyHigh {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- geobus.Event{Fix: fix}:
			}
		}
	}()
	return out
}

func (p *Provider) monitorWifiAccessPoints(ctx context.Context) {
	firstRun := true
	for {
		if !firstRun && !geobus.SleepOrDone(ctx, wifiScanTime) {
			return
		}
		firstRun = false

		list, err := p.wifiAccessPoints()
		if err != nil {
			continue
		}
		p.apLock.Lock()
		p.aps = list
		p.apLock.Unlock()
	}
}

func (p *Provider) wifiAccessPoints() ([]WirelessNetwork, error) {
	var checkIfaces []*wifi.Interface
	var list []WirelessNetwork

	ifaces, err := p.wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		checkIfaces = append(checkIfaces, iface)
	}

	for _, iface := range checkIfaces {
		aps, err := p.wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			// networks ending in _nomap opted out of location services
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}

	return list, nil
}

func (p *Provider) locate(ctx context.Context) (geobus.Fix, error) {
	p.apLock.RLock()
	wifiList := p.aps
	p.apLock.RUnlock()

	type request struct {
		ConsiderIP   bool              `json:"considerIp"`
		Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
	}
	bodyBuffer := bytes.NewBuffer(nil)
	if err := json.NewEncoder(bodyBuffer).Encode(request{ConsiderIP: true, Accesspoints: wifiList}); err != nil {
		return geobus.Fix{}, fmt.Errorf("failed to encode wifi list to JSON: %w", err)
	}

	result := new(APIResult)
	code, err := p.http.PostWithTimeout(ctx, p.endpoint, result, bodyBuffer,
		map[string]string{"Content-Type": "application/json"}, lookupTimeout)
	switch {
	case err != nil:
		return geobus.Fix{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	case code == stdhttp.StatusNotFound:
		return geobus.Fix{}, ErrNotFound
	case code != stdhttp.StatusOK:
		return geobus.Fix{}, fmt.Errorf("geolocation API returned unexpected status %d", code)
	}

	return geobus.Fix{
		Lat:       geobus.Truncate(result.Location.Latitude, geobus.TruncPrecision),
		Lon:       geobus.Truncate(result.Location.Longitude, geobus.TruncPrecision),
		Accuracy:  vartype.NewVariable(geobus.Truncate(result.Accuracy, geobus.TruncPrecision)),
		Timestamp: time.Now(),
		Source:    p.name,
	}, nil
}
