// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package owntracks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/vartype"
)

const (
	name = "owntracks"

	// reportBuffer is the number of location messages held back while the subscriber is busy.
	reportBuffer      = 16
	connectTimeout    = time.Second * 10
	disconnectQuiesce = 250
)

var ErrNotLocation = errors.New("message is not an owntracks location")

// Config holds the MQTT connection settings.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// Provider subscribes to OwnTracks location messages published by a phone app via MQTT.
type Provider struct {
	name   string
	config Config

	// connectFn connects to the broker and subscribes to the location topic. onMessage is
	// called for every received payload, onLost once the connection is gone.
	connectFn func(ctx context.Context, onMessage func([]byte), onLost func(error)) (func(), error)
}

// location is the subset of the OwnTracks location payload we care about.
type location struct {
	Type      string   `json:"_type"`
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Accuracy  *float64 `json:"acc"`
	Velocity  *float64 `json:"vel"`
	Course    *float64 `json:"cog"`
	Timestamp int64    `json:"tst"`
}

// New returns an OwnTracks Provider.
func New(config Config) *Provider {
	provider := &Provider{
		name:   name,
		config: config,
	}
	provider.connectFn = provider.connect
	return provider
}

// Name returns the name of the provider.
func (p *Provider) Name() string {
	return p.name
}

// Stream connects to the broker and emits a fix for every location message.
func (p *Provider) Stream(ctx context.Context, opts geobus.Options) <-chan geobus.Event {
	out := make(chan geobus.Event)

	// paho invokes the handlers on its own goroutines, they only write into these never-closed
	// channels.
	reports := make(chan geobus.Fix, reportBuffer)
	lost := make(chan error, 1)
	onMessage := func(payload []byte) {
		fix, err := parseLocation(payload)
		if err != nil {
			return
		}
		if opts.HighAccuracy && fix.Accuracy.IsSet() && fix.Accuracy.Value() > geobus.AccuracyHigh {
			return
		}
		select {
		case reports <- fix:
		default:
		}
	}
	onLost := func(err error) {
		select {
		case lost <- err:
		default:
		}
	}

	go func() {
		defer close(out)

		disconnect, err := p.connectFn(ctx, onMessage, onLost)
		if err != nil {
			kind := geobus.PositionUnavailable
			if errors.Is(err, packets.ErrorRefusedNotAuthorised) ||
				errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) {
				kind = geobus.PermissionDenied
			}
			p.emit(ctx, out, geobus.Event{Err: geobus.NewGeoError(kind, p.name, err)})
			return
		}
		defer disconnect()

		state := geobus.FixState{}
		for {
			select {
			case <-ctx.Done():
				return
			case err = <-lost:
				p.emit(ctx, out, geobus.Event{Err: geobus.NewGeoError(geobus.PositionUnavailable, p.name,
					fmt.Errorf("connection to MQTT broker lost: %w", err))})
				return
			case fix := <-reports:
				// retained messages are re-delivered on every subscribe
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

func (p *Provider) connect(ctx context.Context, onMessage func([]byte), onLost func(error)) (func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker(p.config.Broker).
		SetClientID(p.config.ClientID).
		SetAutoReconnect(false).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) { onLost(err) })
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username).SetPassword(p.config.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if err := waitToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %q: %w", p.config.Broker, err)
	}

	token = client.Subscribe(p.config.Topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		onMessage(msg.Payload())
	})
	if err := waitToken(ctx, token); err != nil {
		client.Disconnect(disconnectQuiesce)
		return nil, fmt.Errorf("failed to subscribe to %q: %w", p.config.Topic, err)
	}

	return func() {
		client.Unsubscribe(p.config.Topic)
		client.Disconnect(disconnectQuiesce)
	}, nil
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}

// parseLocation converts an OwnTracks location payload into a fix. Velocity is reported by
// the app in km/h.
func parseLocation(payload []byte) (geobus.Fix, error) {
	var loc location
	if err := json.Unmarshal(payload, &loc); err != nil {
		return geobus.Fix{}, fmt.Errorf("failed to decode payload: %w", err)
	}
	if loc.Type != "location" {
		return geobus.Fix{}, ErrNotLocation
	}

	fix := geobus.Fix{
		Lat:    loc.Lat,
		Lon:    loc.Lon,
		Source: name,
	}
	if loc.Timestamp > 0 {
		fix.Timestamp = time.Unix(loc.Timestamp, 0)
	}
	if loc.Accuracy != nil {
		fix.Accuracy = vartype.NewVariable(*loc.Accuracy)
	}
	if loc.Velocity != nil {
		fix.Speed = vartype.NewVariable(*loc.Velocity / 3.6)
	}
	if loc.Course != nil {
		fix.Heading = vartype.NewVariable(*loc.Course)
	}
	if !fix.Valid() {
		return geobus.Fix{}, fmt.Errorf("invalid coordinates %f,%f", fix.Lat, fix.Lon)
	}
	return fix, nil
}
