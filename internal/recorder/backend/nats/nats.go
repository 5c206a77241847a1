// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package nats publishes trip events to a NATS subject per event kind and trip.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/wneessen/fuelwatch/internal/logger"
	"github.com/wneessen/fuelwatch/internal/recorder"
)

const name = "nats"

type publisher interface {
	Publish(subj string, data []byte) error
}

type Backend struct {
	pub     publisher
	prefix  string
	closeFn func()
}

// Open connects to the NATS server at url. Events are published to
// <prefix>.<kind>.<trip id>.
func Open(url, prefix string, log *logger.Logger) (*Backend, error) {
	conn, err := nats.Connect(url,
		nats.Name("fuelwatch"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logger.Err(err))
				return
			}
			log.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.Info("nats reconnected", "url", conn.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Debug("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	backend := newBackend(conn, prefix)
	backend.closeFn = func() {
		if err := conn.Drain(); err != nil {
			conn.Close()
		}
	}
	return backend, nil
}

func newBackend(pub publisher, prefix string) *Backend {
	return &Backend{pub: pub, prefix: subjectToken(prefix)}
}

func (b *Backend) Name() string {
	return name
}

// Write publishes ev. Publishing only buffers the message in the client, so delivery
// errors surface as disconnects instead of failed writes.
func (b *Backend) Write(_ context.Context, ev recorder.Event) error {
	if ev.Kind == "" || ev.TripID == "" {
		return fmt.Errorf("%w: event without kind or trip", recorder.ErrRejected)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: failed to encode event: %w", recorder.ErrRejected, err)
	}
	if err = b.pub.Publish(b.subject(ev), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (b *Backend) Close() error {
	if b.closeFn != nil {
		b.closeFn()
	}
	return nil
}

func (b *Backend) subject(ev recorder.Event) string {
	return b.prefix + "." + subjectToken(string(ev.Kind)) + "." + subjectToken(ev.TripID)
}

// subjectToken turns s into a single subject token. Tokens must not contain whitespace,
// dots or wildcards.
func subjectToken(s string) string {
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(strings.TrimSpace(s))
	if s == "" {
		return "_"
	}
	return s
}
