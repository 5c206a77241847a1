// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package amqp publishes trip events to a durable fanout exchange.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wneessen/fuelwatch/internal/recorder"
)

const name = "amqp"

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool,
		msg amqp.Publishing) error
	Close() error
}

type Backend struct {
	ch       channel
	exchange string
	closeFn  func() error
}

// Open dials the broker and declares the exchange events are published to.
func Open(url, exchange string) (*Backend, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	if err = ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	backend := newBackend(ch, exchange)
	backend.closeFn = conn.Close
	return backend, nil
}

func newBackend(ch channel, exchange string) *Backend {
	return &Backend{ch: ch, exchange: exchange}
}

func (b *Backend) Name() string {
	return name
}

func (b *Backend) Write(ctx context.Context, ev recorder.Event) error {
	if ev.Kind == "" || ev.TripID == "" {
		return fmt.Errorf("%w: event without kind or trip", recorder.ErrRejected)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: failed to encode event: %w", recorder.ErrRejected, err)
	}
	err = b.ch.PublishWithContext(ctx, b.exchange, string(ev.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.At,
		Type:         string(ev.Kind),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (b *Backend) Close() error {
	err := b.ch.Close()
	if b.closeFn != nil {
		err = errors.Join(err, b.closeFn())
	}
	return err
}
