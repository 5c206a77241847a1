// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	dbusDestination = "org.freedesktop.Notifications"
	dbusPath        = "/org/freedesktop/Notifications"
	dbusMethod      = dbusDestination + ".Notify"

	AppName       = "fuelwatch"
	AppIcon       = "dialog-information"
	expireTimeout = 10 * time.Second
)

type busObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...any) *dbus.Call
}

// DBus shows desktop notifications through the freedesktop notification service on the
// session bus.
type DBus struct {
	conn *dbus.Conn
	obj  busObject
}

// NewDBus connects to the session bus.
func NewDBus() (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &DBus{
		conn: conn,
		obj:  conn.Object(dbusDestination, dbusPath),
	}, nil
}

func (d *DBus) Present(ctx context.Context, title, body string) error {
	call := d.obj.CallWithContext(ctx, dbusMethod, 0,
		AppName,
		uint32(0),
		AppIcon,
		title,
		body,
		[]string{},
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(1))},
		int32(expireTimeout.Milliseconds()),
	)
	if call.Err != nil {
		return fmt.Errorf("failed to call %s: %w", dbusMethod, call.Err)
	}
	return nil
}

func (d *DBus) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
