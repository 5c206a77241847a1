// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/fuelwatch/internal/api"
	"github.com/wneessen/fuelwatch/internal/http"
	"github.com/wneessen/fuelwatch/internal/logger"
)

const requestTimeout = time.Second * 15

// controlClient talks to the control API of a running daemon.
type controlClient struct {
	http *http.Client
	base string
}

func newControlClient(addr string) *controlClient {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &controlClient{http: http.New(logger.New(slog.LevelError)), base: base}
}

// call performs the request and decodes a successful response into target. Error responses
// of the API are returned as errors.
func (c *controlClient) call(ctx context.Context, method, path string, payload, target any) error {
	var body io.Reader
	headers := map[string]string{"Accept": "application/json"}
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
		headers["Content-Type"] = "application/json"
	}

	var raw json.RawMessage
	status, err := c.http.Do(ctx, method, c.base+path, &raw, nil, body, headers, requestTimeout)
	if err != nil {
		return fmt.Errorf("failed to reach fuelwatch at %s: %w", c.base, err)
	}
	if status >= 400 {
		var apiErr api.ErrorResponse
		if err = json.Unmarshal(raw, &apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("fuelwatch responded with status %d", status)
		}
		return fmt.Errorf("fuelwatch responded with status %d: %s", status, apiErr.Error)
	}
	if target == nil || len(raw) == 0 {
		return nil
	}
	if err = json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
