// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"

	"github.com/wneessen/fuelwatch/internal/logger"
)

// Fallback presents through the native presenter if there is one and writes a boxed message
// to out when the native presenter is missing or fails.
type Fallback struct {
	native    Presenter
	out       io.Writer
	log       *logger.Logger
	presented func(Channel)

	mu sync.Mutex
}

// NewFallback returns a Fallback. native and presented may be nil.
func NewFallback(native Presenter, out io.Writer, log *logger.Logger, presented func(Channel)) *Fallback {
	if log == nil {
		log = logger.Discard()
	}
	if presented == nil {
		presented = func(Channel) {}
	}
	return &Fallback{native: native, out: out, log: log, presented: presented}
}

func (f *Fallback) Present(ctx context.Context, title, body string) error {
	if f.native != nil {
		err := f.native.Present(ctx, title, body)
		if err == nil {
			f.presented(ChannelNative)
			return nil
		}
		f.log.Warn("native notification failed, falling back", logger.Err(err), slog.String("title", title))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := io.WriteString(f.out, box(title, body)); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	f.presented(ChannelFallback)
	return nil
}

// box frames the title and body lines.
func box(title, body string) string {
	lines := []string{title}
	if body != "" {
		lines = append(lines, strings.Split(body, "\n")...)
	}
	width := 0
	for _, line := range lines {
		width = max(width, runewidth.StringWidth(line))
	}

	var buf strings.Builder
	rule := strings.Repeat("─", width+2)
	buf.WriteString("┌" + rule + "┐\n")
	for i, line := range lines {
		buf.WriteString("│ " + runewidth.FillRight(line, width) + " │\n")
		if i == 0 && len(lines) > 1 {
			buf.WriteString("├" + rule + "┤\n")
		}
	}
	buf.WriteString("└" + rule + "┘\n")
	return buf.String()
}
