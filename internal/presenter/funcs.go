// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"
)

func (p *Presenter) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":    p.timeFormat,
		"localizedTime": p.localizedTime,
		"floatFormat":   p.floatFormat,
		"currency":      p.currency,
		"duration":      p.duration,
		"fuelType":      p.fuelType,
		"emoji":         EmojiWithSpace,
		"loc":           p.loc,
		"lc":            strings.ToLower,
		"uc":            strings.ToUpper,
	}
}

func (p *Presenter) loc(val string) string {
	val = strings.ToLower(val)
	if raw, ok := i18nVars[val]; ok {
		return p.localizer.Get(raw)
	}
	return val
}

func (p *Presenter) fuelType(val string) string {
	return p.localizer.Get(strings.ToLower(val))
}

func (p *Presenter) localizedTime(val time.Time) string {
	return p.humanizer.FormatTime(val, humanize.TimeFormat)
}

func (p *Presenter) timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}

func (p *Presenter) floatFormat(val float64, precision int) string {
	pow := math.Pow(10, float64(precision))
	return fmt.Sprintf("%.*f", precision, math.Trunc(val*pow)/pow)
}

// currency formats a price per liter with the configured currency symbol and the number
// format of the configured locale.
func (p *Presenter) currency(val float64) string {
	return p.currencySymbol + " " + p.printer.Sprintf("%.2f", val)
}

// duration returns a human readable duration, e.g. "1 hour, 20 minutes".
func (p *Presenter) duration(val time.Duration) string {
	if val < time.Minute {
		return p.humanizer.TimeSince(p.now().Add(-time.Minute))
	}
	return p.humanizer.TimeSince(p.now().Add(-val))
}

// EmojiWithSpace pads an emoji so that it takes the space of two terminal cells plus one.
func EmojiWithSpace(emoji string) string {
	width := runewidth.StringWidth(emoji)
	return fmt.Sprintf("%s%s", emoji, strings.Repeat(" ", max(3-width, 1)))
}

// truncateLines cuts every line of s to at most width terminal cells.
func truncateLines(s string, width int) string {
	if width <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = runewidth.Truncate(line, width, "…")
	}
	return strings.Join(lines, "\n")
}
