// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package presenter turns trips, stations and statuses into the texts shown to the user.
package presenter

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/vorlif/humanize"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wneessen/fuelwatch/internal/config"
	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/pricelookup"
	"github.com/wneessen/fuelwatch/internal/tracker"
)

// StatusContext is the data the status templates are rendered with.
type StatusContext struct {
	State     string
	StateIcon string
	Active    bool
	Trip      tracker.Trip

	NextNotificationAtKm float64
	LastStatus           string
	UpdateTime           time.Time
}

// NotificationContext is the data the notification templates are rendered with.
type NotificationContext struct {
	Trip    tracker.Trip
	Station pricelookup.Station
	Event   tracker.NotificationEvent
}

type Presenter struct {
	TextTemplate    *template.Template
	TooltipTemplate *template.Template
	TitleTemplate   *template.Template
	BodyTemplate    *template.Template

	localizer      *spreak.Localizer
	humanizer      *humanize.Humanizer
	printer        *message.Printer
	currencySymbol string
	maxBodyWidth   int
	now            func() time.Time
}

func New(conf *config.Config, loc *spreak.Localizer, tag language.Tag) (*Presenter, error) {
	collection, err := humanize.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}
	pres := &Presenter{
		localizer:      loc,
		humanizer:      collection.CreateHumanizer(tag),
		printer:        message.NewPrinter(tag),
		currencySymbol: conf.Notify.Currency,
		maxBodyWidth:   conf.Notify.MaxBodyWidth,
		now:            time.Now,
	}

	templates := []struct {
		name   string
		text   string
		target **template.Template
	}{
		{"text", conf.Templates.Text, &pres.TextTemplate},
		{"tooltip", conf.Templates.Tooltip, &pres.TooltipTemplate},
		{"title", conf.Notify.Title, &pres.TitleTemplate},
		{"body", conf.Notify.Body, &pres.BodyTemplate},
	}
	for _, tpl := range templates {
		parsed, err := template.New(tpl.name).Funcs(pres.templateFuncMap()).Parse(tpl.text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", tpl.name, err)
		}
		*tpl.target = parsed
	}

	// Render once with sample data so broken templates fail at startup
	if _, err = pres.Render(pres.BuildStatusContext(tracker.StateTripActive, sampleTrip, true, nil)); err != nil {
		return nil, err
	}
	if _, _, err = pres.RenderNotification(sampleNotification); err != nil {
		return nil, err
	}

	return pres, nil
}

// BuildStatusContext returns the status context for the given machine state. last is the most
// recent status reported by the machine and may be nil.
func (p *Presenter) BuildStatusContext(state tracker.State, trip tracker.Trip, active bool,
	last *tracker.Status,
) StatusContext {
	ctx := StatusContext{
		State:      state.String(),
		StateIcon:  StateIcons[state],
		Active:     active,
		UpdateTime: p.now(),
	}
	if active {
		ctx.Trip = trip
		ctx.NextNotificationAtKm = trip.NextNotificationAtKm()
	}
	if last != nil {
		ctx.LastStatus = p.StatusMessage(*last)
	}
	return ctx
}

// Render renders the status templates. The result holds the "text" and "tooltip" outputs.
func (p *Presenter) Render(ctx StatusContext) (map[string]string, error) {
	output := make(map[string]string)
	templates := map[string]*template.Template{
		"text":    p.TextTemplate,
		"tooltip": p.TooltipTemplate,
	}
	for name, tpl := range templates {
		buf := bytes.NewBuffer(nil)
		if err := tpl.Execute(buf, ctx); err != nil {
			return nil, fmt.Errorf("failed to render %s template: %w", name, err)
		}
		output[name] = buf.String()
	}
	return output, nil
}

// RenderNotification returns the title and body of a station notification. Body lines are
// cut to the configured maximum width.
func (p *Presenter) RenderNotification(n tracker.Notification) (string, string, error) {
	ctx := NotificationContext{Trip: n.Trip, Station: n.Station, Event: n.Event}

	titleBuf := bytes.NewBuffer(nil)
	if err := p.TitleTemplate.Execute(titleBuf, ctx); err != nil {
		return "", "", fmt.Errorf("failed to render title template: %w", err)
	}
	bodyBuf := bytes.NewBuffer(nil)
	if err := p.BodyTemplate.Execute(bodyBuf, ctx); err != nil {
		return "", "", fmt.Errorf("failed to render body template: %w", err)
	}

	title := p.localizer.Get(strings.TrimSpace(titleBuf.String()))
	return title, truncateLines(bodyBuf.String(), p.maxBodyWidth), nil
}

// RenderSummary returns the title and body of the message shown when a trip ends.
func (p *Presenter) RenderSummary(s tracker.Summary) (string, string) {
	title := p.localizer.Get("Trip finished")
	if s.Abnormal {
		title = p.localizer.Get("Trip ended unexpectedly")
	}

	var body strings.Builder
	if s.Origin != "" || s.Destination != "" {
		body.WriteString(strings.TrimSpace(s.Origin + " → " + s.Destination))
		body.WriteString("\n")
	}
	body.WriteString(fmt.Sprintf("%s: %s km\n", p.loc("distance"), p.printer.Sprintf("%.2f", s.DistanceTraveledKm)))
	body.WriteString(fmt.Sprintf("%s: %s\n", p.loc("duration"), p.duration(s.Duration)))
	body.WriteString(fmt.Sprintf("%s: %d", p.loc("notifications"), s.Notifications))

	return title, truncateLines(body.String(), p.maxBodyWidth)
}

// StatusMessage returns the localized user facing text of a status.
func (p *Presenter) StatusMessage(st tracker.Status) string {
	if st.Kind == tracker.StatusGeoError {
		switch {
		case errors.Is(st.Err, geobus.ErrPermissionDenied):
			return p.localizer.Get("Location access denied. Please enable location permissions.")
		case errors.Is(st.Err, geobus.ErrTimeout):
			return p.localizer.Get("Timed out while getting the location.")
		default:
			return p.localizer.Get("Location unavailable.")
		}
	}
	if st.Kind == tracker.StatusNotified && st.Station != nil {
		return st.Station.Name + " " + p.currency(st.Station.Price)
	}
	if msg, ok := statusMessages[st.Kind]; ok {
		return p.localizer.Get(msg)
	}
	return st.Kind.String()
}

var (
	sampleTrip = tracker.Trip{
		ID:                     "00000000-0000-0000-0000-000000000000",
		Origin:                 "Itajaí",
		Destination:            "São Paulo",
		FuelType:               "gasoline",
		NotificationIntervalKm: 100,
		DistanceTraveledKm:     123.45,
		LastNotifiedAtKm:       100,
		Status:                 tracker.TripStatusActive,
	}
	sampleNotification = tracker.Notification{
		Trip: sampleTrip,
		Station: pricelookup.Station{
			ID:         "1",
			Name:       "Posto Sample",
			Address:    "Rodovia BR-101, Itajaí",
			DistanceKm: 1.2,
			Price:      5.89,
			Coupon:     "Sample coupon",
		},
		Event: tracker.NotificationEvent{TriggeredAtKm: 100},
	}
)
