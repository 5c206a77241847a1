// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/fuelwatch/internal/tracker"
)

// i18nVars maps the lower-cased keys usable with the "loc" template function to their
// message IDs.
var i18nVars = map[string]localize.MsgID{
	"coupon":         "Coupon",
	"fuel":           "Fuel",
	"next check at":  "Next check at",
	"distance":       "Distance",
	"duration":       "Duration",
	"notifications":  "Notifications",
	"last status":    "Last status",
	"no active trip": "No active trip",
	"idle":           "Tracking disabled",
	"tracking":       "Tracking",
	"trip_active":    "Trip active",
	"gasoline":       "gasoline",
	"ethanol":        "ethanol",
	"diesel":         "diesel",
	"diesel_s10":     "diesel_s10",
	"gnv":            "gnv",
}

// StateIcons are shown in front of the status text.
var StateIcons = map[tracker.State]string{
	tracker.StateIdle:       "⛽",
	tracker.StateTracking:   "📡",
	tracker.StateTripActive: "🚗",
}

// StateClasses are used as the waybar CSS class of the status output.
var StateClasses = map[tracker.State]string{
	tracker.StateIdle:       "fuelwatch-idle",
	tracker.StateTracking:   "fuelwatch-tracking",
	tracker.StateTripActive: "fuelwatch-trip",
}

// statusMessages are the user facing texts for recoverable conditions.
var statusMessages = map[tracker.StatusKind]localize.MsgID{
	tracker.StatusLookupFailure:  "Price lookup failed.",
	tracker.StatusNoStation:      "No fuel station found nearby.",
	tracker.StatusPresentFailure: "Notification could not be shown.",
	tracker.StatusPersistenceLag: "Trip data could not be saved yet.",
}
