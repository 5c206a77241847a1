// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

package main

import (
	nethttp "net/http"

	"github.com/spf13/cobra"

	"github.com/wneessen/fuelwatch/internal/api"
	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/tracker"
)

var tripParams tracker.Params

var trackingCmd = &cobra.Command{
	Use:   "tracking",
	Short: "Enable or disable position tracking",
}

var trackingOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Enable position tracking",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var resp api.TrackingResponse
		if err := newControlClient(apiAddr).call(cmd.Context(), nethttp.MethodPost, api.PathTracking, nil,
			&resp); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var trackingOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Disable position tracking, aborting an active trip",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var resp api.TrackingResponse
		if err := newControlClient(apiAddr).call(cmd.Context(), nethttp.MethodDelete, api.PathTracking, nil,
			&resp); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var tripCmd = &cobra.Command{
	Use:   "trip",
	Short: "Start, stop or inspect the active trip",
}

var tripStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a trip",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var trip tracker.Trip
		if err := newControlClient(apiAddr).call(cmd.Context(), nethttp.MethodPost, api.PathTrip, tripParams,
			&trip); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), trip)
	},
}

var tripStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the active trip and print its summary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var summary tracker.Summary
		if err := newControlClient(apiAddr).call(cmd.Context(), nethttp.MethodDelete, api.PathTrip, nil,
			&summary); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), summary)
	},
}

var tripStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the tracking state and the active trip",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var status api.Status
		if err := newControlClient(apiAddr).call(cmd.Context(), nethttp.MethodGet, api.PathTrip, nil,
			&status); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), status)
	},
}

var positionCmd = &cobra.Command{
	Use:   "position",
	Short: "Print the current position",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var fix geobus.Fix
		if err := newControlClient(apiAddr).call(cmd.Context(), nethttp.MethodGet, api.PathPosition, nil,
			&fix); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), fix)
	},
}

func init() {
	tripStartCmd.Flags().StringVar(&tripParams.Origin, "origin", "", "origin of the trip, resolved from the first fix if empty")
	tripStartCmd.Flags().StringVar(&tripParams.Destination, "destination", "", "destination of the trip")
	tripStartCmd.Flags().StringVar(&tripParams.FuelType, "fuel-type", "", "fuel type to look up, defaults to the configured one")
	tripStartCmd.Flags().Float64Var(&tripParams.NotificationIntervalKm, "interval", 0,
		"distance in km between price lookups, defaults to the configured one")

	trackingCmd.AddCommand(trackingOnCmd, trackingOffCmd)
	tripCmd.AddCommand(tripStartCmd, tripStopCmd, tripStatusCmd)
	rootCmd.AddCommand(trackingCmd, tripCmd, positionCmd)
}
