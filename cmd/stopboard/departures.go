package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"stopboard.dev/gtfs"
)

var departuresCmd = &cobra.Command{
	Use:   "departures <stop_id>",
	Short: "Lists the next departures from a stop",
	Args:  cobra.ExactArgs(1),
	RunE:  departures,
}

var (
	count    int
	withLive bool
)

func init() {
	departuresCmd.Flags().IntVarP(&count, "count", "n", 5, "Number of departures to list")
	departuresCmd.Flags().BoolVarP(&withLive, "live", "l", false, "Include live vehicle status")
	rootCmd.AddCommand(departuresCmd)
}

func departures(cmd *cobra.Command, args []string) error {
	stopID := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.loadSchedule(cmd.Context()); err != nil {
		return err
	}

	departures, err := a.engine.NextDepartures(stopID, count)
	if err != nil {
		return err
	}

	for _, d := range departures {
		line := fmt.Sprintf("%s %-4s %s", d.Time.Format("15:04"), d.RouteShortName(), d.Headsign())

		if withLive {
			status, err := a.engine.LiveStatus(cmd.Context(), d.Trip.ID)
			if err != nil && !errors.Is(err, gtfs.ErrRefreshFailed) {
				return err
			}
			if status != nil && status.Vehicle != nil {
				line += fmt.Sprintf(" [vehicle %s at %s]", status.Vehicle.VehicleID, status.Vehicle.CurrentStopID)
			}
			if status != nil && status.TripUpdate != nil && status.TripUpdate.Canceled {
				line += " [canceled]"
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), line)
	}

	return nil
}
