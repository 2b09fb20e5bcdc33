package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"stopboard.dev/gtfs/display"
)

var stopsCmd = &cobra.Command{
	Use:   "stops [query]",
	Short: "Lists stops, optionally those whose name contains query",
	Args:  cobra.MaximumNArgs(1),
	RunE:  stops,
}

func init() {
	rootCmd.AddCommand(stopsCmd)
}

func stops(cmd *cobra.Command, args []string) error {
	query := ""
	if len(args) == 1 {
		query = strings.ToLower(display.Transliterate(args[0]))
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.loadSchedule(cmd.Context()); err != nil {
		return err
	}

	// Matching ignores case and diacritics
	matches := a.engine.Schedule().Stops()
	if query != "" {
		filtered := matches[:0]
		for _, stop := range matches {
			if strings.Contains(strings.ToLower(display.Transliterate(stop.Name)), query) {
				filtered = append(filtered, stop)
			}
		}
		matches = filtered
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Name < matches[j].Name
	})

	for _, stop := range matches {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", stop.ID, stop.Name)
	}

	return nil
}
