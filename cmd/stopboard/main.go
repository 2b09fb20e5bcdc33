package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "stopboard",
	Short:        "Next departures from GTFS stops",
	Long:         "Answers next-departure queries from a GTFS schedule, for a terminal, an HTTP client or a character display",
	SilenceUsage: true,
}

var (
	configPath      string
	staticHeaders   []string
	realtimeHeaders []string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default stopboard.yml or config.yml)")
	rootCmd.PersistentFlags().StringSliceVarP(
		&staticHeaders,
		"static-header",
		"",
		[]string{},
		"Extra GTFS Static HTTP header",
	)
	rootCmd.PersistentFlags().StringSliceVarP(
		&realtimeHeaders,
		"realtime-header",
		"",
		[]string{},
		"Extra GTFS Realtime HTTP header",
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

// Merges extra on top of base into a new map.
func mergeHeaders(base map[string]string, extra map[string]string) map[string]string {
	merged := map[string]string{}
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
