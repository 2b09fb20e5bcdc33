package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <zip>",
	Short: "Stores a local GTFS archive as the configured static feed",
	Long: "Parses a GTFS archive from disk into storage, recorded under static.url. " +
		"Later runs use it instead of downloading, as long as its calendar covers the current date.",
	Args: cobra.ExactArgs(1),
	RunE: importArchive,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func importArchive(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if a.cfg.Storage.Backend == "memory" {
		return fmt.Errorf("importing into memory storage has no lasting effect, configure sqlite or postgres")
	}

	body, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}

	if err := a.manager.Import(cmd.Context(), a.cfg.Static.URL, body); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%d bytes)\n", args[0], len(body))
	return nil
}
