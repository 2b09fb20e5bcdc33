package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Prints the display board text",
	Args:  cobra.NoArgs,
	RunE:  board,
}

var boardLines bool

func init() {
	boardCmd.Flags().BoolVarP(&boardLines, "lines", "", false, "One board line per output line")
	rootCmd.AddCommand(boardCmd)
}

func board(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if len(a.board.Stops) == 0 {
		return fmt.Errorf("no stops configured under display.stops")
	}

	if err := a.loadSchedule(cmd.Context()); err != nil {
		return err
	}

	if boardLines {
		lines, err := a.board.Lines()
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Fprintf(cmd.OutOrStdout(), "|%s|\n", line)
		}
		return nil
	}

	text, err := a.board.Render()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)

	return nil
}
