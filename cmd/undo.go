// This software is a derivative work based on Zeit (https://github.com/mrusme/zeit)
// Original work copyright (c) マリウス (mrusme)
// Modifications copyright (c) Manav Panchal
//
// Licensed under the SEGV License, Version 1.0
// See LICENSE file for full license text.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/manav03panchal/tabula/internal/execctx"
	"github.com/manav03panchal/tabula/internal/ids"
	"github.com/manav03panchal/tabula/internal/undo"
)

var flagHistoryTable string

// undoCmd steps the history back.
var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Undo the last recorded step",
	Long: `Undo the last recorded step of the (actor, table, window) scope.

The inverse command of the step is replayed through the command bus; the
replay itself is never recorded. When there is nothing to undo the command
succeeds without changes.

Examples:
  tabula record update recAbCdEfGh12345678 --table tblAbCdEfGh12345678 --set Name=Grace
  tabula undo --table tblAbCdEfGh12345678
  # Name is back to its previous value

  tabula redo --table tblAbCdEfGh12345678
  # Name is Grace again`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStep(cmd, "undo", ctx.Undo.Undo)
	},
}

// redoCmd re-applies the step at the cursor.
var redoCmd = &cobra.Command{
	Use:   "redo",
	Short: "Redo the last undone step",
	Long: `Redo the last undone step of the (actor, table, window) scope.

Recording a new step after an undo discards the steps that could have been
redone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStep(cmd, "redo", ctx.Undo.Redo)
	},
}

func init() {
	for _, c := range []*cobra.Command{undoCmd, redoCmd} {
		c.Flags().StringVar(&flagHistoryTable, "table", "", "Table id")
		_ = c.MarkFlagRequired("table")
		_ = c.RegisterFlagCompletionFunc("table", completeTables)
		rootCmd.AddCommand(c)
	}
}

type stepFunc func(ctx context.Context, ec *execctx.Context, tableID ids.TableID, windowID *ids.WindowID) (undo.Outcome, error)

func runStep(cmd *cobra.Command, op string, step stepFunc) error {
	tableID, err := ids.ParseTableID(flagHistoryTable)
	if err != nil {
		return err
	}
	actorID, err := actor()
	if err != nil {
		return err
	}
	windowID, err := window()
	if err != nil {
		return err
	}

	out, err := step(cmd.Context(), ctx.Exec(actorID, windowID), tableID, windowID)
	if err != nil {
		return err
	}

	if ctx.IsJSON() {
		return ctx.JSONFormatter().PrintOutcome(op, out)
	}
	ctx.CLIFormatter().PrintOutcome(op, out)
	return nil
}
