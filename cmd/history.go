// This software is a derivative work based on Zeit (https://github.com/mrusme/zeit)
// Original work copyright (c) マリウス (mrusme)
// Modifications copyright (c) Manav Panchal
//
// Licensed under the SEGV License, Version 1.0
// See LICENSE file for full license text.
package cmd

import (
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/ids"
	"github.com/manav03panchal/tabula/internal/storage"
	"github.com/manav03panchal/tabula/internal/tui"
	"github.com/manav03panchal/tabula/internal/undo"
	"github.com/manav03panchal/tabula/internal/validate"
)

// maxHistoryLimit caps a single history page.
const maxHistoryLimit = 1000

var (
	flagHistoryLimit  int
	flagHistoryOffset int
	flagHistoryBackup bool
)

// historyCmd groups the history inspection commands.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the undo/redo history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the recorded steps of a scope",
	Long: `List the recorded steps of the (actor, table, window) scope, oldest first.
The marker shows the cursor: steps after it can be redone.

Examples:
  tabula history list --table tblAbCdEfGh12345678
  tabula history list --table tblAbCdEfGh12345678 --offset 10 --limit 5 -f json`,
	Args: cobra.NoArgs,
	RunE: runHistoryList,
}

var historyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cursor of a scope",
	Args:  cobra.NoArgs,
	RunE:  runHistoryStatus,
}

var historyBrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse and step through the history interactively",
	Long: `Open an interactive view of the (actor, table, window) scope. Select
steps with the arrow keys, press u to undo and r to redo.

Examples:
  tabula history browse --table tblAbCdEfGh12345678 --window winAbCdEfGh12345678`,
	Args: cobra.NoArgs,
	RunE: runHistoryBrowse,
}

var historyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the history database",
	Long: `Verify that every scope's cursor and entries in the history database
are consistent. Exits non-zero when problems are found.

With --backup the database directory is copied to a backups/ directory next
to it before the check runs.`,
	Args: cobra.NoArgs,
	RunE: runHistoryCheck,
}

var historyScopesCmd = &cobra.Command{
	Use:   "scopes",
	Short: "List every scope with a stored history",
	Args:  cobra.NoArgs,
	RunE:  runHistoryScopes,
}

func init() {
	for _, c := range []*cobra.Command{historyListCmd, historyStatusCmd, historyBrowseCmd} {
		c.Flags().StringVar(&flagHistoryTable, "table", "", "Table id")
		_ = c.MarkFlagRequired("table")
		_ = c.RegisterFlagCompletionFunc("table", completeTables)
	}
	historyListCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 20, "Maximum steps to show (0 for all)")
	historyListCmd.Flags().IntVar(&flagHistoryOffset, "offset", 0, "Steps to skip")

	historyCheckCmd.Flags().BoolVar(&flagHistoryBackup, "backup", false, "Copy the history database before checking")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyStatusCmd)
	historyCmd.AddCommand(historyBrowseCmd)
	historyCmd.AddCommand(historyCheckCmd)
	historyCmd.AddCommand(historyScopesCmd)
	rootCmd.AddCommand(historyCmd)
}

// scopeArgs resolves table, actor and window for a history command.
func scopeArgs() (ids.TableID, ids.ActorID, *ids.WindowID, error) {
	tableID, err := ids.ParseTableID(flagHistoryTable)
	if err != nil {
		return "", "", nil, err
	}
	actorID, err := actor()
	if err != nil {
		return "", "", nil, err
	}
	windowID, err := window()
	if err != nil {
		return "", "", nil, err
	}
	return tableID, actorID, windowID, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	if err := validate.InRange("limit", flagHistoryLimit, 0, maxHistoryLimit); err != nil {
		return err
	}
	tableID, actorID, windowID, err := scopeArgs()
	if err != nil {
		return err
	}
	page := undo.Page{Offset: flagHistoryOffset, Limit: flagHistoryLimit}
	view, err := ctx.Undo.History(cmd.Context(), ctx.Exec(actorID, windowID), tableID, windowID, page)
	if err != nil {
		return err
	}

	if ctx.IsJSON() {
		return ctx.JSONFormatter().PrintHistory(view, page.Offset)
	}
	ctx.CLIFormatter().PrintHistory(view, page.Offset, time.Now())
	return nil
}

func runHistoryStatus(cmd *cobra.Command, args []string) error {
	tableID, actorID, windowID, err := scopeArgs()
	if err != nil {
		return err
	}
	ec := ctx.Exec(actorID, windowID)
	pos, err := ctx.Undo.Position(cmd.Context(), ec, tableID, windowID)
	if err != nil {
		return err
	}
	w, _ := ec.ResolveWindow(windowID)
	scope := undo.Scope{ActorID: actorID, TableID: tableID, WindowID: w}

	if ctx.IsJSON() {
		return ctx.JSONFormatter().PrintStatus(scope, pos)
	}
	ctx.CLIFormatter().PrintPosition(scope, pos)
	return nil
}

func runHistoryBrowse(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.Validation("history browse needs an interactive terminal; use 'history list' instead")
	}
	tableID, actorID, windowID, err := scopeArgs()
	if err != nil {
		return err
	}
	ec := ctx.Exec(actorID, windowID)
	// Fail before entering the alternate screen when the scope is invalid.
	if _, err := ctx.Undo.Position(cmd.Context(), ec, tableID, windowID); err != nil {
		return err
	}
	return tui.Run(cmd.Context(), tui.BrowserConfig{
		Source: tui.ServiceSource{Service: ctx.Undo, Exec: ec, TableID: tableID, WindowID: windowID},
	})
}

func runHistoryCheck(cmd *cobra.Command, args []string) error {
	if flagHistoryBackup {
		if ctx.DB.Path() == "" {
			return errors.Validation("an in-memory history cannot be backed up")
		}
		path, err := storage.CreateBackup(cmd.Context(), ctx.DB.Path())
		if err != nil {
			return err
		}
		if ctx.IsCLI() {
			ctx.CLIFormatter().Muted("Backup written to " + path)
		}
	}

	report := storage.CheckIntegrity(ctx.DB)
	if ctx.IsJSON() {
		if err := ctx.JSONFormatter().PrintIntegrity(report); err != nil {
			return err
		}
	} else {
		ctx.CLIFormatter().PrintIntegrity(report)
	}
	return report.Err()
}

func runHistoryScopes(cmd *cobra.Command, args []string) error {
	scopes, err := ctx.History.Scopes()
	if err != nil {
		return err
	}
	sort.Strings(scopes)
	if ctx.IsJSON() {
		return ctx.Formatter.JSON(map[string]any{"scopes": scopes})
	}
	cli := ctx.CLIFormatter()
	if len(scopes) == 0 {
		cli.Muted("No history yet.")
		return nil
	}
	for _, s := range scopes {
		cli.Println(s)
	}
	return nil
}
