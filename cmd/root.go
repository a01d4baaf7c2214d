// Package cmd provides the CLI commands for Tabula.
//
// This software is a derivative work based on Zeit (https://github.com/mrusme/zeit)
// Original work copyright (c) マリウス (mrusme)
// Modifications copyright (c) Manav Panchal
//
// Licensed under the SEGV License, Version 1.0
// See LICENSE file for full license text.
package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/ids"
	"github.com/manav03panchal/tabula/internal/logging"
	"github.com/manav03panchal/tabula/internal/output"
	"github.com/manav03panchal/tabula/internal/runtime"
)

// Version information (set at build time via ldflags).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Global flags.
var (
	flagFormat string
	flagColor  string
	flagDebug  bool
	flagConfig string
	flagActor  string
	flagWindow string
)

// annotationOffline marks commands that never touch the databases.
const annotationOffline = "tabula/offline"

// ctx is the shared runtime context.
var ctx *runtime.Context

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tabula",
	Short: "Inspect and drive the record mutation pipeline",
	Long: `Tabula runs record mutations through the command bus, keeps a
per-window undo/redo history and compiles batched record updates into SQL.

Examples:
  tabula sql build batch.json
  tabula sql literal --type number 2.5
  tabula record update recAbCdEfGh12345678 --table tblAbCdEfGh12345678 --set Name=Ada
  tabula history list --table tblAbCdEfGh12345678
  tabula undo --table tblAbCdEfGh12345678`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" || cmd.Name() == "help" || isOffline(cmd) {
			return nil
		}

		opts := runtime.DefaultOptions()
		opts.ConfigPath = flagConfig
		opts.Format = parseFormat(flagFormat)
		opts.ColorMode = parseColor(flagColor)
		opts.Debug = flagDebug

		var err error
		ctx, err = runtime.New(cmd.Context(), opts)
		if err != nil {
			return err
		}
		ctx.Formatter.Writer = cmd.OutOrStdout()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func isOffline(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationOffline] == "true" {
			return true
		}
	}
	return false
}

func parseFormat(s string) output.Format {
	switch s {
	case "json":
		return output.FormatJSON
	case "plain":
		return output.FormatPlain
	default:
		return output.FormatCLI
	}
}

func parseColor(s string) output.ColorMode {
	switch s {
	case "always":
		return output.ColorAlways
	case "never":
		return output.ColorNever
	default:
		return output.ColorAuto
	}
}

// formatter returns the formatter of the runtime context, or a standalone
// one for offline commands.
func formatter(cmd *cobra.Command) *output.Formatter {
	if ctx != nil {
		return ctx.Formatter
	}
	f := output.NewFormatter()
	f.Writer = cmd.OutOrStdout()
	f.Format = parseFormat(flagFormat)
	f.ColorMode = parseColor(flagColor)
	return f
}

// actor resolves the acting user from --actor or the session config.
func actor() (ids.ActorID, error) {
	v := flagActor
	if v == "" && ctx != nil {
		v = ctx.Config.Session.Actor
	}
	if v == "" {
		return "", errors.ValidationField("actor", "an actor is required; pass --actor or set TABULA_ACTOR", nil)
	}
	return ids.ParseActorID(v)
}

// window resolves the window from --window or the session config. It is nil
// when neither is set.
func window() (*ids.WindowID, error) {
	v := flagWindow
	if v == "" && ctx != nil {
		v = ctx.Config.Session.Window
	}
	if v == "" {
		return nil, nil
	}
	w, err := ids.ParseWindowID(v)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	reqCtx := logging.NewRequestContext()
	err := rootCmd.ExecuteContext(reqCtx)
	if ctx != nil {
		// The history database must be closed even when the command failed.
		if cerr := ctx.Close(); err == nil {
			err = cerr
		}
		ctx = nil
	}
	if err != nil {
		report(reqCtx, err)
		return errors.ExitCode(err)
	}
	return 0
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&flagFormat, "format", "f", "cli",
		"Output format: cli, json, plain")
	rootCmd.PersistentFlags().StringVar(&flagColor, "color", "auto",
		"Color output: auto, always, never")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false,
		"Enable debug output")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		"Config file (default $XDG_CONFIG_HOME/tabula/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", "",
		"Acting user id (default $TABULA_ACTOR)")
	rootCmd.PersistentFlags().StringVar(&flagWindow, "window", "",
		"Window id scoping the undo history (default $TABULA_WINDOW)")

	// Add commands
	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information.
var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{annotationOffline: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("tabula %s\n", Version)
		cmd.Printf("  commit: %s\n", Commit)
		cmd.Printf("  built: %s\n", BuildTime)
	},
}

// report prints an error the way the output format asks for.
func report(reqCtx context.Context, err error) {
	logging.DebugContext(reqCtx, "command failed",
		logging.KeyKind, errors.KindOf(err).String(),
		logging.KeyError, err,
		"cause", errors.RootCause(err),
		"chain", errors.Chain(err))
	if parseFormat(flagFormat) == output.FormatJSON {
		f := output.NewFormatter()
		_ = output.NewJSONFormatter(f).PrintError(err.Error(), errors.KindOf(err).String(), errors.GetSuggestion(err))
		return
	}
	os.Stderr.WriteString("Error: " + runtime.FormatError(err) + "\n")
}
