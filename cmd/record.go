// This software is a derivative work based on Zeit (https://github.com/mrusme/zeit)
// Original work copyright (c) マリウス (mrusme)
// Modifications copyright (c) Manav Panchal
//
// Licensed under the SEGV License, Version 1.0
// See LICENSE file for full license text.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manav03panchal/tabula/internal/bus"
	"github.com/manav03panchal/tabula/internal/command"
	"github.com/manav03panchal/tabula/internal/field"
	"github.com/manav03panchal/tabula/internal/ids"
	"github.com/manav03panchal/tabula/internal/record"
	"github.com/manav03panchal/tabula/internal/runtime"
)

var (
	flagRecordTable    string
	flagRecordSet      []string
	flagRecordKeyType  string
	flagRecordTypecast bool
	flagRecordExpect   int64
)

// recordCmd groups the record mutations.
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Create, update, delete and read records",
	Long: `Create, update, delete and read records of a configured table.

Mutations run through the command bus. When a window is set the step is
recorded in the undo history of the (actor, table, window) scope.

Values passed with --set are parsed as JSON when valid and taken as plain
strings otherwise.`,
}

var recordCreateCmd = &cobra.Command{
	Use:   "create [RECORD_ID]",
	Short: "Create a record",
	Long: `Create a record. A record id is generated when none is given.

Examples:
  tabula record create --table tblAbCdEfGh12345678 --set Name=Ada --set Age=36
  tabula record create recAbCdEfGh12345678 --table tblAbCdEfGh12345678 --set Name=Ada`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecordCreate,
}

var recordUpdateCmd = &cobra.Command{
	Use:   "update RECORD_ID",
	Short: "Update fields of a record",
	Long: `Update fields of a record.

Examples:
  tabula record update recAbCdEfGh12345678 --table tblAbCdEfGh12345678 --set Name=Grace
  tabula record update recAbCdEfGh12345678 --table tblAbCdEfGh12345678 \
    --key-type dbFieldName --set col_age=37 --expect-version 4
  tabula record update recAbCdEfGh12345678 --table tblAbCdEfGh12345678 --typecast --set Done=yes`,
	Args: cobra.ExactArgs(1),
	RunE: runRecordUpdate,
}

var recordDeleteCmd = &cobra.Command{
	Use:   "delete RECORD_ID...",
	Short: "Delete records",
	Long: `Delete one or more records. Undo restores them from the snapshot taken
before the deletion.

Examples:
  tabula record delete recAbCdEfGh12345678 recZyXwVuTs98765432 --table tblAbCdEfGh12345678`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecordDelete,
}

var recordGetCmd = &cobra.Command{
	Use:   "get RECORD_ID...",
	Short: "Show records",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecordGet,
}

func init() {
	for _, c := range []*cobra.Command{recordCreateCmd, recordUpdateCmd, recordDeleteCmd, recordGetCmd} {
		c.Flags().StringVar(&flagRecordTable, "table", "", "Table id")
		_ = c.MarkFlagRequired("table")
		_ = c.RegisterFlagCompletionFunc("table", completeTables)
	}
	for _, c := range []*cobra.Command{recordCreateCmd, recordUpdateCmd} {
		c.Flags().StringArrayVar(&flagRecordSet, "set", nil, "Field value as KEY=VALUE (repeatable)")
		c.Flags().StringVar(&flagRecordKeyType, "key-type", "name", "How --set keys are read: id, name, dbFieldName")
		c.Flags().BoolVar(&flagRecordTypecast, "typecast", false, "Convert values to the field's cell type")
		_ = c.RegisterFlagCompletionFunc("key-type", cobra.FixedCompletions(
			[]string{string(field.KeyByID), string(field.KeyByName), string(field.KeyByDBFieldName)},
			cobra.ShellCompDirectiveNoFileComp))
	}
	recordUpdateCmd.Flags().Int64Var(&flagRecordExpect, "expect-version", 0, "Fail unless the stored version matches")

	recordCmd.AddCommand(recordCreateCmd)
	recordCmd.AddCommand(recordUpdateCmd)
	recordCmd.AddCommand(recordDeleteCmd)
	recordCmd.AddCommand(recordGetCmd)
	rootCmd.AddCommand(recordCmd)
}

// parseSetFlags turns KEY=VALUE pairs into a field-value map.
func parseSetFlags(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, runtime.NewParseError("set", pair, "expected KEY=VALUE")
		}
		var v any
		if err := decodeJSON([]byte(raw), &v); err != nil {
			v = raw
		}
		values[key] = v
	}
	return values, nil
}

// execRecord runs cmd on the bus as the session actor.
func execRecord(c *cobra.Command, cmd command.Command) (*record.Result, error) {
	actorID, err := actor()
	if err != nil {
		return nil, err
	}
	windowID, err := window()
	if err != nil {
		return nil, err
	}
	return bus.ExecuteAs[*record.Result](c.Context(), ctx.Bus, ctx.Exec(actorID, windowID), cmd)
}

func printRecords(c *cobra.Command, tableID ids.TableID, res *record.Result) error {
	if ctx.IsJSON() {
		return ctx.JSONFormatter().PrintRecords(res.Records, res.Entry)
	}
	table, err := ctx.Catalog.Table(c.Context(), tableID)
	if err != nil {
		return err
	}
	cli := ctx.CLIFormatter()
	cli.PrintRecords(table, res.Records)
	if res.Entry != nil {
		cli.Muted("Recorded undo step " + res.Entry.ID)
	}
	return nil
}

func runRecordCreate(c *cobra.Command, args []string) error {
	values, err := parseSetFlags(flagRecordSet)
	if err != nil {
		return err
	}
	p := command.CreateRecordPayload{
		TableID:      ids.TableID(flagRecordTable),
		Fields:       values,
		FieldKeyType: flagRecordKeyType,
		Typecast:     flagRecordTypecast,
	}
	if len(args) == 1 {
		p.RecordID = ids.RecordID(args[0])
	}
	cmd, err := command.NewCreateRecord(p)
	if err != nil {
		return err
	}
	res, err := execRecord(c, cmd)
	if err != nil {
		return err
	}
	return printRecords(c, cmd.TableID(), res)
}

func runRecordUpdate(c *cobra.Command, args []string) error {
	values, err := parseSetFlags(flagRecordSet)
	if err != nil {
		return err
	}
	p := command.UpdateRecordPayload{
		TableID:      ids.TableID(flagRecordTable),
		RecordID:     ids.RecordID(args[0]),
		Fields:       values,
		FieldKeyType: flagRecordKeyType,
		Typecast:     flagRecordTypecast,
	}
	if c.Flags().Changed("expect-version") {
		v := flagRecordExpect
		p.ExpectedVersion = &v
	}
	cmd, err := command.NewUpdateRecord(p)
	if err != nil {
		return err
	}
	res, err := execRecord(c, cmd)
	if err != nil {
		return err
	}
	return printRecords(c, cmd.TableID(), res)
}

func runRecordDelete(c *cobra.Command, args []string) error {
	cmd, err := command.NewDeleteRecords(command.DeleteRecordsPayload{
		TableID:   ids.TableID(flagRecordTable),
		RecordIDs: args,
	})
	if err != nil {
		return err
	}
	res, err := execRecord(c, cmd)
	if err != nil {
		return err
	}
	if ctx.IsJSON() {
		return ctx.JSONFormatter().PrintRecords(res.Records, res.Entry)
	}
	cli := ctx.CLIFormatter()
	cli.Success(fmt.Sprintf("Deleted %d record(s)", len(res.Records)))
	if res.Entry != nil {
		cli.Muted("Recorded undo step " + res.Entry.ID)
	}
	return nil
}

func runRecordGet(c *cobra.Command, args []string) error {
	tableID, err := ids.ParseTableID(flagRecordTable)
	if err != nil {
		return err
	}
	recordIDs, err := ids.ParseRecordIDs(args)
	if err != nil {
		return err
	}
	table, err := ctx.Catalog.Table(c.Context(), tableID)
	if err != nil {
		return err
	}
	actorID, err := actor()
	if err != nil {
		return err
	}
	records, err := ctx.Records.Get(c.Context(), ctx.Exec(actorID, nil), table, recordIDs)
	if err != nil {
		return err
	}
	if ctx.IsJSON() {
		return ctx.JSONFormatter().PrintRecords(records, nil)
	}
	ctx.CLIFormatter().PrintRecords(table, records)
	return nil
}
