// This software is a derivative work based on Zeit (https://github.com/mrusme/zeit)
// Original work copyright (c) マリウス (mrusme)
// Modifications copyright (c) Manav Panchal
//
// Licensed under the SEGV License, Version 1.0
// See LICENSE file for full license text.
package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manav03panchal/tabula/internal/batchsql"
	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/field"
	"github.com/manav03panchal/tabula/internal/output"
	"github.com/manav03panchal/tabula/internal/parser"
	"github.com/manav03panchal/tabula/internal/sqllit"
)

var (
	flagSQLRows      bool
	flagSQLAt        string
	flagSQLType      string
	flagSQLNull      bool
	flagSQLGenerated bool
)

// sqlCmd groups the offline SQL compilers.
var sqlCmd = &cobra.Command{
	Use:         "sql",
	Short:       "Compile record updates and cell values to SQL",
	Annotations: map[string]string{annotationOffline: "true"},
}

// sqlBuildCmd compiles a batch description.
var sqlBuildCmd = &cobra.Command{
	Use:   "build [FILE]",
	Short: "Compile a batch of record updates into one UPDATE statement",
	Long: `Compile a batch of record updates into one UPDATE statement.

The input is JSON read from FILE, or stdin when FILE is '-' or missing:

  {
    "table": "bse1.tbl_people",
    "columns": {"col_name": [{"recordId": "rec1", "value": "Ada"}]},
    "system": {"lastModifiedBy": "usr1", "versionIncrement": true},
    "fields": [{"id": "fldAbCdEfGh12345678", "name": "Name",
                "dbFieldName": "col_name", "type": "singleLineText"}]
  }

With --rows, "columns" is replaced by row-oriented updates:

  "records": [{"recordId": "rec1", "values": {"col_name": "Ada"}}]

Examples:
  tabula sql build batch.json
  tabula sql build --rows --at "2 hours ago" rows.json
  cat batch.json | tabula sql build -f json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSQLBuild,
}

// sqlLiteralCmd renders one cell value.
var sqlLiteralCmd = &cobra.Command{
	Use:   "literal --type KIND [VALUE]",
	Short: "Render a cell value as a typed PostgreSQL literal",
	Long: `Render a cell value as a typed PostgreSQL literal.

VALUE is parsed as JSON when it is valid JSON and taken as a plain string
otherwise. Use --null for a NULL value.

Field kinds:
  ` + strings.Join(kindNames(), "\n  ") + `

Examples:
  tabula sql literal --type singleLineText "O'Brien"
  tabula sql literal --type number 2.5
  tabula sql literal --type multipleSelect '["a","b"]'
  tabula sql literal --type date --null`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSQLLiteral,
}

func init() {
	sqlBuildCmd.Flags().BoolVar(&flagSQLRows, "rows", false, "Read row-oriented records instead of columns")
	sqlBuildCmd.Flags().StringVar(&flagSQLAt, "at", "", "Last modified time, e.g. 'now' or '2 hours ago'")
	sqlLiteralCmd.Flags().StringVarP(&flagSQLType, "type", "t", "", "Field kind")
	sqlLiteralCmd.Flags().BoolVar(&flagSQLNull, "null", false, "Render a NULL value")
	sqlLiteralCmd.Flags().BoolVar(&flagSQLGenerated, "generated", false, "Treat the field as a generated column")
	_ = sqlLiteralCmd.MarkFlagRequired("type")
	_ = sqlLiteralCmd.RegisterFlagCompletionFunc("type", completeKinds)

	sqlCmd.AddCommand(sqlBuildCmd)
	sqlCmd.AddCommand(sqlLiteralCmd)
	rootCmd.AddCommand(sqlCmd)
}

func kindNames() []string {
	kinds := field.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}

// rowsInput is the row-oriented form of a batch.
type rowsInput struct {
	Table   string                  `json:"table"`
	Records []batchsql.RecordUpdate `json:"records"`
	System  batchsql.SystemColumns  `json:"system"`
	Fields  []*field.Field          `json:"fields"`
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

// decodeJSON decodes numbers as json.Number so no precision is lost before
// rendering.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func runSQLBuild(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	var in batchsql.Input
	if flagSQLRows {
		var rows rowsInput
		if err := decodeJSON(data, &rows); err != nil {
			return errors.ValidationField("input", "invalid batch JSON", err)
		}
		in = batchsql.Input{
			Table:   rows.Table,
			Columns: batchsql.Pivot(rows.Records),
			System:  rows.System,
			Fields:  rows.Fields,
		}
	} else if err := decodeJSON(data, &in); err != nil {
		return errors.ValidationField("input", "invalid batch JSON", err)
	}

	if flagSQLAt != "" {
		res := parser.ParseTimestamp(flagSQLAt)
		if res.Error != nil {
			var pe *parser.TimeParseError
			if errors.As(res.Error, &pe) {
				return errors.ValidationField("at", pe.FormatWithExamples(), pe)
			}
			return res.Error
		}
		in.System.LastModifiedTime = res.Time.UTC().Format(sqllit.TimestampLayout)
	}
	if flagActor != "" {
		in.System.LastModifiedBy = flagActor
	}

	stmt, err := batchsql.Build(in)
	if err != nil {
		return err
	}

	f := formatter(cmd)
	if f.Format == output.FormatJSON {
		return output.NewJSONFormatter(f).PrintStatement(stmt)
	}
	output.NewCLIFormatter(f).PrintStatement(stmt)
	return nil
}

func runSQLLiteral(cmd *cobra.Command, args []string) error {
	kind, err := field.ParseKind(flagSQLType)
	if err != nil {
		return err
	}
	f := &field.Field{Name: "value", DBFieldName: "value", Kind: kind, Generated: flagSQLGenerated}

	var value any
	switch {
	case flagSQLNull:
	case len(args) == 0:
		return errors.ValidationField("value", "a value or --null is required", nil)
	default:
		if err := decodeJSON([]byte(args[0]), &value); err != nil {
			value = args[0]
		}
	}

	lit, err := sqllit.Render(f, value)
	if err != nil {
		return err
	}

	out := formatter(cmd)
	if out.Format == output.FormatJSON {
		return out.JSON(map[string]string{"type": kind.String(), "literal": lit})
	}
	out.Println(lit)
	return nil
}
