package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/spf13/cobra"

	rustyshim "github.com/rustyshim/rustyshim-sdk/go"
)

var schemaTable string

var schemaCmd = &cobra.Command{
	Use:   "schema [sql]",
	Short: "Print the schema a query would produce",
	Long:  `Prints the schema of a query, or of a whole table with --table, without fetching any records.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSchema,
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables the service exposes",
	Args:  cobra.NoArgs,
	RunE:  runTables,
}

func init() {
	schemaCmd.Flags().StringVarP(&schemaTable, "table", "t", "", "print the schema of this table")
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(tablesCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	if (len(args) == 1) == (schemaTable != "") {
		return errors.New("provide either a query or --table")
	}

	return withConnection(cmd, false, func(ctx context.Context, conn *rustyshim.Connection) error {
		var (
			schema *arrow.Schema
			err    error
		)
		if schemaTable != "" {
			schema, err = conn.Table(schemaTable).Schema(ctx)
		} else {
			schema, err = conn.GetSchema(ctx, args[0])
		}
		if err != nil {
			return err
		}
		return printSchema(cmd, schema.Fields())
	})
}

func printSchema(cmd *cobra.Command, fields []arrow.Field) error {
	rows := make([][]string, 0, len(fields))
	for _, f := range fields {
		rows = append(rows, []string{f.Name, f.Type.String(), strconv.FormatBool(f.Nullable)})
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"name", "type", "nullable"}, rows))
	return err
}

func runTables(cmd *cobra.Command, _ []string) error {
	return withConnection(cmd, false, func(ctx context.Context, conn *rustyshim.Connection) error {
		tables, err := conn.Tables(ctx)
		if err != nil {
			return err
		}
		for _, tbl := range tables {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), tbl.Name); err != nil {
				return err
			}
		}
		return nil
	})
}
