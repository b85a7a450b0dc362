package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	rustyshim "github.com/rustyshim/rustyshim-sdk/go"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputArrow = "arrow"
)

var queryOutput string

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Run a query and print the result",
	Long: `Resolves the query into a flight, fetches its first endpoint and prints the
records. The output is a text table, JSON rows, or an Arrow IPC stream.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryOutput, "output", "o", outputTable, "output format: table, json or arrow")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	switch queryOutput {
	case outputTable, outputJSON, outputArrow:
	default:
		return fmt.Errorf("unknown output format %q", queryOutput)
	}

	return withConnection(cmd, false, func(ctx context.Context, conn *rustyshim.Connection) error {
		rs, err := conn.QueryAsArrowBatch(ctx, args[0])
		if err != nil {
			return err
		}
		defer rs.Release()

		out := cmd.OutOrStdout()
		switch queryOutput {
		case outputJSON:
			return writeJSON(out, rs)
		case outputArrow:
			return rustyshim.WriteRecordBatches(out, rs.Schema, rs.Records)
		default:
			_, err := fmt.Fprintln(out, renderTable(rs.ColumnNames(), rs.ToStrings()))
			return err
		}
	})
}

// writeJSON prints one JSON object per row, keyed by column name.
func writeJSON(w io.Writer, rs *rustyshim.ResultSet) error {
	values, err := rs.ToValues()
	if err != nil {
		return err
	}

	names := rs.ColumnNames()
	enc := json.NewEncoder(w)
	for _, row := range values {
		obj := make(map[string]rustyshim.Value, len(row))
		for i, v := range row {
			obj[names[i]] = v
		}
		if err := enc.Encode(obj); err != nil {
			return err
		}
	}
	return nil
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}
