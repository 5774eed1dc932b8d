package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"catalogpanel/pkg/workbook"
)

func (rt *session) previewCmd() *cobra.Command {
	var maxBytes int64
	cmd := &cobra.Command{
		Use:   "preview <url>",
		Short: "Download a workbook and print its first sheet as a table",
		Example: `  sheetctl preview https://files.example.com/sheets/1717232400000_stock.xlsx
  sheetctl preview --max-bytes 5242880 https://example.com/report.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ingester := workbook.NewIngester(rt.httpClient(), maxBytes)
			records, err := ingester.Ingest(cmd.Context(), args[0])
			if err != nil {
				return previewError(err)
			}
			t := workbook.NewTable(records)
			out := cmd.OutOrStdout()
			if t.Empty() {
				fmt.Fprintln(out, styleMuted.Render("The sheet is empty or has no displayable rows."))
				return nil
			}
			tbl := newTable(t.Columns...)
			for _, row := range t.Rows {
				tbl.addRow(row...)
			}
			fmt.Fprint(out, tbl.render())
			fmt.Fprintln(out, styleMuted.Render(fmt.Sprintf("%d rows", len(t.Rows))))
			return nil
		},
	}
	cmd.Flags().Int64Var(&maxBytes, "max-bytes", 0, "largest workbook to download (default 20 MiB)")
	return cmd
}

func previewError(err error) error {
	switch {
	case errors.Is(err, workbook.ErrTransport):
		return fmt.Errorf("could not download the workbook: %w", err)
	case errors.Is(err, workbook.ErrFormat):
		return fmt.Errorf("the file is not a readable workbook: %w", err)
	default:
		return err
	}
}
