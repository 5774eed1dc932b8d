package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func (rt *session) sheetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sheets",
		Aliases: []string{"sheet"},
		Short:   "Work with the sheet library",
	}
	cmd.AddCommand(rt.sheetsListCmd())
	cmd.AddCommand(rt.sheetsShareCmd())
	cmd.AddCommand(rt.sheetsUploadCmd())
	return cmd
}

func (rt *session) sheetsListCmd() *cobra.Command {
	var (
		search string
		page   int
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored sheets, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := rt.client().ListSheets(cmd.Context(), search, page)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(res.Items) == 0 {
				fmt.Fprintln(out, styleMuted.Render("No sheets found."))
				return nil
			}
			tbl := newTable("NAME", "UPLOADED", "SIZE", "STORED AS")
			for _, f := range res.Items {
				uploaded := "-"
				if !f.UploadedAt.IsZero() {
					uploaded = f.UploadedAt.Local().Format("2006-01-02 15:04")
				}
				tbl.addRow(f.DisplayName, uploaded, formatSize(f.Size), f.Name)
			}
			fmt.Fprint(out, tbl.render())
			fmt.Fprintln(out, styleMuted.Render(fmt.Sprintf("page %d/%d · %d of %d sheets", res.Page, res.TotalPages, res.Matched, res.Total)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "filter by file name")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	return cmd
}

func (rt *session) sheetsShareCmd() *cobra.Command {
	var copyLink bool
	cmd := &cobra.Command{
		Use:   "share <name>",
		Short: "Print the read-only viewer link and the WhatsApp share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := rt.client().ShareSheet(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", styleTitle.Render("View: "), link.ViewURL)
			fmt.Fprintf(out, "%s %s\n", styleTitle.Render("Share:"), link.ShareURL)
			if copyLink {
				if err := rt.opts.Clipboard(link.ViewURL); err != nil {
					fmt.Fprintln(out, styleMuted.Render("(clipboard unavailable, copy the link manually)"))
					return nil
				}
				fmt.Fprintln(out, styleSuccess.Render("✔ view link copied to clipboard"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&copyLink, "copy", "c", false, "copy the viewer link to the clipboard")
	return cmd
}

func (rt *session) sheetsUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a workbook to the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			file, err := rt.client().UploadSheet(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), styleSuccess.Render("✔ uploaded "+file.Name))
			return nil
		},
	}
}
