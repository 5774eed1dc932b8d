package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"catalogpanel/pkg/domain"
)

func (rt *session) productsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product"},
		Short:   "Work with the product catalog",
	}
	cmd.AddCommand(rt.productsListCmd(), rt.productsShowCmd())
	return cmd
}

func (rt *session) productsListCmd() *cobra.Command {
	var (
		search string
		page   int
		lang   string
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List products, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := rt.client().ListProducts(cmd.Context(), search, page)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(res.Items) == 0 {
				fmt.Fprintln(out, styleMuted.Render("No products found."))
				return nil
			}
			language := domain.Language(lang)
			tbl := newTable("ID", "TITLE", "SUMMARY", "IMAGES", "CREATED")
			for _, p := range res.Items {
				tbl.addRow(p.ID, p.Title(language), p.Summary(language, 30), strconv.Itoa(len(p.Images)), p.CreatedAt.Local().Format("2006-01-02"))
			}
			fmt.Fprint(out, tbl.render())
			fmt.Fprintln(out, styleMuted.Render(fmt.Sprintf("page %d/%d · %d products", res.Page, res.TotalPages, res.Total)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "filter by Arabic or English title")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	cmd.Flags().StringVar(&lang, "lang", string(domain.LangEnglish), "display language (ar, en)")
	return cmd
}

func (rt *session) productsShowCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one product with its media links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := rt.client().GetProduct(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			language := domain.Language(lang)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styleTitle.Render(p.Title(language)))
			if summary := p.Summary(language, 200); summary != "" {
				fmt.Fprintln(out, summary)
			}
			field := func(label, value string) {
				if value == "" {
					value = styleMuted.Render("none")
				}
				fmt.Fprintf(out, "%s %s\n", styleMuted.Render(label), value)
			}
			field("id:       ", p.ID)
			field("thumbnail:", p.Thumbnail())
			field("video:    ", p.VideoURL())
			field("images:   ", strconv.Itoa(len(p.Images)))
			field("created:  ", p.CreatedAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", string(domain.LangEnglish), "display language (ar, en)")
	return cmd
}
