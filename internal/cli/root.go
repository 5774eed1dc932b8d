package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"catalogpanel/internal/panelclient"
)

// Options carries the command's I/O and side-effect hooks.
type Options struct {
	Out        io.Writer
	Err        io.Writer
	HTTPClient *http.Client
	// Clipboard defaults to the system clipboard.
	Clipboard func(string) error
}

type session struct {
	opts    Options
	server  string
	token   string
	timeout time.Duration
}

// NewRootCommand builds the sheetctl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.WriteAll
	}
	rt := &session{opts: opts}

	root := &cobra.Command{
		Use:   "sheetctl",
		Short: "Browse the catalog panel's sheets and products from a terminal",
		Long: styleTitle.Render("sheetctl") + " - catalog panel companion\n\n" +
			"Preview Excel workbooks by URL, list and share the sheet library,\n" +
			"and list catalog products through the panel API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)
	root.PersistentFlags().StringVar(&rt.server, "server", os.Getenv("CATALOG_SERVER_URL"), "panel base URL (env CATALOG_SERVER_URL)")
	root.PersistentFlags().StringVar(&rt.token, "token", os.Getenv("CATALOG_TOKEN"), "staff bearer token (env CATALOG_TOKEN)")
	root.PersistentFlags().DurationVar(&rt.timeout, "timeout", 60*time.Second, "request timeout")

	root.AddCommand(rt.previewCmd())
	root.AddCommand(rt.sheetsCmd())
	root.AddCommand(rt.productsCmd())
	return root
}

// Execute runs the command tree and prints a styled error line on failure.
func Execute(ctx context.Context, opts Options, args []string) error {
	root := NewRootCommand(opts)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), styleError.Render("✘ "+err.Error()))
		return err
	}
	return nil
}

func (rt *session) httpClient() *http.Client {
	if rt.opts.HTTPClient != nil {
		return rt.opts.HTTPClient
	}
	return &http.Client{Timeout: rt.timeout}
}

func (rt *session) client() *panelclient.Client {
	return panelclient.NewClient(rt.server, rt.token, rt.httpClient())
}
