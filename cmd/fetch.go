package cmd

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pitr/gemini-ios-sub000/internal/bridge"
	"github.com/pitr/gemini-ios-sub000/internal/gemini"
)

var (
	fetchOut             string
	fetchShowFingerprint bool
	fetchNoFollow        bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch a Gemini URL and print the rendered result",
	Long: `Fetch a Gemini URL the way the viewer would and write the rendered
document to stdout or --out. Same-site redirects are followed up to
max_redirects. The status line is printed to stderr.

Example:
  gemini fetch gemini://geminiprotocol.net/
  gemini fetch gemini://example.org/file.zip --out page.html
  gemini fetch gemini://example.org/ --show-fingerprint`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "write the body to a file instead of stdout")
	fetchCmd.Flags().BoolVar(&fetchShowFingerprint, "show-fingerprint", false, "print the server certificate fingerprint")
	fetchCmd.Flags().BoolVar(&fetchNoFollow, "no-follow", false, "do not follow same-site redirects")
}

func runFetch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	target := args[0]
	var resp bridge.Response
	for {
		ch, err := a.bridge.Start(cmd.Context(), target)
		if err != nil {
			return err
		}
		r, ok := <-ch
		if !ok {
			return context.Canceled
		}
		resp = r
		printStatus(cmd.ErrOrStderr(), target, resp)

		if fetchNoFollow || !resp.AutoFollow || resp.Redirect == nil {
			break
		}
		target = resp.Redirect.String()
	}

	if fetchShowFingerprint {
		if u, err := url.Parse(target); err == nil {
			if fp, ok := a.tofu.Get(u.Hostname()); ok {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "fingerprint %s\n", fp)
			}
		}
	}

	if err := writeBody(cmd.OutOrStdout(), resp.Body); err != nil {
		return err
	}
	if resp.Err != nil {
		return fmt.Errorf("fetching %s: %w", target, resp.Err)
	}
	return nil
}

func writeBody(stdout io.Writer, body []byte) error {
	if fetchOut == "" {
		_, err := stdout.Write(body)
		return err
	}
	if err := os.WriteFile(fetchOut, body, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", fetchOut, err)
	}
	return nil
}

// statusColor picks the colour for a status line by category.
func statusColor(s gemini.Status) *color.Color {
	switch s.Category() {
	case gemini.CategorySuccess:
		return color.New(color.FgGreen)
	case gemini.CategoryRedirect:
		return color.New(color.FgCyan)
	case gemini.CategoryInput:
		return color.New(color.FgYellow)
	case gemini.CategoryClientCertificate:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func statusLine(target string, resp bridge.Response) string {
	var b strings.Builder
	if resp.Status == 0 {
		b.WriteString("-- error")
	} else {
		fmt.Fprintf(&b, "%d %s", int(resp.Status), resp.Status.Label())
	}
	fmt.Fprintf(&b, "  %s  %s", target, resp.Headers[bridge.HeaderContentType])
	if resp.Redirect != nil {
		fmt.Fprintf(&b, "  -> %s", resp.Redirect)
	}
	if resp.Err != nil {
		fmt.Fprintf(&b, "  (%v)", resp.Err)
	}
	return b.String()
}

func printStatus(w io.Writer, target string, resp bridge.Response) {
	_, _ = statusColor(resp.Status).Fprintln(w, statusLine(target, resp))
}
