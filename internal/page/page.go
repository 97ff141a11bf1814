// Package page produces the HTML shell shared by every rendered document:
// the header with the bundled monospace font and optional per-site colours,
// and the closing footer.
package page

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/lucasb-eyer/go-colorful"
)

// DefaultFontURL is where the host bundles the Iosevka webfont.
const DefaultFontURL = "gemini-resource://fonts/iosevka-regular.woff2"

// Options controls document chrome.
type Options struct {
	// SiteTheme derives foreground/background colours from the page host.
	SiteTheme bool

	// FontURL overrides DefaultFontURL.
	FontURL string

	// Lang is emitted as the html lang attribute when set.
	Lang string
}

// Theme is the pair of colours derived for a host.
type Theme struct {
	Foreground string
	Background string
}

// ThemeFor derives a theme from host. The same host always yields the same
// colours.
func ThemeFor(host string) Theme {
	sum := xxhash.Sum64String(strings.ToLower(host))
	hue := float64(sum % 360)
	// Saturation varies a little with the upper bits so neighbouring hues differ.
	sat := 0.45 + float64((sum>>32)%20)/100

	return Theme{
		Foreground: colorful.Hsl(hue, sat, 0.28).Hex(),
		Background: colorful.Hsl(hue, sat*0.6, 0.94).Hex(),
	}
}

const baseStyle = `body { font-family: "Iosevka", ui-monospace, monospace; max-width: 48rem; margin: 0 auto; padding: 1rem; color: var(--site-fg, #222); background: var(--site-bg, #fff); line-height: 1.4; }
h1, h2, h3 { line-height: 1.2; }
pre { overflow-x: auto; margin: 0; }
figure { margin: 1rem 0; }
figcaption { display: none; }
blockquote { border-left: 3px solid currentColor; margin: 0.5rem 0; padding-left: 1rem; font-style: italic; }
a.external::after { content: " ↗"; }
a.diffdomain::after { content: " ⇒"; }
a.image img { display: none; max-width: 100%; }
a.image.expanded img { display: block; }
.gemini-error { border: 1px solid currentColor; padding: 1rem; }
`

// Header opens a document titled title. An empty title falls back to the
// page URL.
func Header(pageURL *url.URL, title string, opts Options) string {
	if title == "" && pageURL != nil {
		title = pageURL.String()
	}
	fontURL := opts.FontURL
	if fontURL == "" {
		fontURL = DefaultFontURL
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n")
	if opts.Lang != "" {
		fmt.Fprintf(&b, "<html lang=\"%s\">\n", html.EscapeString(opts.Lang))
	} else {
		b.WriteString("<html>\n")
	}
	b.WriteString("<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(title))
	b.WriteString("<style>\n")
	fmt.Fprintf(&b, "@font-face { font-family: \"Iosevka\"; src: url(\"%s\") format(\"woff2\"); }\n", html.EscapeString(fontURL))
	if opts.SiteTheme && pageURL != nil {
		theme := ThemeFor(pageURL.Hostname())
		fmt.Fprintf(&b, ":root { --site-fg: %s; --site-bg: %s; }\n", theme.Foreground, theme.Background)
	}
	b.WriteString(baseStyle)
	b.WriteString("</style>\n</head>\n<body>\n")
	return b.String()
}

// Footer closes a document opened by Header.
func Footer() string {
	return "</body>\n</html>\n"
}

// Document wraps body in Header and Footer.
func Document(pageURL *url.URL, title, body string, opts Options) string {
	return Header(pageURL, title, opts) + body + Footer()
}
