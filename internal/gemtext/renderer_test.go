package gemtext

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/pitr/gemini-ios-sub000/internal/page"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func renderBody(t *testing.T, base, text string) string {
	t.Helper()
	r := NewRenderer(mustURL(t, base))
	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		r.Line(line)
	}
	return r.Finish()
}

func TestRender_BasicDocument(t *testing.T) {
	out, err := Render("# Title\n\nHello\n=> gemini://a/b Link\n", mustURL(t, "gemini://a/"), page.Options{})
	require.NoError(t, err)

	require.Contains(t, out, "<h1>Title</h1>")
	require.Contains(t, out, "<p>Hello</p>")
	require.Contains(t, out, `<a class="samedomain" href="gemini://a/b">Link</a>`)
	require.Contains(t, out, "<title>Title</title>")
	require.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	require.True(t, strings.HasSuffix(out, page.Footer()))
}

func TestRender_RequiresPageURL(t *testing.T) {
	_, err := Render("# x", nil, page.Options{})
	require.ErrorIs(t, err, ErrNoPageURL)
}

func TestRender_SiteTheme(t *testing.T) {
	out, err := Render("hi\n", mustURL(t, "gemini://example.org/"), page.Options{SiteTheme: true})
	require.NoError(t, err)
	require.Contains(t, out, "--site-fg: "+page.ThemeFor("example.org").Foreground)
}

func TestRenderer_PreformattedIsVerbatim(t *testing.T) {
	body := renderBody(t, "gemini://a/", "```\n# not a heading <b>\n```\n")

	require.Equal(t, 1, strings.Count(body, "<pre"))
	require.Equal(t, 1, strings.Count(body, "</pre>"))
	require.Contains(t, body, "# not a heading &lt;b&gt;\n")
	require.NotContains(t, body, "<h1>")
}

func TestRenderer_PreformattedCaptionsAndIDs(t *testing.T) {
	body := renderBody(t, "gemini://a/", "```ascii cat\n=^.^=\n```\n```\nx\n```\n")

	require.Contains(t, body, `<figcaption id="preformatted-1">ascii cat</figcaption>`)
	require.Contains(t, body, `aria-label="ascii cat"`)
	require.Contains(t, body, `<figcaption id="preformatted-2">`+DefaultCaption+`</figcaption>`)
	require.Contains(t, body, `=^.^=`)
}

func TestRenderer_StateMachine(t *testing.T) {
	r := NewRenderer(mustURL(t, "gemini://a/"))
	require.False(t, r.InPreformatted())

	r.Line("```")
	require.True(t, r.InPreformatted())
	require.Equal(t, 1, r.Blocks())

	r.Line("## inside")
	require.True(t, r.InPreformatted())
	require.Empty(t, r.Title(), "headings inside blocks are not headings")

	r.Line("```")
	require.False(t, r.InPreformatted())

	r.Line("## Outside")
	r.Line("# Later")
	require.Equal(t, "Outside", r.Title(), "first heading wins")
}

func TestRenderer_UnterminatedBlockClosedByFinish(t *testing.T) {
	body := renderBody(t, "gemini://a/", "```\n\x1b[31mred")
	require.True(t, strings.HasSuffix(body, "</span></pre>\n</figure>\n"), body)
}

func TestRenderer_ListsAreGrouped(t *testing.T) {
	body := renderBody(t, "gemini://a/", "* one\n* two\ntext\n* three\n")

	require.Equal(t, 2, strings.Count(body, "<ul>"))
	require.Equal(t, 2, strings.Count(body, "</ul>"))
	require.Contains(t, body, "<ul>\n<li>one</li>\n<li>two</li>\n</ul>\n<p>text</p>")
}

func TestRenderer_Quotes(t *testing.T) {
	body := renderBody(t, "gemini://a/", "> wise words\n>   \n")
	require.Contains(t, body, "<blockquote>wise words</blockquote>\n<br>\n")
}

func TestRenderer_HeadingLevels(t *testing.T) {
	body := renderBody(t, "gemini://a/", "### three\n## two\n# one\n")
	require.Contains(t, body, "<h3>three</h3>\n<h2>two</h2>\n<h1>one</h1>\n")
}

func TestRenderer_BlankLinesAndParagraphs(t *testing.T) {
	body := renderBody(t, "gemini://a/", "a & b\n\n   \n")
	require.Equal(t, "<p>a &amp; b</p>\n<br>\n<br>\n", body)
}

func TestRenderer_Links(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"relative", "=> /b", `<a class="samedomain" href="gemini://a/b">/b</a>`},
		{"label equals target", "=> /b /b", `<a class="samedomain" href="gemini://a/b">/b</a>`},
		{"whitespace label", "=>\tgemini://a/c\t  ", `<a class="samedomain" href="gemini://a/c">gemini://a/c</a>`},
		{"different host", "=> gemini://other.host/x Other", `<a class="diffdomain" href="gemini://other.host/x">Other</a>`},
		{"external", "=> https://a/x Web", `<a class="external" href="https://a/x">Web</a>`},
		{"escaped label", "=> /q?a=1&b=2 <x>", `<a class="samedomain" href="gemini://a/q?a=1&amp;b=2">&lt;x&gt;</a>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Contains(t, renderBody(t, "gemini://a/", tt.line), tt.want)
		})
	}
}

func TestRenderer_ImageLink(t *testing.T) {
	body := renderBody(t, "gemini://a/dir/", "=> pic.PNG A picture")

	require.Contains(t, body, `<a class="image" href="gemini://a/dir/pic.PNG"`)
	require.Contains(t, body, `<img loading="lazy" data-src="gemini://a/dir/pic.PNG" alt="A picture">`)
}

func TestRenderer_NilPageURLResolvesAbsoluteOnly(t *testing.T) {
	r := NewRenderer(nil)
	r.Line("=> x relative")
	r.Line("=> gemini://a/b Absolute")
	body := r.Finish()

	require.Contains(t, body, "<p>=&gt; x relative</p>")
	require.Contains(t, body, `<a class="diffdomain" href="gemini://a/b">Absolute</a>`)
}

func TestRenderer_EmptyLinkFallsBackToParagraph(t *testing.T) {
	body := renderBody(t, "gemini://a/", "=>   ")
	require.Equal(t, "<p>=&gt;   </p>\n", body)
}

func TestClassify(t *testing.T) {
	base := mustURL(t, "gemini://a/")
	tests := []struct {
		target string
		want   string
	}{
		{"gemini://other.host/x", ClassDiffDomain},
		{"https://a/x", ClassExternal},
		{"gemini://a/pic.png", ClassImage},
		{"gemini://a/pic.jpeg", ClassImage},
		{"gemini://other.host/pic.svg", ClassImage},
		{"gemini://A/x", ClassSameDomain},
		{"gemini://a:1966/x", ClassSameDomain},
		{"mailto:me@a", ClassExternal},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(base, mustURL(t, tt.target)))
		})
	}
}

func TestRenderer_NeverEmitsRawMarkup(t *testing.T) {
	base := mustURL(t, "gemini://a/")
	rapid.Check(t, func(rt *rapid.T) {
		lines := rapid.SliceOf(rapid.StringMatching(`(#{0,3}|\* |> |=> |`+"```"+`)?[a-z<>&" ]{0,12}`)).Draw(rt, "lines")

		r := NewRenderer(base)
		for _, line := range lines {
			r.Line(line)
		}
		body := r.Finish()

		require.False(rt, r.InPreformatted())
		require.Equal(rt, strings.Count(body, "<pre"), strings.Count(body, "</pre>"))
		require.Equal(rt, strings.Count(body, "<ul>"), strings.Count(body, "</ul>"))
		require.NotContains(rt, body, "<script")
	})
}
