package dispatch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"

	"github.com/pitr/gemini-ios-sub000/internal/gemini"
	"github.com/pitr/gemini-ios-sub000/internal/page"
	"github.com/pitr/gemini-ios-sub000/internal/transport"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func handle(t *testing.T, n *Navigation, raw, pageURL string) Result {
	t.Helper()
	return n.Handle([]byte(raw), mustURL(t, pageURL))
}

func TestNewNavigation_Defaults(t *testing.T) {
	n := NewNavigation(Config{})
	require.Equal(t, DefaultMaxRedirects, n.cfg.MaxRedirects)
	require.Equal(t, DefaultDownloadHandler, n.cfg.DownloadHandler)
	require.Zero(t, n.Redirects())
}

func TestDispatch_Gemtext(t *testing.T) {
	n := NewNavigation(DefaultConfig())
	res := handle(t, n, "20 text/gemini; lang=fr\r\n# Bonjour\n", "gemini://example.org/")

	require.Equal(t, MIMEHTML, res.MIME)
	require.Equal(t, gemini.StatusSuccess, res.Status)
	require.Nil(t, res.Redirect)
	body := string(res.Body)
	require.Contains(t, body, `<html lang="fr">`)
	require.Contains(t, body, "<title>Bonjour</title>")
	require.Contains(t, body, "<h1>Bonjour</h1>")
}

func TestDispatch_RendererFailure(t *testing.T) {
	orig := renderGemtext
	renderGemtext = func(string, *url.URL, page.Options) (string, error) {
		return "", errors.New("boom")
	}
	t.Cleanup(func() { renderGemtext = orig })

	res := handle(t, NewNavigation(DefaultConfig()), "20 text/gemini\r\n# x\n", "gemini://example.org/")
	require.Equal(t, MIMEHTML, res.MIME)
	require.Contains(t, string(res.Body), `<div class="gemini-error">`)
	require.Contains(t, string(res.Body), "boom")
}

func TestDispatch_PlainTextIsWrapped(t *testing.T) {
	res := handle(t, NewNavigation(DefaultConfig()), "20 text/plain\r\n<b>hi</b>\n", "gemini://example.org/a.txt")
	require.Equal(t, MIMEHTML, res.MIME)
	require.Contains(t, string(res.Body), "<pre>&lt;b&gt;hi&lt;/b&gt;\n</pre>")
}

func TestDispatch_HTMLPassesThrough(t *testing.T) {
	res := handle(t, NewNavigation(DefaultConfig()), "20 text/html\r\n<p>ok</p>", "gemini://example.org/a.html")
	require.Equal(t, MIMEHTML, res.MIME)
	require.Equal(t, "<p>ok</p>", string(res.Body))
}

func TestDispatch_OtherTextBecomesPlain(t *testing.T) {
	res := handle(t, NewNavigation(DefaultConfig()), "20 text/csv\r\na,b\n", "gemini://example.org/a.csv")
	require.Equal(t, MIMEText, res.MIME)
	require.Equal(t, "a,b\n", string(res.Body))
}

func TestDispatch_Latin1IsDecoded(t *testing.T) {
	raw := "20 text/plain; charset=iso-8859-1\r\ncaf\xe9"
	res := handle(t, NewNavigation(DefaultConfig()), raw, "gemini://example.org/")
	require.Contains(t, string(res.Body), "café")
}

func TestDispatch_DecodeFailure(t *testing.T) {
	res := handle(t, NewNavigation(DefaultConfig()), "20 text/gemini\r\n\xff\xfe", "gemini://example.org/")
	require.Equal(t, MIMEHTML, res.MIME)
	require.Contains(t, string(res.Body), "Could not parse body with encoding utf-8")
}

func TestDispatch_DecodeFailureDeclaredCharset(t *testing.T) {
	tests := []struct {
		charset string
		body    string
	}{
		{"shift_jis", "\x82\xff\xffA"},
		{"us-ascii", "caf\xe9"},
	}
	for _, tt := range tests {
		t.Run(tt.charset, func(t *testing.T) {
			raw := "20 text/gemini; charset=" + tt.charset + "\r\n" + tt.body
			res := handle(t, NewNavigation(DefaultConfig()), raw, "gemini://example.org/")
			require.Equal(t, MIMEHTML, res.MIME)
			require.Contains(t, string(res.Body), "Could not parse body with encoding "+tt.charset)
		})
	}
}

func TestDispatch_ViewableBinary(t *testing.T) {
	png := "\x89PNG\r\n\x1a\n"
	res := handle(t, NewNavigation(DefaultConfig()), "20 image/png\r\n"+png, "gemini://example.org/cat.png")
	require.Equal(t, "image/png", res.MIME)
	require.Equal(t, png, string(res.Body))
}

func TestDispatch_DownloadStub(t *testing.T) {
	n := NewNavigation(Config{DownloadHandler: "saveFile"})
	res := handle(t, n, "20 application/zip\r\nPK\x03\x04", "gemini://example.org/files/archive.zip")

	require.Equal(t, MIMEHTML, res.MIME)
	body := string(res.Body)
	require.Contains(t, body, "Downloading archive.zip (application/zip, 4 bytes)")
	require.Contains(t, body, `var name = "saveFile";`)

	want, err := sonic.ConfigStd.MarshalToString(&DownloadPayload{
		URL:          "gemini://example.org/files/archive.zip",
		Filename:     "archive.zip",
		MIMEType:     "application/zip",
		Size:         4,
		Base64String: base64.StdEncoding.EncodeToString([]byte("PK\x03\x04")),
	})
	require.NoError(t, err)
	require.Contains(t, body, "postMessage("+want+")")
}

func TestFilename(t *testing.T) {
	require.Equal(t, "a.bin", filename(mustURL(t, "gemini://h/x/a.bin")))
	require.Equal(t, "download", filename(mustURL(t, "gemini://h/")))
	require.Equal(t, "download", filename(nil))
}

func TestDispatch_Input(t *testing.T) {
	n := NewNavigation(DefaultConfig())

	res := handle(t, n, "10 What is your name?\r\n", "gemini://example.org/greet?old#frag")
	body := string(res.Body)
	require.Equal(t, MIMEHTML, res.MIME)
	require.Contains(t, body, `<label for="query">What is your name?</label>`)
	require.Contains(t, body, `type="text"`)
	require.Contains(t, body, `"gemini://example.org/greet" + "?"`)

	res = handle(t, n, "11 Password\r\n", "gemini://example.org/login")
	require.Contains(t, string(res.Body), `type="password"`)
}

func TestDispatch_InputScriptEscapesURL(t *testing.T) {
	res := handle(t, NewNavigation(DefaultConfig()), "10 q\r\n", "gemini://example.org/</script>")
	require.NotContains(t, string(res.Body), "</script>\"")
}

func TestQueryURL(t *testing.T) {
	base := mustURL(t, "gemini://example.org/search?old#top")

	require.Equal(t, "gemini://example.org/search?hello%20world", QueryURL(base, "hello world").String())
	require.Equal(t, "gemini://example.org/search?a%2Bb%26c%3Dd", QueryURL(base, "a+b&c=d").String())
	require.Equal(t, "gemini://example.org/search?", QueryURL(base, "").String())
	require.Equal(t, "gemini://example.org/search?old#top", base.String(), "base must not change")
}

func TestDispatch_SameOriginRedirectRefreshes(t *testing.T) {
	n := NewNavigation(DefaultConfig())
	res := handle(t, n, "30 /new\r\n", "gemini://example.org/old")

	require.NotNil(t, res.Redirect)
	require.Equal(t, "gemini://example.org/new", res.Redirect.String())
	require.True(t, res.AutoFollow)
	require.Contains(t, string(res.Body), `<meta http-equiv="refresh" content="0; url=gemini://example.org/new">`)
	require.Equal(t, 1, n.Redirects())
}

func TestDispatch_DefaultPortIsSameOrigin(t *testing.T) {
	res := handle(t, NewNavigation(DefaultConfig()), "31 gemini://example.org:1965/x\r\n", "gemini://example.org/")
	require.Contains(t, string(res.Body), "http-equiv=\"refresh\"")
}

func TestDispatch_CrossOriginRedirectAsksFirst(t *testing.T) {
	tests := []string{
		"gemini://elsewhere.example/",
		"gemini://example.org:1966/",
		"https://example.org/",
	}
	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			n := NewNavigation(DefaultConfig())
			res := handle(t, n, "30 "+target+"\r\n", "gemini://example.org/")
			require.NotNil(t, res.Redirect)
			require.False(t, res.AutoFollow)
			body := string(res.Body)
			require.NotContains(t, body, "http-equiv")
			require.Contains(t, body, `<div class="gemini-redirect">`)
			require.Contains(t, body, fmt.Sprintf(`<a href="%s">`, target))
		})
	}
}

func TestDispatch_TooManyRedirects(t *testing.T) {
	n := NewNavigation(DefaultConfig())
	for i := 1; i <= DefaultMaxRedirects; i++ {
		res := handle(t, n, "30 /next\r\n", "gemini://example.org/")
		require.NotNil(t, res.Redirect, "redirect %d should be followed", i)
		require.Equal(t, i, n.Redirects())
	}

	res := handle(t, n, "30 /next\r\n", "gemini://example.org/")
	require.Nil(t, res.Redirect)
	require.Contains(t, string(res.Body), "Too many redirects")
	require.Zero(t, n.Redirects(), "counter resets once the navigation ends")

	res = handle(t, n, "30 /next\r\n", "gemini://example.org/")
	require.NotNil(t, res.Redirect)
	require.Equal(t, 1, n.Redirects())
}

func TestDispatch_NonRedirectResetsCounter(t *testing.T) {
	n := NewNavigation(DefaultConfig())
	handle(t, n, "30 /a\r\n", "gemini://example.org/")
	handle(t, n, "30 /b\r\n", "gemini://example.org/a")
	require.Equal(t, 2, n.Redirects())

	handle(t, n, "20 text/gemini\r\nhi\n", "gemini://example.org/b")
	require.Zero(t, n.Redirects())

	handle(t, n, "30 /a\r\n", "gemini://example.org/")
	n.Fail(gemini.ErrNoContent, mustURL(t, "gemini://example.org/a"))
	require.Zero(t, n.Redirects())
}

func TestDispatch_EmptyRedirectTarget(t *testing.T) {
	n := NewNavigation(DefaultConfig())
	res := n.Dispatch(gemini.Header{Status: gemini.StatusRedirectTemporary}, nil, mustURL(t, "gemini://example.org/"))
	require.Nil(t, res.Redirect)
	require.Contains(t, string(res.Body), "Could not resolve redirect target")
	require.Zero(t, n.Redirects())
}

func TestDispatch_Failures(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"51 No such page\r\n", "Not found: No such page"},
		{"52 \r\n", "<p>Gone</p>"},
		{"40 try later\r\n", "Temporary failure: try later"},
		{"44 5\r\n", "Slow down: please wait at least 5 seconds before retrying"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			res := handle(t, NewNavigation(DefaultConfig()), tt.raw, "gemini://example.org/")
			require.Equal(t, MIMEHTML, res.MIME)
			require.Contains(t, string(res.Body), tt.want)
			require.Contains(t, string(res.Body), `class="gemini-error"`)
		})
	}
}

func TestDispatch_CertificateRequired(t *testing.T) {
	res := handle(t, NewNavigation(DefaultConfig()), "60 Members only\r\n", "gemini://Example.org/private")
	body := string(res.Body)
	require.Equal(t, gemini.StatusClientCertRequired, res.Status)
	require.Contains(t, body, `<div id="gemini-certificate-required" data-status="60" data-host="example.org"></div>`)
	require.Contains(t, body, "Members only")
}

func TestHandle_ParseFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", "Server responded with no content"},
		{"garbage", "HTTP/1.1 200 OK", "Invalid response"},
		{"bad status", "99 nope\r\n", "Invalid header: 99 nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := handle(t, NewNavigation(DefaultConfig()), tt.raw, "gemini://example.org/")
			require.Equal(t, MIMEHTML, res.MIME)
			require.Zero(t, res.Status)
			require.Contains(t, string(res.Body), tt.want)
		})
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"dial", &transport.TransportError{Op: transport.OpDial, Addr: "h:1965", Err: errors.New("refused")}, "Could not connect: refused"},
		{"handshake", &transport.TransportError{Op: transport.OpHandshake, Addr: "h:1965", Err: errors.New("bad tls")}, "Could not establish a secure connection: bad tls"},
		{"encoding", gemini.ErrRequestEncoding, "Could not encode request"},
		{"decode", &gemini.DecodeError{Charset: "klingon"}, "Could not parse body with encoding klingon"},
		{"cancelled", fmt.Errorf("fetch: %w", context.Canceled), "The request was cancelled"},
		{"timeout", &transport.TransportError{Op: transport.OpRead, Err: context.DeadlineExceeded}, "The server did not respond in time"},
		{"other", errors.New("odd"), "odd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, msg := describe(tt.err)
			require.Equal(t, tt.want, msg)
		})
	}
}

func TestFail_RendersPage(t *testing.T) {
	res := NewNavigation(DefaultConfig()).Fail(gemini.ErrInvalidResponse, mustURL(t, "gemini://example.org/"))
	require.Equal(t, MIMEHTML, res.MIME)
	require.True(t, strings.HasPrefix(string(res.Body), "<!DOCTYPE html>"))
	require.Contains(t, string(res.Body), "<h1>Invalid response</h1>")
}
