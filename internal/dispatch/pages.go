package dispatch

import (
	"errors"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/pitr/gemini-ios-sub000/internal/gemini"
	"github.com/pitr/gemini-ios-sub000/internal/gemtext"
	"github.com/pitr/gemini-ios-sub000/internal/page"
)

var (
	errEmptyTarget    = errors.New("empty redirect target")
	errRelativeTarget = errors.New("relative redirect target without a page url")
)

// renderGemtext is swapped in tests that need a renderer failure.
var renderGemtext = gemtext.Render

// CertificateMarkerID is the element id the host looks for to offer an
// identity for the current host.
const CertificateMarkerID = "gemini-certificate-required"

// jsString encodes s as a JavaScript string literal safe to embed in a
// script element.
func jsString(s string) string {
	out, err := sonic.ConfigStd.MarshalToString(s)
	if err != nil {
		return `""`
	}
	return out
}

func errorDocument(title, message string, pageURL *url.URL, opts page.Options) string {
	body := fmt.Sprintf("<div class=\"gemini-error\">\n<h1>%s</h1>\n<p>%s</p>\n</div>\n",
		html.EscapeString(title), html.EscapeString(message))
	return page.Document(pageURL, title, body, opts)
}

func plainTextPage(text string, pageURL *url.URL, opts page.Options) string {
	return page.Document(pageURL, "", "<pre>"+html.EscapeString(text)+"</pre>\n", opts)
}

func refreshPage(target, pageURL *url.URL, opts page.Options) string {
	t := html.EscapeString(target.String())
	body := fmt.Sprintf("<meta http-equiv=\"refresh\" content=\"0; url=%s\">\n<p>Redirecting to <a href=\"%s\">%s</a></p>\n", t, t, t)
	return page.Document(pageURL, "Redirect", body, opts)
}

func confirmRedirectPage(target, pageURL *url.URL, opts page.Options) string {
	t := html.EscapeString(target.String())
	body := fmt.Sprintf("<div class=\"gemini-redirect\">\n<h1>Redirect</h1>\n<p>This page redirects to another site:</p>\n<p><a href=\"%s\">%s</a></p>\n</div>\n", t, t)
	return page.Document(pageURL, "Redirect", body, opts)
}

const inputScript = `<script>
function geminiSubmit(form) {
  var value = form.elements["query"].value;
  window.location.href = %s + "?" + encodeURIComponent(value);
  return false;
}
</script>
`

func inputPage(prompt string, sensitive bool, pageURL *url.URL, opts page.Options) string {
	base := ""
	if pageURL != nil {
		u := *pageURL
		u.RawQuery = ""
		u.ForceQuery = false
		u.Fragment = ""
		u.RawFragment = ""
		base = u.String()
	}
	kind := "text"
	if sensitive {
		kind = "password"
	}
	if prompt == "" {
		prompt = "Input requested"
	}

	body := fmt.Sprintf(inputScript, jsString(base)) +
		fmt.Sprintf("<form class=\"gemini-input\" onsubmit=\"return geminiSubmit(this)\">\n<label for=\"query\">%s</label>\n<input id=\"query\" name=\"query\" type=\"%s\" autofocus>\n<button type=\"submit\">Send</button>\n</form>\n",
			html.EscapeString(prompt), kind)
	return page.Document(pageURL, prompt, body, opts)
}

func certificatePage(h gemini.Header, pageURL *url.URL, opts page.Options) string {
	host := ""
	if pageURL != nil {
		host = strings.ToLower(pageURL.Hostname())
	}
	label := h.Status.Label()
	msg := label
	if h.Message != "" {
		msg += ": " + h.Message
	}
	body := fmt.Sprintf("<div class=\"gemini-error\">\n<h1>%s</h1>\n<p>%s</p>\n</div>\n<div id=\"%s\" data-status=\"%s\" data-host=\"%s\"></div>\n",
		html.EscapeString(label), html.EscapeString(msg), CertificateMarkerID,
		strconv.Itoa(int(h.Status)), html.EscapeString(host))
	return page.Document(pageURL, label, body, opts)
}
