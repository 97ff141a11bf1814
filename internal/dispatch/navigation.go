// Package dispatch turns a parsed Gemini response into something a web view
// can display. Every outcome, including transport and parse failures, yields
// a document; nothing here returns an error to the caller.
package dispatch

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/pitr/gemini-ios-sub000/internal/gemini"
	"github.com/pitr/gemini-ios-sub000/internal/log"
	"github.com/pitr/gemini-ios-sub000/internal/page"
)

const (
	// DefaultMaxRedirects is how many redirects one navigation may follow.
	DefaultMaxRedirects = 5

	// DefaultDownloadHandler is the host message handler for downloads.
	DefaultDownloadHandler = "download"

	// MIMEHTML is the type of every generated document.
	MIMEHTML = "text/html; charset=utf-8"

	// MIMEText is the type used for text that is not rendered.
	MIMEText = "text/plain; charset=utf-8"
)

// viewable binary types are handed to the web view unchanged.
var viewable = map[string]bool{
	"image/bmp":       true,
	"image/gif":       true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
	"text/plain":      true,
}

// Config tunes a Navigation.
type Config struct {
	MaxRedirects    int
	DownloadHandler string
	Page            page.Options
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxRedirects:    DefaultMaxRedirects,
		DownloadHandler: DefaultDownloadHandler,
	}
}

// Result is the displayable outcome of one response.
type Result struct {
	MIME string
	Body []byte

	// Redirect is the resolved target when the response was a redirect that
	// will be followed, automatically or after confirmation.
	Redirect *url.URL

	// AutoFollow is set when Redirect stays on the same origin and the
	// document already navigates there.
	AutoFollow bool

	// Status is the response status, zero when the request failed before a
	// header was read.
	Status gemini.Status
}

// Navigation is the state of one user navigation: a chain of requests
// linked by redirects. It is not safe for concurrent use.
type Navigation struct {
	cfg       Config
	redirects int
}

// NewNavigation returns a navigation with no redirects followed.
func NewNavigation(cfg Config) *Navigation {
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	if cfg.DownloadHandler == "" {
		cfg.DownloadHandler = DefaultDownloadHandler
	}
	return &Navigation{cfg: cfg}
}

// Redirects is the number of consecutive redirects followed so far.
func (n *Navigation) Redirects() int {
	return n.redirects
}

// Handle parses raw and dispatches it.
func (n *Navigation) Handle(raw []byte, pageURL *url.URL) Result {
	if len(raw) == 0 {
		return n.Fail(gemini.ErrNoContent, pageURL)
	}
	h, body, err := gemini.ParseHeader(raw)
	if err != nil {
		return n.Fail(err, pageURL)
	}
	return n.Dispatch(h, body, pageURL)
}

// Dispatch produces the document for header h and body.
func (n *Navigation) Dispatch(h gemini.Header, body []byte, pageURL *url.URL) Result {
	var res Result
	switch h.Category() {
	case gemini.CategoryInput:
		res = n.input(h, pageURL)
	case gemini.CategorySuccess:
		res = n.success(h, body, pageURL)
	case gemini.CategoryRedirect:
		res = n.redirect(h, pageURL)
	case gemini.CategoryTemporaryFailure, gemini.CategoryPermanentFailure:
		res = n.failure(h, pageURL)
	case gemini.CategoryClientCertificate:
		res = n.certificate(h, pageURL)
	default:
		res = n.errorPage(pageURL, "Invalid header", "Invalid header: "+h.String())
	}
	res.Status = h.Status

	n.settle(h, res)
	log.Debug(log.CatDispatch, "dispatched", "url", pageURL, "status", int(h.Status), "mime", res.MIME, "redirects", n.redirects)
	return res
}

// settle resets the redirect counter whenever the navigation did not end in
// a redirect that is about to be followed.
func (n *Navigation) settle(h gemini.Header, res Result) {
	if h.Category() != gemini.CategoryRedirect || res.Redirect == nil {
		n.redirects = 0
	}
}

func (n *Navigation) success(h gemini.Header, body []byte, pageURL *url.URL) Result {
	m := h.MIME
	if !m.IsText() {
		if viewable[m.ContentType] {
			return Result{MIME: m.ContentType, Body: body}
		}
		return n.download(m, body, pageURL)
	}

	text, err := m.Decode(body)
	if err != nil {
		log.Warn(log.CatDispatch, "body decode failed", "url", pageURL, "charset", m.Charset)
		return n.errorPage(pageURL, "Decoding error", "Could not parse body with encoding "+m.Charset)
	}

	opts := n.cfg.Page
	if lang := m.Lang(); lang != "" {
		opts.Lang = lang
	}

	switch m.ContentType {
	case "text/gemini":
		doc, err := renderGemtext(text, pageURL, opts)
		if err != nil {
			return n.errorPage(pageURL, "Rendering error", err.Error())
		}
		return Result{MIME: MIMEHTML, Body: []byte(doc)}
	case "text/html":
		return Result{MIME: MIMEHTML, Body: []byte(text)}
	case "text/plain":
		return Result{MIME: MIMEHTML, Body: []byte(plainTextPage(text, pageURL, opts))}
	default:
		return Result{MIME: MIMEText, Body: []byte(text)}
	}
}

func (n *Navigation) redirect(h gemini.Header, pageURL *url.URL) Result {
	target, err := resolve(pageURL, h.Target)
	if err != nil {
		log.Warn(log.CatDispatch, "unresolvable redirect", "url", pageURL, "target", h.Target, "error", err)
		return n.errorPage(pageURL, "Invalid redirect", "Could not resolve redirect target: "+h.Target)
	}

	n.redirects++
	if n.redirects > n.cfg.MaxRedirects {
		log.Warn(log.CatDispatch, "too many redirects", "url", pageURL, "limit", n.cfg.MaxRedirects)
		return n.errorPage(pageURL, "Redirect", "Too many redirects")
	}

	if sameOrigin(pageURL, target) {
		return Result{MIME: MIMEHTML, Body: []byte(refreshPage(target, pageURL, n.cfg.Page)), Redirect: target, AutoFollow: true}
	}
	return Result{MIME: MIMEHTML, Body: []byte(confirmRedirectPage(target, pageURL, n.cfg.Page)), Redirect: target}
}

func (n *Navigation) input(h gemini.Header, pageURL *url.URL) Result {
	sensitive := h.Status == gemini.StatusSensitiveInput
	return Result{MIME: MIMEHTML, Body: []byte(inputPage(h.Prompt, sensitive, pageURL, n.cfg.Page))}
}

func (n *Navigation) failure(h gemini.Header, pageURL *url.URL) Result {
	if h.Status == gemini.StatusSlowDown {
		return n.errorPage(pageURL, h.Status.Label(),
			"Slow down: please wait at least "+strconv.FormatUint(h.Seconds, 10)+" seconds before retrying")
	}
	msg := h.Status.Label()
	if h.Message != "" {
		msg += ": " + h.Message
	}
	return n.errorPage(pageURL, h.Status.Label(), msg)
}

func (n *Navigation) certificate(h gemini.Header, pageURL *url.URL) Result {
	return Result{MIME: MIMEHTML, Body: []byte(certificatePage(h, pageURL, n.cfg.Page))}
}

func (n *Navigation) errorPage(pageURL *url.URL, title, message string) Result {
	return Result{MIME: MIMEHTML, Body: []byte(errorDocument(title, message, pageURL, n.cfg.Page))}
}

func resolve(base *url.URL, target string) (*url.URL, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errEmptyTarget
	}
	ref, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if base == nil {
		if !ref.IsAbs() {
			return nil, errRelativeTarget
		}
		return ref, nil
	}
	return base.ResolveReference(ref), nil
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if strings.EqualFold(u.Scheme, gemini.Scheme) {
		return gemini.DefaultPort
	}
	return ""
}

func sameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		effectivePort(a) == effectivePort(b)
}

// QueryURL returns pageURL with value as its entire query string, the way
// an input response expects the answer to be sent.
func QueryURL(pageURL *url.URL, value string) *url.URL {
	u := *pageURL
	u.RawQuery = strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
	u.ForceQuery = value == ""
	u.Fragment = ""
	u.RawFragment = ""
	return &u
}
