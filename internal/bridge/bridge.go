// Package bridge serves Gemini resources to a web view's custom URL scheme
// handler. A Bridge runs at most one load at a time: starting a new load
// cancels the previous one, and Stop abandons the current load without
// delivering anything.
package bridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitr/gemini-ios-sub000/internal/dispatch"
	"github.com/pitr/gemini-ios-sub000/internal/gemini"
	"github.com/pitr/gemini-ios-sub000/internal/identity"
	"github.com/pitr/gemini-ios-sub000/internal/log"
	"github.com/pitr/gemini-ios-sub000/internal/pubsub"
	"github.com/pitr/gemini-ios-sub000/internal/tracing"
	"github.com/pitr/gemini-ios-sub000/internal/transport"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("bridge: closed")

// Response headers set on every delivered response.
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
)

// Fetcher performs one network exchange.
type Fetcher interface {
	Fetch(ctx context.Context, req *gemini.Request, id *tls.Certificate) (*transport.Result, error)
}

// Identities supplies the client certificate for a host.
type Identities interface {
	ActiveFor(host string) (*identity.Identity, bool)
	Certificate(id *identity.Identity) (*tls.Certificate, error)
	RecordUse(id *identity.Identity)
}

// Response is delivered once per completed load.
type Response struct {
	Headers map[string]string
	Body    []byte

	// Err is the failure behind an error page. Body is displayable either way.
	Err error

	Status     gemini.Status
	Redirect   *url.URL
	AutoFollow bool
}

// LoadEvent describes a load lifecycle transition.
type LoadEvent struct {
	URL    string
	Status gemini.Status
	MIME   string
	Bytes  int
	Err    error
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithIdentities presents the active identity for each host.
func WithIdentities(ids Identities) Option {
	return func(b *Bridge) {
		b.identities = ids
	}
}

// WithDispatch overrides the dispatch configuration.
func WithDispatch(cfg dispatch.Config) Option {
	return func(b *Bridge) {
		b.nav = dispatch.NewNavigation(cfg)
	}
}

// WithTracer sets the tracer used for load spans.
func WithTracer(t trace.Tracer) Option {
	return func(b *Bridge) {
		b.tracer = t
	}
}

// Bridge connects scheme handler requests to the Gemini client.
type Bridge struct {
	fetcher    Fetcher
	identities Identities
	tracer     trace.Tracer
	broker     *pubsub.Broker[LoadEvent]

	mu     sync.Mutex
	nav    *dispatch.Navigation
	cancel context.CancelFunc
	gen    uint64
	closed bool

	wg conc.WaitGroup
}

// New creates a bridge that fetches through f.
func New(f Fetcher, opts ...Option) *Bridge {
	b := &Bridge{
		fetcher: f,
		tracer:  tracing.Tracer("gemini/bridge"),
		broker:  pubsub.NewBroker[LoadEvent](),
		nav:     dispatch.NewNavigation(dispatch.DefaultConfig()),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe returns load lifecycle events until ctx is done or the bridge
// is closed.
func (b *Bridge) Subscribe(ctx context.Context) <-chan pubsub.Event[LoadEvent] {
	return b.broker.Subscribe(ctx)
}

// Start begins loading rawURL, cancelling any load in progress. The returned
// channel yields at most one Response and is then closed; it is closed
// without a value when the load is stopped or superseded.
func (b *Bridge) Start(ctx context.Context, rawURL string) (<-chan Response, error) {
	req, err := gemini.NewRequest(rawURL)
	if errors.Is(err, gemini.ErrURLTooLong) {
		return b.reject(rawURL, err)
	}
	if err != nil {
		return nil, fmt.Errorf("starting load: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if b.cancel != nil {
		b.cancel()
	}

	loadCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.gen++
	gen := b.gen

	out := make(chan Response, 1)
	b.broker.Publish(pubsub.LoadStarted, LoadEvent{URL: req.String()})
	log.Debug(log.CatBridge, "load started", "url", req.String(), "gen", gen)

	b.wg.Go(func() {
		defer cancel()
		defer close(out)
		b.load(loadCtx, gen, req, out)
	})
	return out, nil
}

// reject renders a URL that parsed but cannot be sent as a request line.
// It supersedes the load in progress like any other navigation.
func (b *Bridge) reject(rawURL string, cause error) (<-chan Response, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("starting load: %w", cause)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	b.stopLocked()
	res := b.nav.Fail(cause, u)

	out := make(chan Response, 1)
	out <- newResponse(res, cause)
	close(out)

	b.broker.Publish(pubsub.LoadStarted, LoadEvent{URL: u.String()})
	b.broker.Publish(pubsub.LoadFailed, LoadEvent{URL: u.String(), MIME: res.MIME, Bytes: len(res.Body), Err: cause})
	log.Warn(log.CatBridge, "load rejected", "error", cause)
	return out, nil
}

func newResponse(res dispatch.Result, err error) Response {
	return Response{
		Headers: map[string]string{
			HeaderContentType:   res.MIME,
			HeaderContentLength: strconv.Itoa(len(res.Body)),
		},
		Body:       res.Body,
		Err:        err,
		Status:     res.Status,
		Redirect:   res.Redirect,
		AutoFollow: res.AutoFollow,
	}
}

// Stop cancels the load in progress. Its channel closes without a value.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

// Reconfigure replaces the dispatch settings used by later loads. The
// redirect counter starts over.
func (b *Bridge) Reconfigure(cfg dispatch.Config) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nav = dispatch.NewNavigation(cfg)
	log.Info(log.CatBridge, "dispatch reconfigured", "max_redirects", cfg.MaxRedirects)
}

func (b *Bridge) stopLocked() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.gen++
}

// Close stops the current load, waits for background work and releases
// subscribers. Close is idempotent.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.stopLocked()
	b.mu.Unlock()

	b.wg.Wait()
	b.broker.Close()
}

func (b *Bridge) load(ctx context.Context, gen uint64, req *gemini.Request, out chan<- Response) {
	ctx, span := b.tracer.Start(ctx, tracing.SpanLoad, trace.WithAttributes(
		attribute.String(tracing.AttrURL, req.String()),
	))
	var spanErr error
	defer func() { tracing.EndSpan(span, spanErr) }()

	cert, ident := b.identityFor(req.Host())

	result, fetchErr := b.fetcher.Fetch(ctx, req, cert)
	if ctx.Err() != nil {
		b.cancelled(req)
		return
	}
	if fetchErr == nil && ident != nil {
		b.identities.RecordUse(ident)
	}

	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		b.cancelled(req)
		return
	}
	var res dispatch.Result
	if fetchErr != nil {
		res = b.nav.Fail(fetchErr, req.URL())
	} else {
		res = b.nav.Handle(result.Raw, req.URL())
	}
	redirects := b.nav.Redirects()
	b.mu.Unlock()

	span.SetAttributes(
		attribute.Int(tracing.AttrStatus, int(res.Status)),
		attribute.String(tracing.AttrMIME, res.MIME),
		attribute.Int(tracing.AttrBytes, len(res.Body)),
		attribute.Int(tracing.AttrRedirects, redirects),
	)

	resp := newResponse(res, fetchErr)

	ev := LoadEvent{URL: req.String(), Status: res.Status, MIME: res.MIME, Bytes: len(res.Body), Err: fetchErr}
	if fetchErr != nil {
		spanErr = fetchErr
		b.broker.Publish(pubsub.LoadFailed, ev)
		log.Warn(log.CatBridge, "load failed", "url", req.String(), "error", fetchErr)
	} else {
		b.broker.Publish(pubsub.LoadFinished, ev)
		log.Debug(log.CatBridge, "load finished", "url", req.String(), "status", int(res.Status), "bytes", len(res.Body))
	}

	out <- resp
}

func (b *Bridge) identityFor(host string) (*tls.Certificate, *identity.Identity) {
	if b.identities == nil {
		return nil, nil
	}
	ident, ok := b.identities.ActiveFor(host)
	if !ok {
		return nil, nil
	}
	cert, err := b.identities.Certificate(ident)
	if err != nil {
		log.ErrorErr(log.CatBridge, "loading identity certificate", err, "host", host, "identity", ident.ID)
		return nil, nil
	}
	return cert, ident
}

func (b *Bridge) cancelled(req *gemini.Request) {
	b.broker.Publish(pubsub.LoadCancelled, LoadEvent{URL: req.String()})
	log.Debug(log.CatBridge, "load cancelled", "url", req.String())
}
