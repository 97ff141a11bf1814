// Package transport performs a single Gemini request over TLS: one
// connection, one request line, the whole response read until the server
// closes the connection.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitr/gemini-ios-sub000/internal/gemini"
	"github.com/pitr/gemini-ios-sub000/internal/log"
	"github.com/pitr/gemini-ios-sub000/internal/tofu"
	"github.com/pitr/gemini-ios-sub000/internal/tracing"
)

// Transport operations reported in TransportError.Op.
const (
	OpDial      = "dial"
	OpHandshake = "handshake"
	OpWrite     = "write"
	OpRead      = "read"
)

// TransportError wraps a network failure for one request.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Result is the raw outcome of a fetch.
type Result struct {
	Raw             []byte
	PeerCertificate *x509.Certificate
	Fingerprint     tofu.Fingerprint
}

// Config tunes the client.
type Config struct {
	// Timeout bounds dial plus exchange. Zero leaves it to the OS.
	Timeout time.Duration
}

// Client fetches Gemini resources. It is safe for concurrent use.
type Client struct {
	cache  *tofu.Cache
	cfg    Config
	tracer trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithConfig sets the client configuration.
func WithConfig(cfg Config) Option {
	return func(c *Client) { c.cfg = cfg }
}

// NewClient returns a client recording server fingerprints into cache.
func NewClient(cache *tofu.Cache, opts ...Option) *Client {
	c := &Client{
		cache:  cache,
		tracer: tracing.Tracer("github.com/pitr/gemini-ios-sub000/internal/transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch sends req and returns every byte the server wrote. When id is not
// nil it is presented as the client certificate. The server certificate is
// always accepted; its fingerprint is recorded in the client's cache.
func (c *Client) Fetch(ctx context.Context, req *gemini.Request, id *tls.Certificate) (_ *Result, err error) {
	ctx, span := c.tracer.Start(ctx, tracing.SpanFetch,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(tracing.AttrURL, req.String()),
			attribute.String(tracing.AttrHost, req.Host()),
			attribute.String(tracing.AttrPort, req.Port()),
			attribute.Bool(tracing.AttrIdentity, id != nil),
		))
	defer func() { tracing.EndSpan(span, err) }()

	line, err := req.Line()
	if err != nil {
		return nil, err
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	result := &Result{}
	addr := req.Address()
	tlsCfg := c.tlsConfig(req.Host(), id, result)

	dialer := &tls.Dialer{Config: tlsCfg}
	log.Debug(log.CatTransport, "dialing", "addr", addr, "identity", id != nil)
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		op := OpDial
		var recordErr tls.RecordHeaderError
		var certErr *tls.CertificateVerificationError
		if errors.As(err, &recordErr) || errors.As(err, &certErr) || result.PeerCertificate != nil {
			op = OpHandshake
		}
		return nil, &TransportError{Op: op, Addr: addr, Err: err}
	}
	defer func() { _ = conn.Close() }()
	span.AddEvent(tracing.EventHandshake)

	// DialContext only honours ctx until the handshake completes.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, err := conn.Write(line); err != nil {
		return nil, &TransportError{Op: OpWrite, Addr: addr, Err: ctxErr(ctx, err)}
	}
	span.AddEvent(tracing.EventRequestSent)

	raw, err := io.ReadAll(conn)
	if err != nil {
		return nil, &TransportError{Op: OpRead, Addr: addr, Err: ctxErr(ctx, err)}
	}

	result.Raw = raw
	span.SetAttributes(
		attribute.Int(tracing.AttrBytes, len(raw)),
		attribute.String(tracing.AttrFingerprint, result.Fingerprint.String()),
	)
	log.Debug(log.CatTransport, "response received", "addr", addr, "bytes", len(raw))
	return result, nil
}

func (c *Client) tlsConfig(host string, id *tls.Certificate, result *Result) *tls.Config {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         host,
		InsecureSkipVerify: true, //nolint:gosec // G402: servers are trusted on first use, not via CAs
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return nil
			}
			leaf, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				log.Warn(log.CatTOFU, "unparsable server certificate", "host", host, "error", err)
			}
			fp := tofu.NewFingerprint(rawCerts[0])
			result.PeerCertificate = leaf
			result.Fingerprint = fp
			if c.cache != nil {
				c.cache.Record(host, fp)
			}
			return nil
		},
	}
	if id != nil {
		cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			return id, nil
		}
	}
	return cfg
}

func ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// IsCancelled reports whether err stems from context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
