package gemini

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	// Scheme is the URL scheme served by this package.
	Scheme = "gemini"

	// DefaultPort is used when a URL carries no explicit port.
	DefaultPort = "1965"

	// MaxURLLength is the protocol limit on request URLs.
	MaxURLLength = 1024
)

// Request is a single Gemini request. It is immutable once built.
type Request struct {
	u *url.URL
}

// NewRequest parses rawURL into a request.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}
	return NewRequestURL(u)
}

// NewRequestURL builds a request from u. The fragment is dropped because it
// is never sent to the server.
func NewRequestURL(u *url.URL) (*Request, error) {
	if u == nil {
		return nil, fmt.Errorf("nil url")
	}
	if !strings.EqualFold(u.Scheme, Scheme) {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("url %q has no host", u.String())
	}

	c := *u
	c.Scheme = Scheme
	c.Fragment = ""
	c.RawFragment = ""
	c.User = nil

	if len(c.String()) > MaxURLLength {
		return nil, ErrURLTooLong
	}
	return &Request{u: &c}, nil
}

// URL returns a copy of the request URL.
func (r *Request) URL() *url.URL {
	c := *r.u
	return &c
}

// Host returns the hostname without port.
func (r *Request) Host() string {
	return r.u.Hostname()
}

// Port returns the explicit port or DefaultPort.
func (r *Request) Port() string {
	if p := r.u.Port(); p != "" {
		return p
	}
	return DefaultPort
}

// Address returns the host:port pair to dial.
func (r *Request) Address() string {
	return net.JoinHostPort(r.Host(), r.Port())
}

// Line returns the wire form "<url>\r\n".
func (r *Request) Line() ([]byte, error) {
	s := r.u.String()
	if !utf8.ValidString(s) {
		return nil, ErrRequestEncoding
	}
	return []byte(s + "\r\n"), nil
}

func (r *Request) String() string {
	return r.u.String()
}
