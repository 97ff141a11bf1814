// Package testutil runs throwaway Gemini servers for tests.
package testutil

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Request is what the server observed for one connection.
type Request struct {
	Line       string // request line without CRLF
	ClientCert *x509.Certificate
}

// Builder accumulates routes and starts a server.
type Builder struct {
	t      *testing.T
	routes map[string]routeData
}

// NewBuilder creates a builder bound to t.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t, routes: make(map[string]routeData)}
}

// WithRoute answers requests for path (path plus optional query).
func (b *Builder) WithRoute(path string, opts ...RouteOption) *Builder {
	route := defaultRoute()
	for _, opt := range opts {
		opt(&route)
	}
	b.routes[path] = route
	return b
}

// Server is a running Gemini server on 127.0.0.1.
type Server struct {
	t        *testing.T
	listener net.Listener
	cert     *x509.Certificate
	routes   map[string]routeData

	mu       sync.Mutex
	requests []Request
	wg       sync.WaitGroup
	done     chan struct{}
}

// Start launches the server. It is stopped when the test ends.
func (b *Builder) Start() *Server {
	b.t.Helper()

	tlsCert, leaf := selfSigned(b.t, "localhost")
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{tlsCert},
		ClientAuth:   tls.RequestClientCert,
	})
	require.NoError(b.t, err)

	s := &Server{
		t:        b.t,
		listener: ln,
		cert:     leaf,
		routes:   b.routes,
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	b.t.Cleanup(s.Close)
	return s
}

// URL returns gemini://127.0.0.1:<port><path>.
func (s *Server) URL(path string) string {
	return "gemini://" + s.listener.Addr().String() + path
}

// Host returns the listener address.
func (s *Server) Host() string {
	return s.listener.Addr().String()
}

// Certificate is the server's leaf certificate.
func (s *Server) Certificate() *x509.Certificate {
	return s.cert
}

// Requests returns the requests observed so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Close stops accepting and waits for open connections.
func (s *Server) Close() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	_ = s.listener.Close()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn.(*tls.Conn))
		}()
	}
}

func (s *Server) handle(conn *tls.Conn) {
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")

	req := Request{Line: line}
	if certs := conn.ConnectionState().PeerCertificates; len(certs) > 0 {
		req.ClientCert = certs[0]
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	route, ok := s.lookup(line)
	if !ok {
		_, _ = fmt.Fprintf(conn, "51 Not found\r\n")
		return
	}

	if route.hang {
		<-s.done
		return
	}
	if route.delay > 0 {
		select {
		case <-time.After(route.delay):
		case <-s.done:
			return
		}
	}

	if route.raw != nil {
		_, _ = conn.Write(route.raw)
		return
	}
	_, _ = fmt.Fprintf(conn, "%d %s\r\n", route.status, route.meta)
	_, _ = conn.Write(route.body)
}

func (s *Server) lookup(line string) (routeData, bool) {
	u, err := url.Parse(line)
	if err != nil {
		return routeData{}, false
	}
	key := u.EscapedPath()
	if key == "" {
		key = "/"
	}
	if u.RawQuery != "" {
		if route, ok := s.routes[key+"?"+u.RawQuery]; ok {
			return route, true
		}
	}
	route, ok := s.routes[key]
	return route, ok
}

func selfSigned(t *testing.T, cn string) (tls.Certificate, *x509.Certificate) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     []string{cn},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, leaf
}
