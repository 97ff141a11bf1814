package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pitr/gemini-ios-sub000/internal/gemini"
	"github.com/pitr/gemini-ios-sub000/internal/identity"
	"github.com/pitr/gemini-ios-sub000/internal/testutil"
	"github.com/pitr/gemini-ios-sub000/internal/tofu"
)

func mustRequest(t *testing.T, raw string) *gemini.Request {
	t.Helper()
	req, err := gemini.NewRequest(raw)
	require.NoError(t, err)
	return req
}

func TestFetch_ReturnsWholeResponse(t *testing.T) {
	srv := testutil.NewBuilder(t).WithStandardCapsule().Start()
	client := NewClient(tofu.NewCache())

	res, err := client.Fetch(context.Background(), mustRequest(t, srv.URL("/about#frag")), nil)
	require.NoError(t, err)
	require.Equal(t, "20 text/gemini; charset=utf-8\r\n## About\n* one\n* two\n", string(res.Raw))

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, srv.URL("/about"), reqs[0].Line, "fragment is never sent")
}

func TestFetch_RecordsServerFingerprint(t *testing.T) {
	srv := testutil.NewBuilder(t).WithStandardCapsule().Start()
	cache := tofu.NewCache()
	client := NewClient(cache)

	res, err := client.Fetch(context.Background(), mustRequest(t, srv.URL("/")), nil)
	require.NoError(t, err)

	want := tofu.FromCertificate(srv.Certificate())
	require.Equal(t, want, res.Fingerprint)
	require.Equal(t, srv.Certificate().Raw, res.PeerCertificate.Raw)

	got, ok := cache.Get("127.0.0.1")
	require.True(t, ok, "fingerprint is keyed by the request host")
	require.Equal(t, want, got)
}

func TestFetch_ChangedFingerprintIsStillAccepted(t *testing.T) {
	srv := testutil.NewBuilder(t).WithStandardCapsule().Start()
	cache := tofu.NewCache()
	cache.Record("127.0.0.1", tofu.NewFingerprint([]byte("some other certificate")))

	_, err := NewClient(cache).Fetch(context.Background(), mustRequest(t, srv.URL("/")), nil)
	require.NoError(t, err)

	got, _ := cache.Get("127.0.0.1")
	require.Equal(t, tofu.FromCertificate(srv.Certificate()), got)
}

func TestFetch_PresentsClientIdentity(t *testing.T) {
	srv := testutil.NewBuilder(t).WithStandardCapsule().Start()

	data, _, err := identity.Generate(1, "tester")
	require.NoError(t, err)
	cert, err := identity.Decode(data)
	require.NoError(t, err)

	_, err = NewClient(tofu.NewCache()).Fetch(context.Background(), mustRequest(t, srv.URL("/private")), &cert)
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].ClientCert, "server should observe the client certificate")
	require.Equal(t, cert.Leaf.Raw, reqs[0].ClientCert.Raw)
}

func TestFetch_EmptyResponseIsNotAnError(t *testing.T) {
	srv := testutil.NewBuilder(t).WithStandardCapsule().Start()

	res, err := NewClient(tofu.NewCache()).Fetch(context.Background(), mustRequest(t, srv.URL("/empty")), nil)
	require.NoError(t, err)
	require.Empty(t, res.Raw)
}

func TestFetch_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = NewClient(tofu.NewCache()).Fetch(context.Background(), mustRequest(t, "gemini://"+addr+"/"), nil)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, OpDial, transportErr.Op)
	require.Equal(t, addr, transportErr.Addr)
}

func TestFetch_HandshakeFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte("this is not tls at all\r\n"))
		_ = conn.Close()
	}()

	_, err = NewClient(tofu.NewCache()).Fetch(context.Background(), mustRequest(t, "gemini://"+ln.Addr().String()+"/"), nil)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, OpHandshake, transportErr.Op)
}

func TestFetch_CancelClosesConnection(t *testing.T) {
	srv := testutil.NewBuilder(t).WithRoute("/hang", testutil.Hang()).Start()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := NewClient(tofu.NewCache()).Fetch(ctx, mustRequest(t, srv.URL("/hang")), nil)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return len(srv.Requests()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		require.True(t, IsCancelled(err), "got %v", err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "Fetch did not return after cancel")
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv := testutil.NewBuilder(t).WithRoute("/hang", testutil.Hang()).Start()
	client := NewClient(tofu.NewCache(), WithConfig(Config{Timeout: 100 * time.Millisecond}))

	_, err := client.Fetch(context.Background(), mustRequest(t, srv.URL("/hang")), nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestTransportError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &TransportError{Op: OpDial, Addr: "example.org:1965", Err: inner}
	require.ErrorIs(t, err, inner)
	require.Equal(t, "dial example.org:1965: connection refused", err.Error())
}
