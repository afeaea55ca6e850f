package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

const dialTimeout = 30 * time.Second

// fingerprintTransport sends https requests over a Chrome-fingerprinted TLS
// connection, trying HTTP/2 first and falling back to HTTP/1.1. Plain http
// and proxied requests go through base.
type fingerprintTransport struct {
	base *http.Transport
	h2   *http2.Transport
	h1   *http.Transport
}

func newFingerprintTransport(base *http.Transport, insecure bool) *fingerprintTransport {
	h1 := base.Clone()
	h1.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialChrome(ctx, network, addr, insecure, []string{"http/1.1"})
	}

	return &fingerprintTransport{
		base: base,
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialChrome(ctx, network, addr, insecure, nil)
			},
		},
		h1: h1,
	}
}

func (t *fingerprintTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" || t.proxied(req) {
		return t.base.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	// The h2 attempt may have consumed the body.
	if req.Body != nil && req.GetBody == nil {
		return nil, err
	}
	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		if retry.Body, err = req.GetBody(); err != nil {
			return nil, err
		}
	}
	return t.h1.RoundTrip(retry)
}

func (t *fingerprintTransport) proxied(req *http.Request) bool {
	if t.base.Proxy == nil {
		return false
	}
	u, err := t.base.Proxy(req)
	return err == nil && u != nil
}

// chromeSpec returns the Chrome 120 ClientHello. A non-nil alpn replaces
// the advertised protocols; the preset ignores Config.NextProtos.
func chromeSpec(alpn []string) (*utls.ClientHelloSpec, error) {
	spec, err := utls.UTLSIdToSpec(utls.HelloChrome_120)
	if err != nil {
		return nil, err
	}
	if alpn != nil {
		for _, ext := range spec.Extensions {
			if a, ok := ext.(*utls.ALPNExtension); ok {
				a.AlpnProtocols = append([]string(nil), alpn...)
			}
		}
	}
	return &spec, nil
}

// dialChrome opens a TLS connection with the Chrome 120 ClientHello.
// A nil alpn keeps Chrome's own h2 + http/1.1 advertisement.
func dialChrome(ctx context.Context, network, addr string, insecure bool, alpn []string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	spec, err := chromeSpec(alpn)
	if err != nil {
		return nil, fmt.Errorf("client hello: %w", err)
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	tlsConn := utls.UClient(conn, &utls.Config{
		ServerName:         host,
		InsecureSkipVerify: insecure, //nolint:gosec // operator opt-in
		MinVersion:         tls.VersionTLS12,
	}, utls.HelloCustom)
	if err := tlsConn.ApplyPreset(spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply client hello: %w", err)
	}

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	if proto := tlsConn.ConnectionState().NegotiatedProtocol; alpn != nil && proto != "" && !slices.Contains(alpn, proto) {
		tlsConn.Close()
		return nil, fmt.Errorf("tls handshake: server chose %q outside %v", proto, alpn)
	}
	return tlsConn, nil
}
