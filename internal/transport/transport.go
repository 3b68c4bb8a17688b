// Package transport selects the HTTP round tripper used to reach the
// storefront API.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Fingerprint names the TLS client hello presented to the storefront API.
type Fingerprint string

const (
	// FingerprintDefault uses Go's TLS stack via http.DefaultTransport.
	FingerprintDefault Fingerprint = "default"

	// FingerprintChrome presents a Chrome client hello. Storefront APIs behind
	// CDNs with JA3 bot scoring rate-limit the stock Go fingerprint.
	FingerprintChrome Fingerprint = "chrome"
)

// ParseFingerprint maps a config value to a Fingerprint.
func ParseFingerprint(s string) (Fingerprint, error) {
	switch Fingerprint(strings.ToLower(strings.TrimSpace(s))) {
	case "", FingerprintDefault:
		return FingerprintDefault, nil
	case FingerprintChrome:
		return FingerprintChrome, nil
	default:
		return "", fmt.Errorf("unknown TLS fingerprint %q (want chrome or default)", s)
	}
}

// New returns the round tripper for fp. A nil result means the caller should
// use http.DefaultTransport.
func New(fp Fingerprint, timeout time.Duration) http.RoundTripper {
	if fp == FingerprintChrome {
		return NewChromeTransport(timeout)
	}
	return nil
}

// =============================================================================
// CHROME TLS TRANSPORT
// =============================================================================
//
// uTLS with HelloChrome_Auto supplies the client hello; ALPN negotiates h2 or
// http/1.1, and x/net's http2.Transport does the framing when h2 wins.
// =============================================================================

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint. Supports both HTTP/2 and HTTP/1.1 based on ALPN negotiation.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
	}

	h1Transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
		ForceAttemptHTTP2: false,
	}

	return &chromeTransport{
		h2: h2Transport,
		h1: h1Transport,
	}
}

// chromeTransport wraps HTTP/2 and HTTP/1.1 transports with Chrome TLS fingerprint.
type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip implements http.RoundTripper.
// Tries HTTP/2 first and falls back to HTTP/1.1. Requests with a body that
// cannot be replayed are not retried on the fallback.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, err
		}
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, err
		}
		req = req.Clone(req.Context())
		req.Body = body
	}
	return t.h1.RoundTrip(req)
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint.
func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConfig := &utls.Config{
		ServerName: host,
	}
	tlsConn := utls.UClient(conn, tlsConfig, utls.HelloChrome_Auto)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
