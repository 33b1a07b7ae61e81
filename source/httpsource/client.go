package httpsource

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// NewHTTP2Client builds a client that negotiates HTTP/2 over TLS and keeps
// idle connections between polls. timeout bounds each request end to end
// (0 => none; the cache's FetchTimeout still applies).
func NewHTTP2Client(timeout time.Duration, tlsConf *tls.Config) (*http.Client, error) {
	if tlsConf == nil {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:     tlsConf,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}
	if err := http2.ConfigureTransport(t); err != nil {
		return nil, fmt.Errorf("httpsource: configure http2: %w", err)
	}
	return &http.Client{Transport: t, Timeout: timeout}, nil
}
