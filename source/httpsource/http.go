// Package httpsource implements source.Source against a flag server over HTTP.
//
// Protocol (per namespace):
//
//	HEAD {BaseURL}/api/flags/{namespace}  -> 200, ETag: <version>
//	GET  {BaseURL}/api/flags/{namespace}  -> 200, ETag: <version>, body: {"flags": [...]}
//
// The body format follows Config.Format (json, msgpack, cbor, protobuf).
package httpsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/unkn0wn-root/flagcache/source"
)

const (
	defaultMaxBody = 4 << 20
	opVersion      = "version"
	opSnapshot     = "snapshot"
)

var ErrBaseURLRequired = errors.New("httpsource: base URL is required")

type Config struct {
	BaseURL string       // e.g. "https://flags.internal:3000"
	Client  *http.Client // nil => http.DefaultClient
	Format  Format       // "" => FormatJSON
	APIKey  string       // sent as "Authorization: ApiKey <key>" when set
	MaxBody int          // max accepted body bytes; 0 => 4 MiB
}

type Source struct {
	base    *url.URL
	client  *http.Client
	apiKey  string
	maxBody int
	decoder decoder
	accept  string
}

var _ source.Source = (*Source)(nil)

func New(cfg Config) (*Source, error) {
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("httpsource: base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("httpsource: base URL scheme %q not supported", base.Scheme)
	}

	s := &Source{
		base:    base,
		client:  cfg.Client,
		apiKey:  cfg.APIKey,
		maxBody: cfg.MaxBody,
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	if s.maxBody <= 0 {
		s.maxBody = defaultMaxBody
	}
	s.decoder, s.accept, err = newDecoder(cfg.Format, s.maxBody)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FetchVersion issues a HEAD and returns the ETag.
func (s *Source) FetchVersion(ctx context.Context, ns string) (string, error) {
	resp, err := s.do(ctx, http.MethodHead, ns, opVersion)
	if err != nil {
		return "", err
	}
	defer drain(resp.Body)

	if err := checkStatus(resp, ns, opVersion); err != nil {
		return "", err
	}
	return etag(resp, ns, opVersion)
}

// FetchSnapshot issues a GET and decodes the body into a snapshot tagged
// with the response's ETag.
func (s *Source) FetchSnapshot(ctx context.Context, ns string) (source.Snapshot, error) {
	resp, err := s.do(ctx, http.MethodGet, ns, opSnapshot)
	if err != nil {
		return source.Snapshot{}, err
	}
	defer drain(resp.Body)

	if err := checkStatus(resp, ns, opSnapshot); err != nil {
		return source.Snapshot{}, err
	}
	ver, err := etag(resp, ns, opSnapshot)
	if err != nil {
		return source.Snapshot{}, err
	}

	// read one byte past the limit so oversize bodies reach the codec limit check
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(s.maxBody)+1))
	if err != nil {
		return source.Snapshot{}, &source.TransportError{Op: opSnapshot, Namespace: ns, Err: err}
	}
	if len(body) == 0 {
		return source.Snapshot{}, &source.ProtocolError{Op: opSnapshot, Namespace: ns, Status: resp.StatusCode, Reason: "empty body"}
	}

	flags, err := s.decoder.decode(body)
	if err != nil {
		return source.Snapshot{}, &source.DecodeError{Namespace: ns, Err: err}
	}
	return source.NewSnapshot(ver, flags...), nil
}

func (s *Source) endpoint(ns string) string {
	u := *s.base
	u.Path = u.Path + "/api/flags/" + ns
	return u.String()
}

func (s *Source) do(ctx context.Context, method, ns, op string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.endpoint(ns), nil)
	if err != nil {
		return nil, &source.TransportError{Op: op, Namespace: ns, Err: err}
	}
	if method == http.MethodGet {
		req.Header.Set("Accept", s.accept)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "ApiKey "+s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &source.TransportError{Op: op, Namespace: ns, Err: err}
	}
	return resp, nil
}

func checkStatus(resp *http.Response, ns, op string) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	return &source.ProtocolError{Op: op, Namespace: ns, Status: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
}

func etag(resp *http.Response, ns, op string) (string, error) {
	v := resp.Header.Get("ETag")
	if v == "" {
		return "", &source.ProtocolError{Op: op, Namespace: ns, Status: resp.StatusCode, Reason: "missing ETag header"}
	}
	return v, nil
}

// drain lets the transport reuse the connection.
func drain(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64<<10))
	_ = rc.Close()
}
