package httpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/loykin/apireplay/internal/common"
	"github.com/loykin/apireplay/internal/constants"
	"golang.org/x/net/publicsuffix"
)

// Options configures the shared transport and the per-session clients built
// on top of it.
type Options struct {
	Insecure            bool
	MinTLSVersion       string
	MaxTLSVersion       string
	TLS                 *tls.Config // used as-is when set; version strings are ignored
	Proxy               string
	MaxIdleConnsPerHost int
	FollowRedirects     bool
}

// ParseTLSVersion converts "1.2", "12", "tls1.2" or "tls12" style strings to
// the crypto/tls constant. Unknown input yields 0.
func ParseTLSVersion(version string) uint16 {
	switch strings.TrimSpace(strings.ToLower(version)) {
	case "1.0", "10", "tls1.0", "tls10":
		return tls.VersionTLS10
	case "1.1", "11", "tls1.1", "tls11":
		return tls.VersionTLS11
	case "1.2", "12", "tls1.2", "tls12":
		return tls.VersionTLS12
	case "1.3", "13", "tls1.3", "tls13":
		return tls.VersionTLS13
	default:
		return 0
	}
}

// TLSConfig returns the TLS settings described by o, or nil when o leaves
// the Go defaults alone.
func (o Options) TLSConfig() *tls.Config {
	if o.TLS != nil {
		return o.TLS.Clone()
	}
	minV := ParseTLSVersion(o.MinTLSVersion)
	maxV := ParseTLSVersion(o.MaxTLSVersion)
	if minV == 0 && maxV == 0 && !o.Insecure {
		return nil
	}
	// #nosec G402 -- versions come from operator configuration
	cfg := &tls.Config{MinVersion: minV, MaxVersion: maxV}
	if o.Insecure {
		// #nosec G402 -- load targets are often staging hosts with self-signed certs
		cfg.InsecureSkipVerify = true
	}
	return cfg
}

// NewTransport builds the connection pool shared by every session of a run.
// Compression is left to the caller: replayed requests carry their recorded
// Accept-Encoding, so responses arrive exactly as encoded on the wire.
func NewTransport(o Options) (*http.Transport, error) {
	proxy := http.ProxyFromEnvironment
	if p := strings.TrimSpace(o.Proxy); p != "" {
		u, err := url.Parse(p)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", p)
		}
		proxy = http.ProxyURL(u)
	}
	perHost := o.MaxIdleConnsPerHost
	if perHost <= 0 {
		perHost = constants.DefaultMaxIdleConnsPerHost
	}
	dialer := &net.Dialer{Timeout: constants.DefaultDialTimeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:               proxy,
		DialContext:         dialer.DialContext,
		TLSClientConfig:     o.TLSConfig(),
		TLSHandshakeTimeout: constants.DefaultTLSHandshakeTimeout,
		IdleConnTimeout:     constants.DefaultIdleConnTimeout,
		MaxIdleConns:        constants.DefaultMaxIdleConns,
		MaxIdleConnsPerHost: perHost,
		DisableCompression:  true,
		ForceAttemptHTTP2:   true,
	}, nil
}

type (
	exactHeadersKey    struct{}
	followRedirectsKey struct{}
)

// WithExactHeaders attaches the full header set a request must carry. The
// session client replaces whatever resty computed with h, so no default
// User-Agent or sniffed Content-Type is added to a replayed request.
func WithExactHeaders(ctx context.Context, h http.Header) context.Context {
	return context.WithValue(ctx, exactHeadersKey{}, h)
}

// WithFollowRedirects overrides Options.FollowRedirects for one request.
func WithFollowRedirects(ctx context.Context, follow bool) context.Context {
	return context.WithValue(ctx, followRedirectsKey{}, follow)
}

func exactHeaders(ctx context.Context) (http.Header, bool) {
	h, ok := ctx.Value(exactHeadersKey{}).(http.Header)
	return h, ok
}

const maxRedirects = 10

// NewSessionClient returns a resty client for one virtual user: a private
// cookie jar over the shared round tripper rt. Redirects are returned to the
// caller unless following is enabled in o or on the request context.
func NewSessionClient(rt http.RoundTripper, o Options, logger *common.Logger) *resty.Client {
	// cookiejar.New never fails.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	hc := &http.Client{
		Transport: rt,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			follow := o.FollowRedirects
			if v, ok := req.Context().Value(followRedirectsKey{}).(bool); ok {
				follow = v
			}
			if !follow {
				return http.ErrUseLastResponse
			}
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	if logger == nil {
		logger = common.GetLogger()
	}
	c := resty.NewWithClient(hc)
	c.SetLogger(common.RestyLogger{L: logger.WithComponent("resty")})
	c.SetPreRequestHook(func(_ *resty.Client, req *http.Request) error {
		if h, ok := exactHeaders(req.Context()); ok {
			req.Header = h.Clone()
			if host := h.Get("Host"); host != "" {
				req.Host = host
			}
		}
		return nil
	})
	return c
}

// New returns a standalone resty client with its own transport. It is used
// for auxiliary calls such as readiness checks and token endpoints.
func New(o Options) *resty.Client {
	c := resty.New()
	c.SetLogger(common.RestyLogger{L: common.GetLogger().WithComponent("resty")})
	if cfg := o.TLSConfig(); cfg != nil {
		c.SetTLSClientConfig(cfg)
	}
	if p := strings.TrimSpace(o.Proxy); p != "" {
		c.SetProxy(p)
	}
	return c
}
