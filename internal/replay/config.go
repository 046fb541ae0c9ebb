package replay

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/loykin/apireplay/internal/auth"
	"github.com/loykin/apireplay/internal/common"
	"github.com/loykin/apireplay/internal/sink"
)

// RetryConfig controls the single retry of a network or timeout failure.
type RetryConfig struct {
	Enabled bool
	Delay   time.Duration
}

// Config replaces all process-wide replay state. It is read once by New.
type Config struct {
	// Timeout bounds each HTTP call, including reading the body.
	Timeout time.Duration
	// FollowRedirects applies unless the script sets follow_redirects.
	FollowRedirects bool

	TLS                 *tls.Config
	Proxy               string
	MaxIdleConnsPerHost int

	Retry RetryConfig

	// FailFast makes every failed step fatal, except steps marked fatal: false.
	FailFast bool
	// FatalSteps lists step names or test ids that abort the iteration on failure.
	FatalSteps []string
	// RenderBody is the default for text bodies without render_body. Nil means true.
	RenderBody *bool

	Sink sink.Sink
	// Env holds global tokens. They override script env constants.
	Env  map[string]string
	Auth []auth.Auth

	// Transport replaces the pooled transport, mostly for tests.
	Transport http.RoundTripper
	Logger    *common.Logger
}

func (c Config) renderBody() bool {
	return c.RenderBody == nil || *c.RenderBody
}
