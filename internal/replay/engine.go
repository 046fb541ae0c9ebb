package replay

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/loykin/apireplay/internal/auth"
	"github.com/loykin/apireplay/internal/common"
	"github.com/loykin/apireplay/internal/constants"
	"github.com/loykin/apireplay/internal/httpc"
	"github.com/loykin/apireplay/internal/retry"
	"github.com/loykin/apireplay/internal/script"
	"github.com/loykin/apireplay/internal/sink"
	"github.com/loykin/apireplay/pkg/env"
)

// Engine replays scripts. It owns the connection pool shared by all of its
// sessions and nothing else that changes during a run.
type Engine struct {
	cfg       Config
	transport http.RoundTripper
	globals   *env.Env
	fatal     map[string]struct{}
	retry     *retry.Config
}

// New validates cfg and builds the shared transport.
func New(cfg Config) (*Engine, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultRequestTimeout
	}
	if cfg.Sink == nil {
		cfg.Sink = sink.Discard{}
	}
	if cfg.Logger == nil {
		cfg.Logger = common.GetLogger()
	}

	seen := map[string]bool{}
	for _, a := range cfg.Auth {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("replay config: %w", err)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("replay config: duplicate auth name %q", a.Name)
		}
		seen[a.Name] = true
	}

	rt := cfg.Transport
	if rt == nil {
		tr, err := httpc.NewTransport(httpc.Options{
			TLS:                 cfg.TLS,
			Proxy:               cfg.Proxy,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		})
		if err != nil {
			return nil, fmt.Errorf("replay config: %w", err)
		}
		rt = tr
	}

	fatal := make(map[string]struct{}, len(cfg.FatalSteps))
	for _, s := range cfg.FatalSteps {
		if s = strings.TrimSpace(s); s != "" {
			fatal[s] = struct{}{}
		}
	}

	rc := &retry.Config{MaxRetries: 0, Component: "step-retry"}
	if cfg.Retry.Enabled {
		rc = retry.StepConfig(cfg.Retry.Delay, retryable)
	}

	globals := env.New()
	globals.Global = env.FromStringMap(cfg.Env)
	globals.Seal()

	return &Engine{cfg: cfg, transport: rt, globals: globals, fatal: fatal, retry: rc}, nil
}

// NewSession creates one virtual user with its own cookies, auth values and
// client, sharing only the engine's transport.
func (e *Engine) NewSession(worker int) *Session {
	logger := e.cfg.Logger.WithComponent("replay").WithWorker(worker)
	base := e.globals.Clone()
	_ = base.SetString("global", "worker", fmt.Sprint(worker))

	authCtx := context.Background()
	if len(e.cfg.Auth) > 0 {
		authCtx = auth.WithHTTPClient(authCtx, &http.Client{Transport: e.transport, Timeout: e.cfg.Timeout})
		if err := auth.Install(authCtx, base, e.cfg.Auth); err != nil {
			logger.Error("auth install failed", "error", err)
		}
	}
	base.Seal()

	return &Session{
		engine: e,
		worker: worker,
		base:   base,
		client: httpc.NewSessionClient(e.transport, httpc.Options{FollowRedirects: e.cfg.FollowRedirects}, logger),
		logger: logger,
	}
}

// RunIteration replays s once on a fresh session for worker 0.
func (e *Engine) RunIteration(ctx context.Context, s *script.Script) *IterationResult {
	return e.NewSession(0).RunIteration(ctx, s)
}

// Sink returns the sink measurements are recorded to.
func (e *Engine) Sink() sink.Sink { return e.cfg.Sink }

// Close releases idle pooled connections.
func (e *Engine) Close() {
	if c, ok := e.transport.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

func (e *Engine) isFatal(r *script.RequestSpec) bool {
	if r.Fatal != nil && *r.Fatal {
		return true
	}
	if _, ok := e.fatal[r.Key()]; ok {
		return true
	}
	if _, ok := e.fatal[fmt.Sprint(r.ID)]; ok {
		return true
	}
	if r.Fatal != nil {
		return false
	}
	return e.cfg.FailFast
}
