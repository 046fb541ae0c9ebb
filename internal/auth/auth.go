package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/loykin/apireplay/internal/common"
	"github.com/loykin/apireplay/internal/util"
	"github.com/loykin/apireplay/pkg/env"
	"golang.org/x/oauth2"
)

// Auth is one configured provider. Requests reference its value as
// {{.auth.NAME}}.
type Auth struct {
	Type   string                 `mapstructure:"type" yaml:"type"`
	Name   string                 `mapstructure:"name" yaml:"name"`
	Config map[string]interface{} `mapstructure:"config" yaml:"config"`
}

// Validate checks the entry without contacting anything.
func (a Auth) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("auth: name is required")
	}
	if strings.TrimSpace(a.Type) == "" {
		return fmt.Errorf("auth %s: type is required", a.Name)
	}
	_, err := NewMethod(a.Type, a.Config)
	if err != nil {
		return fmt.Errorf("auth %s: %w", a.Name, err)
	}
	return nil
}

// Method renders the config against e, so {{.env.worker}} and secrets from
// the environment are substituted, then builds the provider.
func (a Auth) Method(e *env.Env) (Method, error) {
	cfg := a.Config
	if cfg == nil {
		cfg = map[string]interface{}{}
	}
	rendered, _ := util.RenderAnyTemplate(cfg, e).(map[string]interface{})
	if rendered == nil {
		rendered = cfg
	}
	return NewMethod(a.Type, rendered)
}

// WithHTTPClient makes token requests use hc, typically built over the
// run's shared transport so TLS and proxy settings apply.
func WithHTTPClient(ctx context.Context, hc *http.Client) context.Context {
	if hc == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, hc)
}

// Install binds one lazy value per entry into e.Auth. Nothing is acquired
// until a template first references the name. A successful result is
// cached for e and every clone of it; a failure is retried on the next
// reference. Each worker installs into its own Env, so values are never
// shared across workers.
func Install(ctx context.Context, e *env.Env, auths []Auth) error {
	logger := common.GetLogger().WithComponent("auth")
	for _, a := range auths {
		a := a
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return fmt.Errorf("auth: name is required")
		}
		lz := e.MakeLazy(func(cur *env.Env) (string, error) {
			// Callers render through the template layer, which names the provider.
			m, err := a.Method(cur)
			if err != nil {
				return "", err
			}
			v, err := m.Acquire(ctx)
			if err != nil {
				logger.WithAuth(name).Error("acquisition failed", "type", a.Type, "error", err)
				return "", err
			}
			logger.WithAuth(name).Debug("acquired", "type", a.Type)
			return v, nil
		})
		if err := e.Set("auth", name, lz); err != nil {
			return fmt.Errorf("auth %s: %w", name, err)
		}
	}
	return nil
}
