package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/loykin/apireplay/internal/auth/basic"
	"github.com/loykin/apireplay/internal/auth/custom_jwt"
	"github.com/loykin/apireplay/internal/auth/oauth2"
)

// Method acquires the value a request puts in its Authorization header,
// for example "Basic ..." or "Bearer ...".
type Method interface {
	Acquire(ctx context.Context) (string, error)
}

// Factory builds a Method from a decoded config map.
type Factory func(spec map[string]interface{}) (Method, error)

var (
	providersMu sync.RWMutex
	providers   = map[string]Factory{}
)

func normalizeKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Register adds a provider type. Registering an existing type replaces it.
func Register(typ string, f Factory) {
	key := normalizeKey(typ)
	if key == "" || f == nil {
		return
	}
	providersMu.Lock()
	providers[key] = f
	providersMu.Unlock()
}

// Registered lists the known provider types.
func Registered() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	out := make([]string, 0, len(providers))
	for k := range providers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewMethod builds a Method of the given type from spec.
func NewMethod(typ string, spec map[string]interface{}) (Method, error) {
	providersMu.RLock()
	f, ok := providers[normalizeKey(typ)]
	providersMu.RUnlock()
	if !ok {
		return nil, errors.New("auth: unsupported provider type: " + typ)
	}
	return f(spec)
}

func init() {
	Register("basic", func(spec map[string]interface{}) (Method, error) {
		var c basic.Config
		if err := mapstructure.Decode(spec, &c); err != nil {
			return nil, err
		}
		return basic.Method{C: c}, nil
	})

	Register("oauth2", func(spec map[string]interface{}) (Method, error) {
		var c oauth2.Config
		if err := mapstructure.Decode(spec, &c); err != nil {
			return nil, err
		}
		return c.Method()
	})

	Register("jwt", func(spec map[string]interface{}) (Method, error) {
		var c custom_jwt.Config
		if err := mapstructure.Decode(spec, &c); err != nil {
			return nil, err
		}
		return custom_jwt.Method{C: c}, nil
	})
}
