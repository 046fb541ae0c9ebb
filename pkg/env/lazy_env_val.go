package env

import (
	"fmt"
	"sync"
)

// VarLazy resolves a value on first use. Workers install one VarLazy
// per auth provider so credentials are acquired only when a request needs
// them and never shared with another worker. Only a successful result is
// kept; after a failure the next Value call resolves again.
type VarLazy struct {
	mu       sync.Mutex
	done     bool
	res      string
	env      *Env
	resolver func(*Env) (string, error)
}

// Value returns the cached value, resolving it if no attempt has succeeded yet.
func (l *VarLazy) Value() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done || l.resolver == nil {
		return l.res, nil
	}
	v, err := l.resolver(l.env)
	if err != nil {
		return "", err
	}
	l.res, l.done = v, true
	return v, nil
}

// String returns the resolved value, or "" when acquisition failed.
func (l *VarLazy) String() string {
	v, _ := l.Value()
	return v
}

var _ fmt.Stringer = (*VarLazy)(nil)

// MakeLazy constructs a VarLazy bound to this Env using the provided resolver.
func (e *Env) MakeLazy(resolver func(*Env) (string, error)) *VarLazy {
	return &VarLazy{env: e, resolver: resolver}
}
