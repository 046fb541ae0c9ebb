package env

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type Str string

func (s Str) String() string { return string(s) }

func FromStringMap(m map[string]string) Map {
	if m == nil {
		return nil
	}
	out := Map{}
	for k, v := range m {
		out[k] = Str(v)
	}
	return out
}

type Val interface {
	String() string
}

// Map holds template values. A value is either a plain Str or a computed
// value such as *VarLazy.
type Map map[string]Val

// Env is the token namespace rendered into request templates.
//   - Auth: per-worker credentials, exposed as {{.auth.NAME}}
//   - Global: script and config constants, exposed as {{.env.NAME}}
//   - Local: tokens bound during one iteration, also under {{.env.NAME}}
//
// Local shadows Global. An Env is cloned for every iteration so tokens never
// leak between iterations or workers.
type Env struct {
	mu     sync.RWMutex
	Auth   Map `yaml:"-" json:"-" mapstructure:"-"`
	Global Map `yaml:"-" json:"-" mapstructure:"-"`
	Local  Map `yaml:"-" json:"env" mapstructure:"env"`
	sealed bool
}

// New returns an Env with all maps initialized.
func New() *Env {
	return &Env{Auth: Map{}, Global: Map{}, Local: Map{}}
}

// Seal makes Set operations fail.
func (e *Env) Seal() {
	if e != nil {
		e.mu.Lock()
		e.sealed = true
		e.mu.Unlock()
	}
}

// Clone copies the three maps into a new, unsealed Env. Lazy values are
// shared by reference, so an auth value acquired through one clone is seen
// by its siblings of the same worker.
func (e *Env) Clone() *Env {
	out := New()
	if e == nil {
		return out
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for k, v := range e.Auth {
		out.Auth[k] = v
	}
	for k, v := range e.Global {
		out.Global[k] = v
	}
	for k, v := range e.Local {
		out.Local[k] = v
	}
	return out
}

func (e *Env) pick(mapName string) *Map {
	switch normalizeMapName(mapName) {
	case "auth":
		return &e.Auth
	case "local":
		return &e.Local
	default:
		return &e.Global
	}
}

// GetString reads a value from the chosen map ("auth","global","local").
func (e *Env) GetString(mapName, key string) string {
	if e == nil {
		return ""
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if v, ok := (*e.pick(mapName))[key]; ok && v != nil {
		return v.String()
	}
	return ""
}

// SetString sets a string into the chosen map. Returns error if sealed.
func (e *Env) SetString(mapName, key, val string) error {
	return e.Set(mapName, key, Str(val))
}

// Set stores any Val into the chosen map. Returns error if sealed.
func (e *Env) Set(mapName, key string, val Val) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return fmt.Errorf("env: sealed (immutable)")
	}
	m := e.pick(mapName)
	if *m == nil {
		*m = Map{}
	}
	(*m)[key] = val
	return nil
}

// Bind assigns an iteration token.
func (e *Env) Bind(name, value string) error {
	return e.SetString("local", name, value)
}

func normalizeMapName(n string) string {
	switch strings.ToLower(strings.TrimSpace(n)) {
	case "auth":
		return "auth"
	case "local":
		return "local"
	default:
		return "global"
	}
}

// UnmarshalYAML decodes a plain mapping directly into Global.
func (e *Env) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	var m map[string]string
	if err := value.Decode(&m); err != nil {
		return err
	}
	e.Global = FromStringMap(m)
	return nil
}

// Lookup searches Local first, then Global.
func (e *Env) Lookup(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lookupLocked(key)
}

func (e *Env) lookupLocked(key string) (string, bool) {
	if v, ok := e.Local[key]; ok && v != nil {
		return v.String(), true
	}
	if v, ok := e.Global[key]; ok && v != nil {
		return v.String(), true
	}
	return "", false
}

// Tokens returns the sorted names bound under .env.
func (e *Env) Tokens() []string {
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	seen := map[string]struct{}{}
	for k := range e.Global {
		seen[k] = struct{}{}
	}
	for k := range e.Local {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// merged returns Global overridden by Local. Caller holds the read lock.
func (e *Env) merged() map[string]string {
	m := make(map[string]string, len(e.Global)+len(e.Local))
	for k, v := range e.Global {
		if v != nil {
			m[k] = v.String()
		}
	}
	for k, v := range e.Local {
		if v != nil {
			m[k] = v.String()
		}
	}
	return m
}
