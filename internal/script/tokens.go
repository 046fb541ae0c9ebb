package script

import (
	"fmt"

	"github.com/loykin/apireplay/pkg/env"
)

// TokenIssue is a template reference that nothing before it can satisfy.
type TokenIssue struct {
	Step  string // request key
	Field string // where the reference appears
	Scope string // "env" or "auth"
	Name  string
	Err   error // set when the template does not parse
}

func (t TokenIssue) String() string {
	if t.Err != nil {
		return fmt.Sprintf("%s %s: %v", t.Step, t.Field, t.Err)
	}
	return fmt.Sprintf("%s %s: .%s.%s is never bound before use", t.Step, t.Field, t.Scope, t.Name)
}

// CheckTokens walks the compiled script in execution order and reports
// references to tokens not bound by script env, the extra globals, an
// earlier binding or an earlier capture. Captures may still miss at run
// time, so a clean result does not rule out UnboundTokenError.
func (s *Script) CheckTokens(globals, auths []string) []TokenIssue {
	bound := map[string]bool{}
	for k := range s.Env {
		bound[k] = true
	}
	for _, k := range globals {
		bound[k] = true
	}
	authNames := map[string]bool{}
	for _, k := range auths {
		authNames[k] = true
	}

	var issues []TokenIssue
	check := func(r *RequestSpec, field, tmpl string) {
		refs, err := env.References(tmpl)
		if err != nil {
			issues = append(issues, TokenIssue{Step: r.Key(), Field: field, Err: err})
			return
		}
		for _, ref := range refs {
			switch ref.Scope {
			case env.ScopeEnv:
				if !bound[ref.Name] {
					issues = append(issues, TokenIssue{Step: r.Key(), Field: field, Scope: ref.Scope, Name: ref.Name})
				}
			case env.ScopeAuth:
				if !authNames[ref.Name] {
					issues = append(issues, TokenIssue{Step: r.Key(), Field: field, Scope: ref.Scope, Name: ref.Name})
				}
			}
		}
	}

	for _, r := range s.requests {
		for _, b := range r.Tokens {
			check(r, "tokens."+b.Name, b.Value)
			bound[b.Name] = true
		}
		check(r, "url", r.urlTemplate)
		for _, h := range r.headers {
			check(r, "header "+h.Name, h.Value)
		}
		for _, q := range r.Queries {
			check(r, "query "+q.Name, q.Value)
		}
		if r.ShouldRenderBody(true) {
			check(r, "body", string(r.body))
		}
		for _, n := range r.Capture.Names() {
			bound[n] = true
		}
	}
	return issues
}
