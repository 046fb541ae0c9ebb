package env

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"text/template/parse"
)

// Scopes addressable from a template.
const (
	ScopeEnv  = "env"
	ScopeAuth = "auth"
)

// UnboundTokenError reports a template reference to a name that has no value
// in the namespace it was rendered against.
type UnboundTokenError struct {
	Scope    string
	Name     string
	Template string
}

func (e *UnboundTokenError) Error() string {
	return fmt.Sprintf("unbound token .%s.%s in %q", e.Scope, e.Name, e.Template)
}

// Ref is one .env.NAME or .auth.NAME reference found in a template.
type Ref struct {
	Scope string
	Name  string
}

// HasTemplate reports whether s contains template actions.
func HasTemplate(s string) bool {
	return strings.Contains(s, "{{")
}

// templates caches parsed templates by source text. Parsed templates are
// safe for concurrent execution.
var templates sync.Map

func parseTemplate(s string) (*template.Template, error) {
	if t, ok := templates.Load(s); ok {
		return t.(*template.Template), nil
	}
	t, err := template.New("tok").Option("missingkey=error").Parse(s)
	if err != nil {
		return nil, err
	}
	templates.Store(s, t)
	return t, nil
}

// References returns the .env and .auth names referenced by s, in order of
// first appearance. Both {{.env.NAME}} and {{index .env "NAME"}} are found.
func References(s string) ([]Ref, error) {
	if !HasTemplate(s) {
		return nil, nil
	}
	t, err := parseTemplate(s)
	if err != nil {
		return nil, err
	}
	var refs []Ref
	seen := map[Ref]struct{}{}
	add := func(r Ref) {
		if _, ok := seen[r]; !ok {
			seen[r] = struct{}{}
			refs = append(refs, r)
		}
	}
	if t.Tree != nil {
		walk(t.Tree.Root, add)
	}
	return refs, nil
}

func walk(n parse.Node, add func(Ref)) {
	switch x := n.(type) {
	case nil:
	case *parse.ListNode:
		if x == nil {
			return
		}
		for _, c := range x.Nodes {
			walk(c, add)
		}
	case *parse.ActionNode:
		walk(x.Pipe, add)
	case *parse.PipeNode:
		if x == nil {
			return
		}
		for _, c := range x.Cmds {
			walk(c, add)
		}
	case *parse.CommandNode:
		if len(x.Args) >= 3 {
			if id, ok := x.Args[0].(*parse.IdentifierNode); ok && id.Ident == "index" {
				if f, ok := x.Args[1].(*parse.FieldNode); ok && len(f.Ident) == 1 && isScope(f.Ident[0]) {
					if s, ok := x.Args[2].(*parse.StringNode); ok {
						add(Ref{Scope: f.Ident[0], Name: s.Text})
					}
				}
			}
		}
		for _, a := range x.Args {
			walk(a, add)
		}
	case *parse.FieldNode:
		if len(x.Ident) >= 2 && isScope(x.Ident[0]) {
			add(Ref{Scope: x.Ident[0], Name: x.Ident[1]})
		}
	case *parse.ChainNode:
		walk(x.Node, add)
	case *parse.IfNode:
		walkBranch(&x.BranchNode, add)
	case *parse.RangeNode:
		walkBranch(&x.BranchNode, add)
	case *parse.WithNode:
		walkBranch(&x.BranchNode, add)
	case *parse.TemplateNode:
		walk(x.Pipe, add)
	}
}

func walkBranch(b *parse.BranchNode, add func(Ref)) {
	walk(b.Pipe, add)
	walk(b.List, add)
	if b.ElseList != nil {
		walk(b.ElseList, add)
	}
}

func isScope(s string) bool { return s == ScopeEnv || s == ScopeAuth }

// RenderGoTemplate renders s and falls back to s unchanged on any error.
// Use it for configuration values where a missing key is not fatal.
func (e *Env) RenderGoTemplate(s string) string {
	out, err := e.RenderGoTemplateErr(s)
	if err != nil {
		return s
	}
	return out
}

// RenderGoTemplateErr renders s with text/template against this Env.
// A reference to a name with no value yields *UnboundTokenError. A lazy auth
// value whose acquisition fails yields that acquisition error.
func (e *Env) RenderGoTemplateErr(s string) (string, error) {
	if !HasTemplate(s) {
		return s, nil
	}
	t, err := parseTemplate(s)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", s, err)
	}
	refs, err := References(s)
	if err != nil {
		return "", err
	}
	data, err := e.dataFor(s, refs)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %q: %w", s, err)
	}
	return buf.String(), nil
}

// dataFor builds the template dot and checks every reference is bound.
// Only referenced auth values are resolved, keeping them lazy otherwise.
func (e *Env) dataFor(src string, refs []Ref) (map[string]interface{}, error) {
	if e == nil {
		e = New()
	}
	e.mu.RLock()
	merged := e.merged()
	authVals := make(map[string]Val, len(e.Auth))
	for k, v := range e.Auth {
		authVals[k] = v
	}
	e.mu.RUnlock()

	auth := map[string]string{}
	for _, r := range refs {
		switch r.Scope {
		case ScopeEnv:
			if _, ok := merged[r.Name]; !ok {
				return nil, &UnboundTokenError{Scope: r.Scope, Name: r.Name, Template: src}
			}
		case ScopeAuth:
			v, ok := authVals[r.Name]
			if !ok || v == nil {
				return nil, &UnboundTokenError{Scope: r.Scope, Name: r.Name, Template: src}
			}
			if lz, ok := v.(*VarLazy); ok {
				val, err := lz.Value()
				if err != nil {
					return nil, fmt.Errorf("auth %s: %w", r.Name, err)
				}
				auth[r.Name] = val
				continue
			}
			auth[r.Name] = v.String()
		}
	}
	return map[string]interface{}{ScopeEnv: merged, ScopeAuth: auth}, nil
}
