package util

import (
	"github.com/loykin/apireplay/pkg/env"
)

// RenderAnyTemplate walks decoded YAML (maps, slices, scalars) and renders
// every string through e. Strings that fail to render are kept as written.
// Used for provider configs such as auth entries, where secrets often come
// from {{.env.NAME}}.
func RenderAnyTemplate(in interface{}, e *env.Env) interface{} {
	switch t := in.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, v := range t {
			m[k] = RenderAnyTemplate(v, e)
		}
		return m
	case []interface{}:
		arr := make([]interface{}, len(t))
		for i := range t {
			arr[i] = RenderAnyTemplate(t[i], e)
		}
		return arr
	case []string:
		arr := make([]string, len(t))
		for i := range t {
			arr[i] = e.RenderGoTemplate(t[i])
		}
		return arr
	case string:
		if e == nil {
			return t
		}
		return e.RenderGoTemplate(t)
	default:
		return in
	}
}
