package script

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Header is one request header. Order is preserved when sent.
type Header struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Query is one query parameter appended to the request URL.
type Query struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Binding assigns a token before a request is sent. Value may reference
// earlier tokens.
type Binding struct {
	Name  string
	Value string
}

// Bindings keeps YAML mapping order so later bindings can use earlier ones.
type Bindings []Binding

func (b *Bindings) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: tokens must be a mapping of name: value", n.Line)
	}
	out := make(Bindings, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: token %q must be a scalar", v.Line, k.Value)
		}
		out = append(out, Binding{Name: k.Value, Value: v.Value})
	}
	*b = out
	return nil
}

// Capture extracts tokens from a response once it has been received.
// Each map goes from token name to an expression.
type Capture struct {
	Body   map[string]string `yaml:"body,omitempty"`   // gjson path into a JSON body
	Header map[string]string `yaml:"header,omitempty"` // response header name
	Cookie map[string]string `yaml:"cookie,omitempty"` // Set-Cookie name
	Regex  map[string]string `yaml:"regex,omitempty"`  // first submatch against the body
}

// Empty reports whether no capture rule is configured.
func (c Capture) Empty() bool {
	return len(c.Body) == 0 && len(c.Header) == 0 && len(c.Cookie) == 0 && len(c.Regex) == 0
}

// Names lists every token name the capture may bind.
func (c Capture) Names() []string {
	var out []string
	for _, m := range []map[string]string{c.Body, c.Header, c.Cookie, c.Regex} {
		for k := range m {
			out = append(out, k)
		}
	}
	return out
}

// RequestSpec is one recorded HTTP call. It is decoded from YAML, then
// frozen by Compile. After that only its accessors are used and nothing
// mutates it; per-iteration values come from token substitution.
type RequestSpec struct {
	ID         int      `yaml:"id"`
	Name       string   `yaml:"name"`
	Label      string   `yaml:"label"`
	Method     string   `yaml:"method"`
	URL        string   `yaml:"url"`
	Host       string   `yaml:"host"`
	Path       string   `yaml:"path"`
	HeaderSet  string   `yaml:"header_set"`
	Headers    []Header `yaml:"headers"`
	Queries    []Query  `yaml:"queries"`
	Tokens     Bindings `yaml:"tokens"`
	Body       string   `yaml:"body"`
	BodyBase64 string   `yaml:"body_base64"`
	BodyHex    string   `yaml:"body_hex"`
	BodyFile   string   `yaml:"body_file"`
	RenderBody *bool    `yaml:"render_body"`
	Expect     []int    `yaml:"expect"`
	Fatal      *bool    `yaml:"fatal"`
	Capture    Capture  `yaml:"capture"`

	urlTemplate string
	headers     []Header
	body        []byte
	binary      bool
	accept      map[int]struct{}
	regexes     map[string]*regexp.Regexp
}

// URLTemplate is the full URL before token substitution.
func (r *RequestSpec) URLTemplate() string { return r.urlTemplate }

// EffectiveHeaders is base headers, then the header set, then step headers,
// with later entries replacing earlier ones of the same canonical name.
func (r *RequestSpec) EffectiveHeaders() []Header { return r.headers }

// BodyBytes returns the body as loaded. Text bodies may still hold templates.
func (r *RequestSpec) BodyBytes() []byte { return r.body }

// IsBinary reports whether the body came from base64, hex or a file and must
// be sent untouched.
func (r *RequestSpec) IsBinary() bool { return r.binary }

// HasBody reports whether a body is sent.
func (r *RequestSpec) HasBody() bool { return r.body != nil }

// Accepts reports whether status is in the step's accepted set. Without an
// explicit expect list any 2xx or 3xx status is accepted.
func (r *RequestSpec) Accepts(status int) bool {
	if len(r.accept) == 0 {
		return status >= 200 && status < 400
	}
	_, ok := r.accept[status]
	return ok
}

// CaptureRegex returns the compiled regex capture for a token.
func (r *RequestSpec) CaptureRegex(name string) *regexp.Regexp { return r.regexes[name] }

// ShouldRenderBody reports whether a text body is rendered as a template.
func (r *RequestSpec) ShouldRenderBody(def bool) bool {
	if r.binary || r.body == nil {
		return false
	}
	if r.RenderBody != nil {
		return *r.RenderBody
	}
	return def
}

// Matches reports whether key names this request, by name or by test id.
func (r *RequestSpec) Matches(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	if r.Name != "" && r.Name == key {
		return true
	}
	id, err := strconv.Atoi(key)
	return err == nil && id == r.ID
}

// Key identifies the request in logs and errors.
func (r *RequestSpec) Key() string {
	if r.Name != "" {
		return r.Name
	}
	return strconv.Itoa(r.ID)
}

// Wait is a think-time pause. YAML accepts integer milliseconds or a Go
// duration string.
type Wait struct {
	Duration time.Duration
}

func (w *Wait) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: wait must be milliseconds or a duration string", n.Line)
	}
	s := strings.TrimSpace(n.Value)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		w.Duration = time.Duration(ms) * time.Millisecond
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid wait %q: %w", n.Line, s, err)
	}
	w.Duration = d
	return nil
}

func (w Wait) MarshalYAML() (interface{}, error) {
	if w.Duration%time.Millisecond == 0 {
		return w.Duration.Milliseconds(), nil
	}
	return w.Duration.String(), nil
}

// Step is exactly one of a request or a wait.
type Step struct {
	Request *RequestSpec `yaml:"request,omitempty"`
	Wait    *Wait        `yaml:"wait,omitempty"`
}

// IsWait reports whether the step is a pause.
func (s Step) IsWait() bool { return s.Wait != nil }

// Page is an ordered group of steps, usually one recorded page view.
type Page struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Script is the whole recorded session replayed once per iteration. It is
// loaded once and shared read-only by every worker.
type Script struct {
	Name            string              `yaml:"name"`
	Sample          string              `yaml:"sample"`
	FollowRedirects *bool               `yaml:"follow_redirects"`
	BaseHeaders     []Header            `yaml:"base_headers"`
	HeaderSets      map[string][]Header `yaml:"header_sets"`
	Hosts           map[string]string   `yaml:"hosts"`
	Env             map[string]string   `yaml:"env"`
	Pages           []Page              `yaml:"pages"`

	baseDir  string
	compiled bool
	sample   *RequestSpec
	requests []*RequestSpec
}

// SampleRequest returns the request whose result is an iteration's sample,
// or nil when the script does not name one.
func (s *Script) SampleRequest() *RequestSpec { return s.sample }

// Requests returns every request step in execution order.
func (s *Script) Requests() []*RequestSpec { return s.requests }

// StepCount returns the number of steps across all pages.
func (s *Script) StepCount() int {
	n := 0
	for _, p := range s.Pages {
		n += len(p.Steps)
	}
	return n
}

// Compiled reports whether Compile succeeded.
func (s *Script) Compiled() bool { return s.compiled }

func defaultLabel(method, target string) string {
	if method == "" {
		method = http.MethodGet
	}
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}
	return method + " " + target
}
