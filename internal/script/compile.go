package script

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/loykin/apireplay/pkg/env"
)

// ErrInvalidScript wraps every validation failure returned by Compile.
var ErrInvalidScript = errors.New("invalid script")

// Compile validates the script and freezes every request. It is idempotent.
// All problems are reported together, each prefixed with its location.
func (s *Script) Compile() error {
	if s.compiled {
		return nil
	}
	var errs []error
	fail := func(where string, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %s", where, fmt.Sprintf(format, args...)))
	}

	for name, hs := range s.HeaderSets {
		for i, h := range hs {
			if strings.TrimSpace(h.Name) == "" {
				fail(fmt.Sprintf("header_sets.%s[%d]", name, i), "header name is empty")
			}
		}
	}
	for name, raw := range s.Hosts {
		if _, err := parseAbsURL(raw); err != nil {
			fail("hosts."+name, "%v", err)
		}
	}
	for i, h := range s.BaseHeaders {
		if strings.TrimSpace(h.Name) == "" {
			fail(fmt.Sprintf("base_headers[%d]", i), "header name is empty")
		}
	}

	names := map[string]string{}
	ids := map[int]string{}
	var requests []*RequestSpec
	seq := 0
	for pi := range s.Pages {
		page := &s.Pages[pi]
		for si := range page.Steps {
			step := &page.Steps[si]
			where := fmt.Sprintf("pages[%d].steps[%d]", pi, si)
			if page.Name != "" {
				where = fmt.Sprintf("pages[%d](%s).steps[%d]", pi, page.Name, si)
			}
			switch {
			case step.Request != nil && step.Wait != nil:
				fail(where, "step has both request and wait")
				continue
			case step.Wait != nil:
				if step.Wait.Duration < 0 {
					fail(where, "wait must not be negative")
				}
				continue
			case step.Request == nil:
				fail(where, "step has neither request nor wait")
				continue
			}

			seq++
			r := step.Request
			if err := s.compileRequest(r, seq); err != nil {
				fail(where+".request", "%v", err)
				continue
			}
			if r.Name != "" {
				if prev, dup := names[r.Name]; dup {
					fail(where+".request", "name %q already used at %s", r.Name, prev)
				}
				names[r.Name] = where
			}
			if prev, dup := ids[r.ID]; dup {
				fail(where+".request", "test id %d already used at %s", r.ID, prev)
			}
			ids[r.ID] = where
			requests = append(requests, r)
		}
	}

	var sample *RequestSpec
	if key := strings.TrimSpace(s.Sample); key != "" {
		for _, r := range requests {
			if r.Matches(key) {
				sample = r
				break
			}
		}
		if sample == nil {
			fail("sample", "no request step named or numbered %q", key)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidScript, errors.Join(errs...))
	}
	s.requests = requests
	s.sample = sample
	s.compiled = true
	return nil
}

func (s *Script) compileRequest(r *RequestSpec, seq int) error {
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	if r.ID == 0 {
		r.ID = seq
	}

	switch {
	case r.URL != "" && (r.Host != "" || r.Path != ""):
		return errors.New("use either url or host+path, not both")
	case r.URL != "":
		r.urlTemplate = strings.TrimSpace(r.URL)
	case r.Host != "":
		base, ok := s.Hosts[r.Host]
		if !ok {
			return fmt.Errorf("unknown host %q", r.Host)
		}
		p := r.Path
		if p == "" {
			p = "/"
		}
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("path %q must start with /", p)
		}
		r.urlTemplate = strings.TrimRight(strings.TrimSpace(base), "/") + p
	default:
		return errors.New("url or host is required")
	}
	if !env.HasTemplate(r.urlTemplate) {
		if _, err := parseAbsURL(r.urlTemplate); err != nil {
			return err
		}
	}
	if r.Label == "" {
		target := r.Path
		if target == "" {
			if u, err := url.Parse(r.urlTemplate); err == nil {
				target = u.Path
			}
		}
		if target == "" {
			target = "/"
		}
		r.Label = defaultLabel(r.Method, target)
	}

	hs, err := s.effectiveHeaders(r)
	if err != nil {
		return err
	}
	r.headers = hs

	for i, q := range r.Queries {
		if strings.TrimSpace(q.Name) == "" {
			return fmt.Errorf("queries[%d]: name is empty", i)
		}
	}
	for i, b := range r.Tokens {
		if strings.TrimSpace(b.Name) == "" {
			return fmt.Errorf("tokens[%d]: name is empty", i)
		}
	}

	if err := s.loadBody(r); err != nil {
		return err
	}
	if r.body != nil && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		return fmt.Errorf("%s request cannot carry a body", r.Method)
	}

	if len(r.Expect) > 0 {
		r.accept = make(map[int]struct{}, len(r.Expect))
		for _, code := range r.Expect {
			if code < 100 || code > 599 {
				return fmt.Errorf("expect: invalid status code %d", code)
			}
			r.accept[code] = struct{}{}
		}
	}

	if len(r.Capture.Regex) > 0 {
		r.regexes = make(map[string]*regexp.Regexp, len(r.Capture.Regex))
		for name, expr := range r.Capture.Regex {
			re, err := regexp.Compile(expr)
			if err != nil {
				return fmt.Errorf("capture.regex.%s: %w", name, err)
			}
			if re.NumSubexp() < 1 {
				return fmt.Errorf("capture.regex.%s: expression needs a capture group", name)
			}
			r.regexes[name] = re
		}
	}
	return nil
}

func (s *Script) effectiveHeaders(r *RequestSpec) ([]Header, error) {
	var set []Header
	if r.HeaderSet != "" {
		hs, ok := s.HeaderSets[r.HeaderSet]
		if !ok {
			return nil, fmt.Errorf("unknown header_set %q", r.HeaderSet)
		}
		set = hs
	}
	var out []Header
	index := map[string]int{}
	for _, group := range [][]Header{s.BaseHeaders, set, r.Headers} {
		for _, h := range group {
			name := strings.TrimSpace(h.Name)
			if name == "" {
				return nil, errors.New("header name is empty")
			}
			key := http.CanonicalHeaderKey(name)
			if i, ok := index[key]; ok {
				out[i] = Header{Name: name, Value: h.Value}
				continue
			}
			index[key] = len(out)
			out = append(out, Header{Name: name, Value: h.Value})
		}
	}
	return out, nil
}

func (s *Script) loadBody(r *RequestSpec) error {
	sources := 0
	for _, v := range []string{r.Body, r.BodyBase64, r.BodyHex, r.BodyFile} {
		if v != "" {
			sources++
		}
	}
	if sources > 1 {
		return errors.New("only one of body, body_base64, body_hex, body_file may be set")
	}
	switch {
	case r.Body != "":
		r.body = []byte(r.Body)
	case r.BodyBase64 != "":
		b, err := base64.StdEncoding.DecodeString(stripSpace(r.BodyBase64))
		if err != nil {
			return fmt.Errorf("body_base64: %w", err)
		}
		r.body, r.binary = b, true
	case r.BodyHex != "":
		b, err := hex.DecodeString(stripSpace(r.BodyHex))
		if err != nil {
			return fmt.Errorf("body_hex: %w", err)
		}
		r.body, r.binary = b, true
	case r.BodyFile != "":
		p := r.BodyFile
		if !filepath.IsAbs(p) && s.baseDir != "" {
			p = filepath.Join(s.baseDir, p)
		}
		// #nosec G304 -- body files are referenced by the script author
		b, err := os.ReadFile(filepath.Clean(p))
		if err != nil {
			return fmt.Errorf("body_file: %w", err)
		}
		if b == nil {
			b = []byte{}
		}
		r.body, r.binary = b, true
	}
	return nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
}

func parseAbsURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url %q must be absolute http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	return u, nil
}
