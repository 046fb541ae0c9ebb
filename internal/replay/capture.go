package replay

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/loykin/apireplay/internal/script"
	"github.com/loykin/apireplay/pkg/env"
	"github.com/tidwall/gjson"
)

const maxDecodedBody = 64 << 20

// decodeBody undoes gzip or deflate content coding. Bodies that do not look
// encoded are returned unchanged, since servers sometimes label plain bodies.
func decodeBody(encoding string, raw []byte) ([]byte, error) {
	var r io.ReadCloser
	var err error
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		if len(raw) < 2 || raw[0] != 0x1f || raw[1] != 0x8b {
			return raw, nil
		}
		r, err = gzip.NewReader(bytes.NewReader(raw))
	case "deflate":
		if len(raw) >= 2 && raw[0]&0x0f == 8 && (uint16(raw[0])<<8|uint16(raw[1]))%31 == 0 {
			r, err = zlib.NewReader(bytes.NewReader(raw))
		} else {
			r = flate.NewReader(bytes.NewReader(raw))
		}
	default:
		return raw, nil
	}
	if err != nil {
		return raw, fmt.Errorf("decode %s body: %w", encoding, err)
	}
	defer func() { _ = r.Close() }()
	out, err := io.ReadAll(io.LimitReader(r, maxDecodedBody))
	if err != nil {
		return raw, fmt.Errorf("decode %s body: %w", encoding, err)
	}
	return out, nil
}

// capture binds the tokens a step extracts from its response and returns the
// names that found no value. Missing values stay unbound, so a later
// reference fails with UnboundTokenError.
func capture(it *env.Env, req *script.RequestSpec, res *StepResult) (missing []string, err error) {
	c := req.Capture
	if c.Empty() {
		return nil, nil
	}
	bind := func(name, value string, ok bool) error {
		if !ok {
			missing = append(missing, name)
			return nil
		}
		return it.Bind(name, value)
	}

	for _, name := range sortedKeys(c.Body) {
		r := gjson.GetBytes(res.Body, c.Body[name])
		if err := bind(name, r.String(), r.Exists()); err != nil {
			return missing, err
		}
	}
	for _, name := range sortedKeys(c.Header) {
		v := res.Header.Get(c.Header[name])
		if err := bind(name, v, v != ""); err != nil {
			return missing, err
		}
	}
	if len(c.Cookie) > 0 {
		cookies := (&http.Response{Header: res.Header}).Cookies()
		for _, name := range sortedKeys(c.Cookie) {
			v, ok := "", false
			for _, ck := range cookies {
				if ck.Name == c.Cookie[name] {
					v, ok = ck.Value, true
				}
			}
			if err := bind(name, v, ok); err != nil {
				return missing, err
			}
		}
	}
	for _, name := range sortedKeys(c.Regex) {
		m := req.CaptureRegex(name).FindSubmatch(res.Body)
		if m == nil {
			_ = bind(name, "", false)
			continue
		}
		if err := bind(name, string(m[1]), true); err != nil {
			return missing, err
		}
	}
	return missing, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
