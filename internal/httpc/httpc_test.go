package httpc

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseTLSVersion(t *testing.T) {
	tests := []struct {
		input    string
		expected uint16
	}{
		{"1.0", tls.VersionTLS10},
		{"tls11", tls.VersionTLS11},
		{" TLS1.2 ", tls.VersionTLS12},
		{"13", tls.VersionTLS13},
		{"", 0},
		{"ssl3", 0},
	}
	for _, tt := range tests {
		if got := ParseTLSVersion(tt.input); got != tt.expected {
			t.Errorf("ParseTLSVersion(%q) = %d, expected %d", tt.input, got, tt.expected)
		}
	}
}

func FuzzParseTLSVersion(f *testing.F) {
	for _, s := range []string{"", "1.2", "tls1.3", "TLS13", "weird-input!!"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, s string) {
		v := ParseTLSVersion(s)
		if v != 0 && v != tls.VersionTLS10 && v != tls.VersionTLS11 && v != tls.VersionTLS12 && v != tls.VersionTLS13 {
			t.Fatalf("unexpected tls version: %v", v)
		}
	})
}

func TestOptions_TLSConfig(t *testing.T) {
	if (Options{}).TLSConfig() != nil {
		t.Fatal("default options should not constrain TLS")
	}
	cfg := Options{MinTLSVersion: "1.2", MaxTLSVersion: "1.3", Insecure: true}.TLSConfig()
	if cfg == nil || cfg.MinVersion != tls.VersionTLS12 || cfg.MaxVersion != tls.VersionTLS13 || !cfg.InsecureSkipVerify {
		t.Fatalf("unexpected tls config: %+v", cfg)
	}
	explicit := &tls.Config{ServerName: "x"}
	if got := (Options{TLS: explicit, MinTLSVersion: "1.0"}).TLSConfig(); got.ServerName != "x" || got.MinVersion != 0 {
		t.Fatalf("explicit TLS config should win: %+v", got)
	}
}

func TestNewTransport(t *testing.T) {
	tr, err := NewTransport(Options{MaxIdleConnsPerHost: 7, Proxy: "http://proxy.local:3128"})
	if err != nil {
		t.Fatal(err)
	}
	if tr.MaxIdleConnsPerHost != 7 || !tr.DisableCompression {
		t.Fatalf("unexpected transport: per-host=%d compression-disabled=%v", tr.MaxIdleConnsPerHost, tr.DisableCompression)
	}
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	u, err := tr.Proxy(req)
	if err != nil || u == nil || u.Host != "proxy.local:3128" {
		t.Fatalf("proxy not applied: %v %v", u, err)
	}
	if _, err := NewTransport(Options{Proxy: "::bad"}); err == nil {
		t.Fatal("expected invalid proxy error")
	}
}

func TestSessionClient_NoRedirectByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/next", http.StatusMovedPermanently)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewSessionClient(http.DefaultTransport, Options{}, nil)
	resp, err := c.R().Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode() != http.StatusMovedPermanently {
		t.Fatalf("expected the 301 itself, got %d", resp.StatusCode())
	}

	follow := NewSessionClient(http.DefaultTransport, Options{FollowRedirects: true}, nil)
	resp, err = follow.R().Get(srv.URL + "/")
	if err != nil || resp.StatusCode() != http.StatusOK {
		t.Fatalf("expected redirect to be followed, got %v %v", resp.StatusCode(), err)
	}

	resp, err = c.R().SetContext(WithFollowRedirects(context.Background(), true)).Get(srv.URL + "/")
	if err != nil || resp.StatusCode() != http.StatusOK {
		t.Fatalf("per-request override should follow, got %v %v", resp.StatusCode(), err)
	}
}

func TestSessionClient_ExactHeadersAndCookies(t *testing.T) {
	var seen []http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Clone())
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "SID", Value: "abc", Path: "/"})
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewSessionClient(http.DefaultTransport, Options{}, nil)
	b := NewSessionClient(http.DefaultTransport, Options{}, nil)

	h := http.Header{}
	h.Set("User-Agent", "Recorded/1.0")
	h.Set("Accept", "text/html")
	ctx := WithExactHeaders(context.Background(), h)

	if _, err := a.R().SetContext(ctx).SetBody([]byte{0x30, 0x51}).Post(srv.URL + "/login"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.R().SetContext(ctx).Get(srv.URL + "/page"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.R().SetContext(ctx).Get(srv.URL + "/page"); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(seen))
	}
	if ua := seen[0].Get("User-Agent"); ua != "Recorded/1.0" {
		t.Errorf("User-Agent = %q", ua)
	}
	if ct := seen[0].Get("Content-Type"); ct != "" {
		t.Errorf("no Content-Type should be sniffed, got %q", ct)
	}
	if c := seen[1].Get("Cookie"); c != "SID=abc" {
		t.Errorf("session a should replay its cookie, got %q", c)
	}
	if c := seen[2].Get("Cookie"); c != "" {
		t.Errorf("session b must not see session a's cookie, got %q", c)
	}
}
