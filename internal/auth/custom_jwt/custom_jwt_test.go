package custom_jwt

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestMethod_Acquire(t *testing.T) {
	m := Method{C: Config{Secret: "s3cret", Subject: "user-7", Custom: map[string]interface{}{"role": "load"}}}
	v, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(v, "Bearer ") {
		t.Fatalf("unexpected value %q", v)
	}
	tok, err := jwt.Parse(strings.TrimPrefix(v, "Bearer "), func(*jwt.Token) (interface{}, error) {
		return []byte("s3cret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		t.Fatalf("token does not verify: %v", err)
	}
	claims := tok.Claims.(jwt.MapClaims)
	if claims["sub"] != "user-7" || claims["role"] != "load" {
		t.Fatalf("claims = %v", claims)
	}
}

func TestConfig_Issue_Expiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s, err := Config{Secret: "k", TTLSeconds: 60}.Issue(now)
	if err != nil {
		t.Fatal(err)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s, claims); err != nil {
		t.Fatal(err)
	}
	if exp, _ := claims["exp"].(float64); int64(exp) != now.Unix()+60 {
		t.Fatalf("exp = %v", claims["exp"])
	}
	if _, err := (Config{}).Issue(now); err == nil {
		t.Fatal("expected error without secret")
	}
}
