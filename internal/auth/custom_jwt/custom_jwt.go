package custom_jwt

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config describes an HS256 token minted locally, for targets that trust a
// shared secret instead of running a token endpoint.
type Config struct {
	Secret     string                 `mapstructure:"secret"`
	TTLSeconds int64                  `mapstructure:"ttl_seconds"`
	Subject    string                 `mapstructure:"sub"`
	Issuer     string                 `mapstructure:"iss"`
	Audience   []string               `mapstructure:"aud"`
	ID         string                 `mapstructure:"jti"`
	Custom     map[string]interface{} `mapstructure:"custom"`
}

// Issue signs a token from c. Expiry defaults to five minutes from now.
func (c Config) Issue(now time.Time) (string, error) {
	if c.Secret == "" {
		return "", errors.New("custom_jwt: secret required")
	}
	ttl := c.TTLSeconds
	if ttl <= 0 {
		ttl = 300
	}
	claims := jwt.MapClaims{}
	for k, v := range c.Custom {
		claims[k] = v
	}
	if c.Subject != "" {
		claims["sub"] = c.Subject
	}
	if c.Issuer != "" {
		claims["iss"] = c.Issuer
	}
	if len(c.Audience) > 0 {
		claims["aud"] = c.Audience
	}
	if c.ID != "" {
		claims["jti"] = c.ID
	}
	claims["iat"] = now.Unix()
	claims["exp"] = now.Unix() + ttl
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.Secret))
}

// Method yields "Bearer <token>".
type Method struct{ C Config }

func (m Method) Acquire(_ context.Context) (string, error) {
	tok, err := m.C.Issue(time.Now())
	if err != nil {
		return "", err
	}
	return "Bearer " + tok, nil
}
