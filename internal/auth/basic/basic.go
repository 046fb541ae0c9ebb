package basic

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
)

// Config holds credentials for HTTP Basic authentication.
type Config struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Method yields "Basic <base64(user:pass)>".
type Method struct{ C Config }

func (m Method) Acquire(_ context.Context) (string, error) {
	u := strings.TrimSpace(m.C.Username)
	if u == "" || m.C.Password == "" {
		return "", errors.New("basic: username and password are required")
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(u+":"+m.C.Password)), nil
}
