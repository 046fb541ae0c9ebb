package oauth2

import (
	"errors"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Config selects a grant and carries its settings.
type Config struct {
	GrantType   string                 `mapstructure:"grant_type"`
	GrantConfig map[string]interface{} `mapstructure:"grant_config"`
}

// Method builds the grant-specific method for c.
func (c Config) Method() (Method, error) {
	gt := strings.ToLower(strings.TrimSpace(c.GrantType))
	if gt == "" {
		return nil, errors.New("oauth2: grant_type is required")
	}
	if c.GrantConfig == nil {
		return nil, errors.New("oauth2: grant_config is required")
	}
	switch gt {
	case "password":
		var pc PasswordConfig
		if err := mapstructure.Decode(c.GrantConfig, &pc); err != nil {
			return nil, err
		}
		return passwordMethod{c: pc}, nil
	case "client_credentials", "client-credentials":
		var cc ClientCredentialsConfig
		if err := mapstructure.Decode(c.GrantConfig, &cc); err != nil {
			return nil, err
		}
		return clientCredentialsMethod{c: cc}, nil
	default:
		return nil, errors.New("oauth2: unsupported grant_type: " + gt)
	}
}
