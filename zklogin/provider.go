package zklogin

import (
	"fmt"
	"net/url"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// ProviderConfig is one OAuth provider variant.
type ProviderConfig struct {
	ClientID     string
	AuthURL      string
	ResponseType string
	Scope        string
}

// DefaultProviders returns the provider variants without client ids.
func DefaultProviders() map[interfaces.Provider]ProviderConfig {
	return map[interfaces.Provider]ProviderConfig{
		interfaces.ProviderGoogle: {
			AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
			ResponseType: "id_token",
			Scope:        "openid email",
		},
		interfaces.ProviderFacebook: {
			AuthURL:      "https://www.facebook.com/v18.0/dialog/oauth",
			ResponseType: "token",
			Scope:        "email",
		},
		interfaces.ProviderApple: {
			AuthURL:      "https://appleid.apple.com/auth/authorize",
			ResponseType: "id_token",
			Scope:        "email",
		},
	}
}

// WithClientIDs sets the client id of each listed provider.
func WithClientIDs(providers map[interfaces.Provider]ProviderConfig, ids map[interfaces.Provider]string) map[interfaces.Provider]ProviderConfig {
	for p, id := range ids {
		cfg := providers[p]
		cfg.ClientID = id
		providers[p] = cfg
	}
	return providers
}

func (c ProviderConfig) authorizationURL(redirectURL, nonce, state string) (string, error) {
	u, err := url.Parse(c.AuthURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid auth url: %v", interfaces.ErrConfiguration, err)
	}
	q := u.Query()
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", redirectURL)
	q.Set("response_type", c.ResponseType)
	q.Set("scope", c.Scope)
	q.Set("nonce", nonce)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
