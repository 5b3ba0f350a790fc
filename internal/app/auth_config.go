package app

import "github.com/verygoodsaas/backoffice/internal/auth"

// SessionServiceConfig converts AuthConfig into the parameters expected by
// the session codec.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	ttl := c.Session.TTL
	if ttl <= 0 {
		ttl = auth.DefaultSessionTTL
	}

	return auth.SessionConfig{
		Secret: c.Session.Secret,
		Issuer: c.Session.Issuer,
		TTL:    ttl,
	}
}
