package app

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/licensewatch/internal/auth"
	"github.com/charlesng35/licensewatch/internal/auth/providers"
)

// Validate rejects auth settings the server cannot start with.
func (c AuthConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.JWT.Secret) == "" {
		problems = append(problems, "auth.jwt.secret must be configured")
	}
	if c.JWT.TTL < 0 {
		problems = append(problems, "auth.jwt.access_token_ttl must not be negative")
	}
	if c.Local.LockoutThreshold < 0 || c.Local.LockoutDuration < 0 {
		problems = append(problems, "auth.local lockout settings must not be negative")
	}
	if _, err := c.MFAEncryptionKey(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// JWTServiceConfig maps the jwt section onto the token service. Zero values
// are resolved by the service itself.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	return auth.JWTConfig{
		Secret:         strings.TrimSpace(c.JWT.Secret),
		Issuer:         strings.TrimSpace(c.JWT.Issuer),
		AccessTokenTTL: c.JWT.TTL,
	}
}

// LocalProviderConfig maps the lockout settings onto the password provider.
func (c AuthConfig) LocalProviderConfig() providers.LocalConfig {
	return providers.LocalConfig{
		LockoutThreshold: c.Local.LockoutThreshold,
		LockoutDuration:  c.Local.LockoutDuration,
	}
}

// MFAEncryptionKey decodes the AES key that seals stored TOTP secrets.
// An empty setting yields a nil key and secrets are stored unsealed.
func (c AuthConfig) MFAEncryptionKey() ([]byte, error) {
	if strings.TrimSpace(c.MFA.EncryptionKey) == "" {
		return nil, nil
	}
	key, err := DecodeKey(c.MFA.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("auth.mfa.encryption_key: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("auth.mfa.encryption_key must decode to 16, 24, or 32 bytes (current: %d)", len(key))
	}
}

// DecodeKey reads key material written as hex, padded or unpadded base64,
// or failing both, the raw string bytes.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, errors.New("key value is empty")
	}

	decoders := []func(string) ([]byte, error){
		hex.DecodeString,
		base64.StdEncoding.DecodeString,
		base64.RawStdEncoding.DecodeString,
	}
	for _, decode := range decoders {
		if key, err := decode(v); err == nil {
			return key, nil
		}
	}
	return []byte(v), nil
}
