package app

import (
	"fmt"
	"strings"

	"github.com/charlesng35/licensewatch/pkg/crypto"
)

const (
	jwtSecretBytes   = 48
	defaultProduct   = "LicenseWatch"
	defaultJWTIssuer = "licensewatch"
)

// ApplyRuntimeDefaults fills settings that must never be empty at runtime or
// that derive from other settings. It returns the keys of any secrets it had
// to generate; the values are never reported.
func ApplyRuntimeDefaults(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	var generated []string
	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated = append(generated, "auth.jwt.secret")
	}

	product := strings.TrimSpace(cfg.Notifications.ProjectName)
	if product == "" {
		product = defaultProduct
	}
	cfg.Notifications.ProjectName = product
	if strings.TrimSpace(cfg.Auth.MFA.Issuer) == "" {
		cfg.Auth.MFA.Issuer = product
	}
	if strings.TrimSpace(cfg.Auth.JWT.Issuer) == "" {
		cfg.Auth.JWT.Issuer = defaultJWTIssuer
	}

	cfg.FirstUser.Email = strings.ToLower(strings.TrimSpace(cfg.FirstUser.Email))
	return generated, nil
}
