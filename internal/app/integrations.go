package app

import (
	netmail "net/mail"
	"strings"

	"github.com/charlesng35/licensewatch/internal/cache"
	"github.com/charlesng35/licensewatch/pkg/mail"
)

// RedisClientConfig returns the lease store settings. Blank credentials are dropped.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	redis := c.Redis
	return cache.RedisConfig{
		Address:  strings.TrimSpace(redis.Address),
		Username: strings.TrimSpace(redis.Username),
		Password: redis.Password,
		DB:       redis.DB,
		TLS:      redis.TLS,
		Timeout:  redis.Timeout,
	}
}

// SMTPSettings returns the mail transport settings for expiry emails.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	smtp := c.SMTP
	return mail.SMTPSettings{
		Enabled:  smtp.Enabled,
		Host:     strings.TrimSpace(smtp.Host),
		Port:     smtp.Port,
		Username: strings.TrimSpace(smtp.Username),
		Password: smtp.Password,
		From:     strings.TrimSpace(smtp.From),
		UseTLS:   smtp.UseTLS,
		Timeout:  smtp.Timeout,
	}
}

// SenderAddress is the From header used for notification mail. A bare configured
// address is given the project name as its display name.
func (c *Config) SenderAddress() string {
	from := strings.TrimSpace(c.Email.SMTP.From)
	name := strings.TrimSpace(c.Notifications.ProjectName)
	if from == "" || name == "" {
		return from
	}
	addr, err := netmail.ParseAddress(from)
	if err != nil || addr.Name != "" {
		return from
	}
	addr.Name = name
	return addr.String()
}
