package config

import (
	"os"
	"strings"

	"market-tracker/internal/logging"
	"market-tracker/internal/security"
)

// VaultPasswordEnv names the variable holding the vault password for
// non-interactive runs.
const VaultPasswordEnv = "TRACKER_VAULT_PASSWORD"

// ResolveToken fills API.Token from the sealed vault when neither the
// environment nor a .env file supplied one. It reports where the token came
// from: "env", "vault" or "" when none is available.
func (c *Config) ResolveToken() (string, error) {
	if c.API.Token != "" {
		return "env", nil
	}
	vault := security.NewTokenVault(c.Dir)
	password := os.Getenv(VaultPasswordEnv)
	if !vault.Exists() || password == "" {
		return "", nil
	}
	token, err := vault.Open(password)
	if err != nil {
		return "", err
	}
	c.API.Token = token
	return "vault", nil
}

// LogConfig converts the logging section for the logging package.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File,
		FilePath:   expandHome(c.Logging.FilePath),
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}

// AuditConfig converts the security section for the audit logger.
func (c *Config) AuditConfig() security.AuditConfig {
	ac := security.DefaultAuditConfig()
	if c.Security.AuditDir != "" {
		ac.LogDir = expandHome(c.Security.AuditDir)
	}
	return ac
}

// Redacted returns a copy safe to print: credentials are masked and the
// Postgres DSN loses its user info.
func (c *Config) Redacted() Config {
	out := *c
	out.API.Token = security.MaskCredential(c.API.Token)
	out.Notifications.Telegram.BotToken = security.MaskCredential(c.Notifications.Telegram.BotToken)
	out.Storage.RedisPassword = security.MaskCredential(c.Storage.RedisPassword)
	if dsn := c.Storage.PostgresDSN; strings.Contains(dsn, "://") {
		out.Storage.PostgresDSN = security.MaskURL(dsn)
	} else {
		out.Storage.PostgresDSN = security.MaskSecrets(dsn)
	}
	return out
}
