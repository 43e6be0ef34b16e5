package config

import (
	"os"
)

type EnvConfig interface {
	GetAppName() string
	GetAPIBaseURL() string
	GetLoginEmail() string
	GetLoginPassword() string
	GetEnv() string
}

type OidcConfig interface {
	GetOidcIssuer() string
	GetOidcClientID() string
	GetOidcClientSecret() string
	GetOidcRedirectURL() string
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}
var _ OidcConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv("APP_NAME", "Console Notify")
}

func (EnvVars) GetAPIBaseURL() string {
	return GetEnv("API_BASE_URL", "http://localhost:8080")
}

// GetLoginEmail returns the local-auth email the demo binary signs in with.
func (EnvVars) GetLoginEmail() string {
	return GetEnv("CONSOLE_EMAIL", "")
}

func (EnvVars) GetLoginPassword() string {
	return GetEnv("CONSOLE_PASSWORD", "")
}

func (EnvVars) GetEnv() string {
	return GetEnv("ENV", "development")
}

// GetOidcIssuer returns the OIDC issuer URL; empty disables the OIDC
// credential source entirely.
func (EnvVars) GetOidcIssuer() string {
	return GetEnv("OIDC_ISSUER", "")
}

func (EnvVars) GetOidcClientID() string {
	return GetEnv("OIDC_CLIENT_ID", "console")
}

func (EnvVars) GetOidcClientSecret() string {
	return GetEnv("OIDC_CLIENT_SECRET", "")
}

func (EnvVars) GetOidcRedirectURL() string {
	return GetEnv("OIDC_REDIRECT_URL", "http://localhost:3000/auth/callback")
}

// GetEnv reads an environment variable with a default.
func GetEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}
