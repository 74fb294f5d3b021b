package config

import (
	"encoding/json"
	"os"

	"github.com/keyfold/keyfold/internal/flagx"
	"github.com/keyfold/keyfold/internal/timex"
)

// JsonConfig mirrors Config for JSON unmarshalling, using timex.Duration so
// lifetimes can be written as "10m" or as integer nanoseconds. Empty fields
// leave the existing value untouched, so a partial config file only
// overrides what it names.
type JsonConfig struct {
	EndpointAddr string `json:"endpoint_addr"`
	DatabaseDSN  string `json:"database_dsn"`

	JWTAuthSecret     string `json:"jwt_auth_secret"`
	JWTRefreshSecret  string `json:"jwt_refresh_secret"`
	JWTMFASecret      string `json:"jwt_mfa_secret"`
	JWTSignupSecret   string `json:"jwt_signup_secret"`
	JWTProviderSecret string `json:"jwt_provider_secret"`
	JWTServiceSecret  string `json:"jwt_service_secret"`

	AccessTokenTTL   *timex.Duration `json:"access_token_ttl"`
	RefreshTokenTTL  *timex.Duration `json:"refresh_token_ttl"`
	MFATokenTTL      *timex.Duration `json:"mfa_token_ttl"`
	SignupTokenTTL   *timex.Duration `json:"signup_token_ttl"`
	ProviderTokenTTL *timex.Duration `json:"provider_token_ttl"`
	SRPSessionTTL    *timex.Duration `json:"srp_session_ttl"`

	EncryptionKey     string `json:"encryption_key"`
	RootEncryptionKey string `json:"root_encryption_key"`

	HTTPSEnabled *bool `json:"https_enabled"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c/-config flags; when
// neither is set, no file is loaded. An unreadable or invalid file panics:
// a deployment pointing at broken config should not come up.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&config.EndpointAddr, c.EndpointAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.JWTAuthSecret, c.JWTAuthSecret)
	setString(&config.JWTRefreshSecret, c.JWTRefreshSecret)
	setString(&config.JWTMFASecret, c.JWTMFASecret)
	setString(&config.JWTSignupSecret, c.JWTSignupSecret)
	setString(&config.JWTProviderSecret, c.JWTProviderSecret)
	setString(&config.JWTServiceSecret, c.JWTServiceSecret)
	setString(&config.EncryptionKey, c.EncryptionKey)
	setString(&config.RootEncryptionKey, c.RootEncryptionKey)

	if c.AccessTokenTTL != nil {
		config.AccessTokenTTL = c.AccessTokenTTL.Duration
	}
	if c.RefreshTokenTTL != nil {
		config.RefreshTokenTTL = c.RefreshTokenTTL.Duration
	}
	if c.MFATokenTTL != nil {
		config.MFATokenTTL = c.MFATokenTTL.Duration
	}
	if c.SignupTokenTTL != nil {
		config.SignupTokenTTL = c.SignupTokenTTL.Duration
	}
	if c.ProviderTokenTTL != nil {
		config.ProviderTokenTTL = c.ProviderTokenTTL.Duration
	}
	if c.SRPSessionTTL != nil {
		config.SRPSessionTTL = c.SRPSessionTTL.Duration
	}
	if c.HTTPSEnabled != nil {
		config.HTTPSEnabled = *c.HTTPSEnabled
	}
}
