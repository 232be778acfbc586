package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const (
	envPrefix          = "ROLLFLOW"
	defaultHTTPAddress = "0.0.0.0:8080"
	defaultLogLevel    = "info"
	appDirName         = "rollflow"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	CachePath        string
	MediaDir         string
	MediaBaseURL     string
	SigningSecret    string
	TokenTTLMinutes  int
	ProviderAudience string
	ProviderJWKSURL  string
	ProviderIssuers  []string
	ReplayIntervalS  int
	LogLevel         string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper
// instance. On-disk defaults land under the XDG data directory so that a
// flagless start works on a developer machine.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	dataDir := filepath.Join(xdg.DataHome, appDirName)

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", filepath.Join(dataDir, "rollflow.db"))
	configViper.SetDefault("cache.path", filepath.Join(dataDir, "fallback.db"))
	configViper.SetDefault("media.dir", filepath.Join(dataDir, "media"))
	configViper.SetDefault("media.base_url", "/media")
	configViper.SetDefault("token.ttl_minutes", 30)
	configViper.SetDefault("sharing.replay_interval_s", 60)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		CachePath:        configViper.GetString("cache.path"),
		MediaDir:         configViper.GetString("media.dir"),
		MediaBaseURL:     configViper.GetString("media.base_url"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		TokenTTLMinutes:  configViper.GetInt("token.ttl_minutes"),
		ProviderAudience: configViper.GetString("provider.audience"),
		ProviderJWKSURL:  configViper.GetString("provider.jwks_url"),
		ProviderIssuers:  configViper.GetStringSlice("provider.issuers"),
		ReplayIntervalS:  configViper.GetInt("sharing.replay_interval_s"),
		LogLevel:         configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.CachePath) == "" {
		return fmt.Errorf("cache.path is required")
	}
	if strings.TrimSpace(c.ProviderAudience) == "" {
		return fmt.Errorf("provider.audience is required")
	}
	if strings.TrimSpace(c.ProviderJWKSURL) == "" {
		return fmt.Errorf("provider.jwks_url is required")
	}
	if c.TokenTTLMinutes <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	return nil
}
