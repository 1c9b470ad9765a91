// Package config provides a reusable loader for the relay's configuration
// file and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"shogunrelay/pkg/utils"
)

// Config is the unified configuration for a relay process. It mirrors the
// structure of the YAML file under config/.
type Config struct {
	Server struct {
		ListenAddr    string        `mapstructure:"listen_addr" json:"listen_addr"`
		ShutdownDrain time.Duration `mapstructure:"shutdown_drain" json:"shutdown_drain"`
		CORSOrigins   []string      `mapstructure:"cors_origins" json:"cors_origins"`
	} `mapstructure:"server" json:"server"`

	Auth struct {
		AdminToken      string        `mapstructure:"admin_token" json:"-"`
		KeyFile         string        `mapstructure:"key_file" json:"key_file"`
		SessionTTL      time.Duration `mapstructure:"session_ttl" json:"session_ttl"`
		StrictSessionIP bool          `mapstructure:"strict_session_ip" json:"strict_session_ip"`
		FailWindow      time.Duration `mapstructure:"fail_window" json:"fail_window"`
		FailThreshold   int           `mapstructure:"fail_threshold" json:"fail_threshold"`
		WalletMessage   string        `mapstructure:"wallet_message" json:"wallet_message"`
	} `mapstructure:"auth" json:"auth"`

	Ledger struct {
		Backend string `mapstructure:"backend" json:"backend"` // "bolt" | "memory"
		Path    string `mapstructure:"path" json:"path"`
	} `mapstructure:"ledger" json:"ledger"`

	Drive struct {
		Backend string `mapstructure:"backend" json:"backend"` // "local" | "s3"
		Root    string `mapstructure:"root" json:"root"`
		S3      struct {
			Bucket   string `mapstructure:"bucket" json:"bucket"`
			Region   string `mapstructure:"region" json:"region"`
			Endpoint string `mapstructure:"endpoint" json:"endpoint"`
			Prefix   string `mapstructure:"prefix" json:"prefix"`
		} `mapstructure:"s3" json:"s3"`
	} `mapstructure:"drive" json:"drive"`

	IPFS struct {
		Gateway        string        `mapstructure:"gateway" json:"gateway"`
		GatewayTimeout time.Duration `mapstructure:"gateway_timeout" json:"gateway_timeout"`
	} `mapstructure:"ipfs" json:"ipfs"`

	Payment struct {
		VerifierEndpoint string        `mapstructure:"verifier_endpoint" json:"verifier_endpoint"`
		VerifierTimeout  time.Duration `mapstructure:"verifier_timeout" json:"verifier_timeout"`
	} `mapstructure:"payment" json:"payment"`

	Upload struct {
		MaxRequestBytes    int64         `mapstructure:"max_request_bytes" json:"max_request_bytes"`
		DefaultEstimateCap int64         `mapstructure:"default_estimate_cap" json:"default_estimate_cap"`
		Deadline           time.Duration `mapstructure:"deadline" json:"deadline"`
	} `mapstructure:"upload" json:"upload"`

	Quota struct {
		RelayCapBytes   int64   `mapstructure:"relay_cap_bytes" json:"relay_cap_bytes"`
		WarningFraction float64 `mapstructure:"warning_fraction" json:"warning_fraction"`
	} `mapstructure:"quota" json:"quota"`

	RateLimit struct {
		GlobalPer15Min int `mapstructure:"global_per_15min" json:"global_per_15min"`
		UploadsPerHour int `mapstructure:"uploads_per_hour" json:"uploads_per_hour"`
	} `mapstructure:"rate_limit" json:"rate_limit"`

	Scheduler struct {
		DealFastSync        time.Duration `mapstructure:"deal_fast_sync" json:"deal_fast_sync"`
		DealFullSync        time.Duration `mapstructure:"deal_full_sync" json:"deal_full_sync"`
		OrphanPinSweep      time.Duration `mapstructure:"orphan_pin_sweep" json:"orphan_pin_sweep"`
		OrphanPinMaxAge     time.Duration `mapstructure:"orphan_pin_max_age" json:"orphan_pin_max_age"`
		LinkExpiry          time.Duration `mapstructure:"link_expiry" json:"link_expiry"`
		CounterReconcile    time.Duration `mapstructure:"counter_reconcile" json:"counter_reconcile"`
		SessionReap         time.Duration `mapstructure:"session_reap" json:"session_reap"`
		Pulse               time.Duration `mapstructure:"pulse" json:"pulse"`
		DealActivationGrace time.Duration `mapstructure:"deal_activation_grace" json:"deal_activation_grace"`
	} `mapstructure:"scheduler" json:"scheduler"`

	Logging struct {
		Level  string `mapstructure:"level" json:"level"`
		Format string `mapstructure:"format" json:"format"` // "json" | "text"
	} `mapstructure:"logging" json:"logging"`
}

// Default returns a Config populated with the relay's built-in defaults.
// Load merges a YAML file and the environment on top of these.
func Default() Config {
	var c Config
	c.Server.ListenAddr = ":8080"
	c.Server.ShutdownDrain = 30 * time.Second
	c.Server.CORSOrigins = []string{"*"}

	c.Auth.KeyFile = "./data/relay-key.json"
	c.Auth.SessionTTL = 24 * time.Hour
	c.Auth.FailWindow = 15 * time.Minute
	c.Auth.FailThreshold = 5
	c.Auth.WalletMessage = "I Love Shogun"

	c.Ledger.Backend = "bolt"
	c.Ledger.Path = "./data/ledger.db"

	c.Drive.Backend = "local"
	c.Drive.Root = "./drive"

	c.IPFS.Gateway = "http://127.0.0.1:5001"
	c.IPFS.GatewayTimeout = 120 * time.Second

	c.Payment.VerifierEndpoint = "http://127.0.0.1:9402/verify"
	c.Payment.VerifierTimeout = 10 * time.Second

	c.Upload.MaxRequestBytes = 5 << 30 // 5 GiB
	c.Upload.DefaultEstimateCap = 256 << 20
	c.Upload.Deadline = 5 * time.Minute

	c.Quota.RelayCapBytes = 0 // 0 = disabled
	c.Quota.WarningFraction = 0.8

	c.RateLimit.GlobalPer15Min = 1000
	c.RateLimit.UploadsPerHour = 100

	c.Scheduler.DealFastSync = 120 * time.Second
	c.Scheduler.DealFullSync = 300 * time.Second
	c.Scheduler.OrphanPinSweep = 3600 * time.Second
	c.Scheduler.OrphanPinMaxAge = 24 * time.Hour
	c.Scheduler.LinkExpiry = 300 * time.Second
	c.Scheduler.CounterReconcile = 3600 * time.Second
	c.Scheduler.SessionReap = 300 * time.Second
	c.Scheduler.Pulse = 10 * time.Second
	c.Scheduler.DealActivationGrace = 72 * time.Hour

	c.Logging.Level = "info"
	c.Logging.Format = "text"
	return c
}

// Load reads config/<env>.yaml (when present) over config/default.yaml, then
// applies environment variable overrides, and finally unmarshals on top of
// Default(). env may be empty to skip the overlay file. An override is named
// RELAY_ plus the upper-cased key with dots replaced by underscores (e.g.
// RELAY_SERVER_LISTEN_ADDR); it applies to keys set in a loaded YAML file
// and to RELAY_AUTH_ADMIN_TOKEN. Other keys are not read from the
// environment.
func Load(env string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("default")
	v.AddConfigPath("config")
	v.AddConfigPath(".")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		v.SetConfigName(env)
		if err := v.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
			}
		}
	}

	v.SetEnvPrefix("relay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("auth.admin_token")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration using the RELAY_ENV environment variable
// to select an overlay file (e.g. "production" merges config/production.yaml).
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("RELAY_ENV", ""))
}
