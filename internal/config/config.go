package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Unmapped-code policies for the resource corrector.
const (
	PolicyFail     = "fail"
	PolicyFallback = "fallback"
)

type Config struct {
	Env                string   `mapstructure:"ENV"`
	BlazeURL           string   `mapstructure:"BLAZE_URL"`
	BlazeUsername      string   `mapstructure:"BLAZE_USERNAME"`
	BlazePassword      string   `mapstructure:"BLAZE_PASSWORD"`
	BlazeToken         string   `mapstructure:"BLAZE_TOKEN"`
	ResourceTypes      []string `mapstructure:"RESOURCE_TYPES"`
	ProbeMaxAttempts   int      `mapstructure:"PROBE_MAX_ATTEMPTS"`
	ProbeWaitSeconds   int      `mapstructure:"PROBE_WAIT_SECONDS"`
	RetryMax           int      `mapstructure:"RETRY_MAX"`
	UnmappedPolicy     string   `mapstructure:"UNMAPPED_POLICY"`
	FallbackCollection string   `mapstructure:"FALLBACK_COLLECTION"`
	PagePathMarker     string   `mapstructure:"PAGE_PATH_MARKER"`
	CatalogFile        string   `mapstructure:"CATALOG_FILE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("RESOURCE_TYPES", "Specimen")
	v.SetDefault("PROBE_MAX_ATTEMPTS", 10)
	v.SetDefault("PROBE_WAIT_SECONDS", 60)
	v.SetDefault("RETRY_MAX", 10)
	v.SetDefault("UNMAPPED_POLICY", PolicyFallback)
	v.SetDefault("FALLBACK_COLLECTION", "bbmri-eric:ID:CZ_MMCI:collection:Other")
	v.SetDefault("PAGE_PATH_MARKER", "/fhir")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("BLAZE_URL")
	v.BindEnv("BLAZE_USERNAME")
	v.BindEnv("BLAZE_PASSWORD")
	v.BindEnv("BLAZE_TOKEN")
	v.BindEnv("RESOURCE_TYPES")
	v.BindEnv("PROBE_MAX_ATTEMPTS")
	v.BindEnv("PROBE_WAIT_SECONDS")
	v.BindEnv("RETRY_MAX")
	v.BindEnv("UNMAPPED_POLICY")
	v.BindEnv("FALLBACK_COLLECTION")
	v.BindEnv("PAGE_PATH_MARKER")
	v.BindEnv("CATALOG_FILE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if types := v.GetString("RESOURCE_TYPES"); types != "" {
		cfg.ResourceTypes = splitAndTrim(types)
	}

	if cfg.BlazeURL == "" {
		return nil, fmt.Errorf("BLAZE_URL is required")
	}
	cfg.BlazeURL = strings.TrimRight(cfg.BlazeURL, "/")

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Credentials must be
// consistent (basic auth needs both halves, and is mutually exclusive with a
// bearer token), and the unmapped-code policy must be one of the known values.
func (c *Config) Validate() error {
	if (c.BlazeUsername == "") != (c.BlazePassword == "") {
		return fmt.Errorf("BLAZE_USERNAME and BLAZE_PASSWORD must be set together")
	}
	if c.BlazeToken != "" && c.BlazeUsername != "" {
		return fmt.Errorf("BLAZE_TOKEN and BLAZE_USERNAME/BLAZE_PASSWORD are mutually exclusive")
	}
	switch c.UnmappedPolicy {
	case PolicyFail:
	case PolicyFallback:
		if c.FallbackCollection == "" {
			return fmt.Errorf("FALLBACK_COLLECTION is required when UNMAPPED_POLICY is %q", PolicyFallback)
		}
	default:
		return fmt.Errorf("UNMAPPED_POLICY must be %q or %q, got %q", PolicyFail, PolicyFallback, c.UnmappedPolicy)
	}
	if c.ProbeMaxAttempts < 1 {
		return fmt.Errorf("PROBE_MAX_ATTEMPTS must be at least 1, got %d", c.ProbeMaxAttempts)
	}
	if c.ProbeWaitSeconds < 0 {
		return fmt.Errorf("PROBE_WAIT_SECONDS must not be negative, got %d", c.ProbeWaitSeconds)
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("RETRY_MAX must not be negative, got %d", c.RetryMax)
	}
	if len(c.ResourceTypes) == 0 {
		return fmt.Errorf("RESOURCE_TYPES must name at least one resource type")
	}
	return nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
