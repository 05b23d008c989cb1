package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/spf13/viper"

	"github.com/chop-dbhi/smart-framingham/fhir"
)

var configKeys = []string{
	"APP_NAME", "APP_ENV", "APP_VERSION", "HOOKS_PORT", "APP_PORT", "TIMEOUT",
	"AUTH_MODE", "AUTH_SECRET", "AUTH_ISSUERS", "AUTH_HOST",
	"SMART_CLIENT_ID", "SMART_CLIENT_SECRET", "SMART_SCOPE", "SMART_LAUNCH_URL",
	"REDIS_URL", "SESSION_TTL", "VALUESET_TTL", "ELK_URL", "ELASTIC_APM_ACTIVE",
	"DETAIL_TEMPLATE", "INDEX_TEMPLATE",
	"SMOKING_CODE", "BP_CODE", "TOTAL_CHOL_CODE", "HDL_CHOL_CODE", "BP_MED_VALUESET", "BP_MED_CODES",
}

// readConfig merges the optional JSON config file with the environment.
// Environment variables win over the file.
func readConfig() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("APP_NAME", "smart-framingham")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HOOKS_PORT", 3000)
	v.SetDefault("APP_PORT", 5000)
	v.SetDefault("TIMEOUT", 30)
	v.SetDefault("AUTH_MODE", "jwt")
	v.SetDefault("SMART_SCOPE", "patient/*.read launch")
	v.SetDefault("SMART_LAUNCH_URL", "http://localhost:5000/smart-launch")
	v.SetDefault("SESSION_TTL", 30*time.Minute)
	v.SetDefault("VALUESET_TTL", 12*time.Hour)
	v.SetDefault("DETAIL_TEMPLATE", "static/cardDetail.txt")
	v.SetDefault("INDEX_TEMPLATE", "static/index.html")
	v.SetDefault("SMOKING_CODE", fhir.DefaultCodes.Smoking)
	v.SetDefault("BP_CODE", fhir.DefaultCodes.BloodPressure)
	v.SetDefault("TOTAL_CHOL_CODE", fhir.DefaultCodes.TotalCholesterol)
	v.SetDefault("HDL_CHOL_CODE", fhir.DefaultCodes.HDLCholesterol)
	v.SetDefault("BP_MED_VALUESET", fhir.DefaultCodes.MedicationTitle)
	v.SetDefault("BP_MED_CODES", fhir.DefaultCodes.Medications)

	// Bind env vars explicitly so Unmarshal picks them up
	v.AutomaticEnv()
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	// Config file is optional
	v.SetConfigFile(getEnv("CONFIG_FILE", "config.json"))
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the settings shared by every command.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("TIMEOUT must be a positive number of seconds, got %d", c.Timeout)
	}
	if c.HooksPort <= 0 || c.AppPort <= 0 {
		return fmt.Errorf("HOOKS_PORT and APP_PORT must be positive")
	}
	if c.Smoking == "" || c.BloodPressure == "" || c.TotalCholesterol == "" || c.HDLCholesterol == "" {
		return fmt.Errorf("observation codes must not be empty")
	}
	if slices.Contains(c.Medications, "") {
		return fmt.Errorf("BP_MED_CODES must not contain empty codes")
	}
	return nil
}

// ValidateAuth refuses settings that would leave the hooks endpoints open
// outside of development.
func (c *Config) ValidateAuth() error {
	switch c.AuthMode {
	case "jwt":
		if c.AuthSecret == "" {
			return fmt.Errorf("AUTH_SECRET is required when AUTH_MODE is \"jwt\"")
		}
		if len(c.AuthIssuers) == 0 {
			return fmt.Errorf("AUTH_ISSUERS is required when AUTH_MODE is \"jwt\"")
		}
	case "openid":
		if c.AuthHost == "" {
			return fmt.Errorf("AUTH_HOST is required when AUTH_MODE is \"openid\"")
		}
	case "none":
		if !c.isDev() {
			return fmt.Errorf("AUTH_MODE \"none\" is only allowed when APP_ENV is \"development\", got %q", c.AppEnv)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"jwt\", \"openid\" or \"none\", got %q", c.AuthMode)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
