// Package config loads the payload configuration and constructs the logger.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load builds a Viper instance with payload defaults applied, optionally
// reading a config file. When configPath is empty, kestrel.yaml is searched
// in the working directory, ./configs, and /etc/kestrel. A missing config
// file is not an error; defaults and environment variables still apply.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metadata.endpoint", "http://169.254.169.254/metadata/instance")
	v.SetDefault("metadata.timeout", "10s")

	v.SetDefault("secrets.host_pattern", "kestrel-%s.secrets.internal")
	v.SetDefault("secrets.timeout", "30s")

	v.SetDefault("credentials.prefix", "SqlDb-")
	v.SetDefault("credentials.sink_secret", "LogIngestion")

	v.SetDefault("content.dir", "./content")
	v.SetDefault("state.path", "./state/kestrel.db")

	v.SetDefault("ingest.endpoint_pattern", "https://%s.ingest.kestrelmon.io/api/logs")
	v.SetDefault("ingest.timeout", "30s")

	v.SetDefault("analytics.url", "")
	v.SetDefault("analytics.token", "")
	v.SetDefault("analytics.org", "kestrel")
	v.SetDefault("analytics.bucket", "analytics")
	v.SetDefault("analytics.rate_limit", 50.0)
	v.SetDefault("analytics.burst", 10)

	v.SetDefault("telemetry.pushgateway_url", "")
	v.SetDefault("telemetry.job", "kestrel")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("kestrel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/kestrel")
	}

	// Environment variable support: KESTREL_LOGGING_LEVEL=debug
	v.SetEnvPrefix("KESTREL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
