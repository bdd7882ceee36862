// Package config provides centralized configuration management for the retail
// sales service. It handles loading configuration from multiple sources,
// validation, and provides a type-safe API for accessing configuration values.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority), optionally seeded from .env
//	2. A YAML configuration file (config.yaml, configs/config.yaml or MARTS_CONFIG_FILE)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern MARTS_* for namespacing:
//
//	MARTS_SERVER_PORT=8080
//	MARTS_CENSUS_API_KEY=...
//	MARTS_CENSUS_TIMEOUT=30s
//	MARTS_PIPELINE_UNMAPPED=drop
//	MARTS_LOGGING_LEVEL=info
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Tests use config.Default(), which needs no environment.
package config
