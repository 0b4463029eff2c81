// Package config loads service configuration with Viper.
//
// Values come from a YAML config file, an optional .env file and the process
// environment. Environment variables use the upper-cased service name as a
// prefix and underscores for nesting:
//
//	SWITCHYARD_SELECTION_CACHE_TTL=5m  ->  selection.cache_ttl
//
// Every section type owns ApplyDefaults and Validate; ServiceConfig carries
// the fields shared by every binary.
package config
