// Package config defines the application configuration structure and its
// loading from environment variables and optional YAML files.
package config
