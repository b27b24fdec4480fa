// Package config loads runtime configuration from multiple sources (an
// optional .env file, environment variables, YAML files, CLI flags) with
// precedence: CLI flags > YAML config > Environment variables > Defaults.
// It selects the inventory storage backend, the deduction mode and the
// business rules used when matching records.
package config
