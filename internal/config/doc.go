// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Optional sections (database, progress, mirror, events) are disabled when their
// address field is empty.
package config
