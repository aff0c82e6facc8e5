// Package config loads the service settings from defaults, an optional YAML
// file, a .env file and the process environment.
package config
