// Package config provides centralized configuration management for the
// AgentSwap daemon. It loads the JSON configuration file, applies defaults
// relative to the config directory, and exposes typed accessors for
// downstream services.
package config
