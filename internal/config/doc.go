// Package config provides the settings of a feedscan invocation: the
// search options of a discovery run with their named defaults, CLI-level
// settings, and the optional .feedscan YAML file with per-site overrides.
package config
