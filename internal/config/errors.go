package config

import "errors"

// Configuration validation errors returned by Config.Validate and
// ParseSearchMode.
var (
	// ErrNoTarget is returned when no site URL is given.
	ErrNoTarget = errors.New("no target specified: provide at least one site URL")

	// ErrConflictingReportFormats is returned when more than one of --json,
	// --markdown and --text is given.
	ErrConflictingReportFormats = errors.New("conflicting report formats: choose one of --json, --markdown, --text")

	// ErrConflictingStrategies is returned when more than one "only"
	// strategy flag is given.
	ErrConflictingStrategies = errors.New("conflicting strategy flags: --metasearch, --blindsearch, --anchorsonly and --deepsearch-only are mutually exclusive")

	// ErrInvalidSearchMode is returned for an unknown search mode.
	ErrInvalidSearchMode = errors.New("invalid search mode")

	// ErrInvalidBatchSize is returned when the site batch size is not
	// positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingProxy is returned when both --proxy and --tor are given.
	ErrConflictingProxy = errors.New("conflicting proxy settings: --proxy and --tor cannot be used together")

	// ErrInvalidProxyAddress is returned when the proxy address is not
	// "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrConfigNotFound is returned when the configuration file does not
	// exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
