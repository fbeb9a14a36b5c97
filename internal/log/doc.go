// Package log builds the slog loggers used by feedscan.
//
// Every logger created here wraps its handler in a SecureHandler, which
// masks sensitive attribute values before they are written:
//   - attributes named like credentials (cookie, authorization, token, ...)
//   - values that look like bearer tokens, JWTs or private keys
//   - secret query parameters of URL values, such as the access token of a
//     private podcast feed
//   - sensitive entries of header maps
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("classify", "url", "https://example.com/feed?token=abc")
//	// url=https://example.com/feed?token=%2A%2A%2AREDACTED%2A%2A%2A
//
// The logger is a plain *slog.Logger and can be passed to tornago and to
// every feedscan component that accepts one.
package log
