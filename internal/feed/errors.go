package feed

import "errors"

var (
	// ErrInvalidURL is returned when a URL is not a well-formed http or
	// https URL. It is fatal to the single classification only.
	ErrInvalidURL = errors.New("invalid feed URL")

	// ErrContentTooLarge is returned when content exceeds MaxContentSize.
	ErrContentTooLarge = errors.New("content too large")
)
