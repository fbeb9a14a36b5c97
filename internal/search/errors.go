package search

import "errors"

// ErrInvalidSiteURL is returned when a site URL cannot be searched.
var ErrInvalidSiteURL = errors.New("invalid site URL")
