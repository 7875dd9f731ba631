package identifier

import "errors"

// User-input errors. Neither should be retried.
var (
	ErrNotAProductURL   = errors.New("identifier: not a product URL")
	ErrTooManyRedirects = errors.New("identifier: too many redirects")
)
