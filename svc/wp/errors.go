package wp

import "errors"

var (
	ErrInvalidBaseURL     = errors.New("wp: invalid base URL")
	ErrMissingCredentials = errors.New("wp: consumer key and secret are required")
)
