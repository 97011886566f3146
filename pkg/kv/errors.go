package kv

import "errors"

var (
	ErrNotFound      = errors.New("kv: key not found")
	ErrEmptyKey      = errors.New("kv: empty key")
	ErrClosed        = errors.New("kv: store is closed")
	ErrUnknownDriver = errors.New("kv: unknown driver")
	ErrStoreFailed   = errors.New("kv: store operation failed")
	ErrMissingBucket = errors.New("kv: s3 bucket is not configured")
)
