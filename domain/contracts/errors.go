package contracts

import "errors"

// Sentinel errors surfaced by the content and directory clients. The URL
// classifier relies on these to distinguish a miss from a fault.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("access denied")
)
