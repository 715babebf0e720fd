package relay

import "errors"

// Fatal loop errors. Run wraps the underlying cause.
var (
	// ErrIO indicates the line reader failed; the device is considered gone.
	ErrIO = errors.New("relay: read failed")

	// ErrPublish indicates an envelope could not be encoded or published.
	ErrPublish = errors.New("relay: publish failed")
)
