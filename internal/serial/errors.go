package serial

import "errors"

// Sentinel errors for serial operations.
// Every error returned by ReadLine wraps ErrIO; the others add detail.
var (
	// ErrIO indicates the device could not be opened or read.
	ErrIO = errors.New("serial: i/o error")

	// ErrDecode indicates a line was not valid UTF-8.
	ErrDecode = errors.New("serial: line is not valid UTF-8")

	// ErrLineTooLong indicates a line exceeded the configured maximum length.
	ErrLineTooLong = errors.New("serial: line too long")

	// ErrClosed indicates the reader was closed.
	ErrClosed = errors.New("serial: reader closed")

	// ErrInvalidOptions indicates unusable port settings.
	ErrInvalidOptions = errors.New("serial: invalid port options")
)
