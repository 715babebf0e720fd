package serial

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"go.bug.st/serial"

	"github.com/nerrad567/gray-logic-serialbridge/internal/infrastructure/config"
)

// readBufferSize is the bufio buffer in front of the port.
const readBufferSize = 4096

// Port is the minimal view of a serial port the reader needs.
// serial.Port satisfies it; tests substitute pipes or buffers.
type Port interface {
	io.ReadCloser
}

// Opener opens a port at the given device path.
type Opener func(device string, mode *serial.Mode) (Port, error)

// openPort opens a real serial port.
func openPort(device string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Reader returns newline-terminated lines from a Port.
//
// ReadLine is not safe for concurrent use; Close may be called from any
// goroutine and unblocks a pending ReadLine on ports whose Read returns
// once the port is closed.
type Reader struct {
	port    Port
	buf     *bufio.Reader
	maxLine int

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open opens the configured device with its line settings.
//
// Returns:
//   - *Reader: Ready for ReadLine
//   - error: wrapping ErrInvalidOptions for bad settings or ErrIO if the device cannot be opened
func Open(cfg config.SerialConfig) (*Reader, error) {
	return OpenWith(cfg, openPort)
}

// OpenWith is Open with a custom opener.
func OpenWith(cfg config.SerialConfig, open Opener) (*Reader, error) {
	mode, err := OptionsFromConfig(cfg).Mode()
	if err != nil {
		return nil, err
	}

	port, err := open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrIO, cfg.Device, err)
	}

	return NewReader(port, cfg.MaxLineLength), nil
}

// NewReader wraps an already open port. maxLine bounds a line in bytes,
// excluding the terminator; 0 means unbounded.
func NewReader(port Port, maxLine int) *Reader {
	return &Reader{
		port:    port,
		buf:     bufio.NewReaderSize(port, readBufferSize),
		maxLine: maxLine,
	}
}

// ReadLine blocks until a full line is available and returns it without the
// trailing "\n" or "\r\n".
//
// End of stream, read failures, invalid UTF-8 and over-long lines all
// return an error wrapping ErrIO. Errors are never retried here.
func (r *Reader) ReadLine() (string, error) {
	var line []byte

	for {
		chunk, err := r.buf.ReadSlice('\n')
		line = append(line, chunk...)

		if r.maxLine > 0 && len(bytes.TrimRight(line, "\r\n")) > r.maxLine {
			r.discardRest(err)
			return "", fmt.Errorf("%w: %w: limit %d bytes", ErrIO, ErrLineTooLong, r.maxLine)
		}

		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return "", r.readError(err, len(line))
	}

	line = bytes.TrimSuffix(line[:len(line)-1], []byte{'\r'})
	if !utf8.Valid(line) {
		return "", fmt.Errorf("%w: %w", ErrIO, ErrDecode)
	}

	return string(line), nil
}

// discardRest drops the remainder of an over-long line so the next
// ReadLine starts on a fresh line.
func (r *Reader) discardRest(lastErr error) {
	err := lastErr
	for errors.Is(err, bufio.ErrBufferFull) {
		_, err = r.buf.ReadSlice('\n')
	}
}

// readError classifies a failed read.
func (r *Reader) readError(err error, partial int) error {
	if r.closed.Load() {
		return fmt.Errorf("%w: %w", ErrIO, ErrClosed)
	}
	if errors.Is(err, io.EOF) {
		if partial > 0 {
			return fmt.Errorf("%w: device closed mid-line after %d bytes: %w", ErrIO, partial, io.ErrUnexpectedEOF)
		}
		return fmt.Errorf("%w: device closed: %w", ErrIO, io.EOF)
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}

// Close releases the port. Safe to call more than once; later calls return
// the first result.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.closeErr = r.port.Close()
	})
	return r.closeErr
}
