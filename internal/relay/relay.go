package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// historyTimeout bounds a single history write.
const historyTimeout = 2 * time.Second

// LineReader yields newline-terminated lines with the terminator removed.
type LineReader interface {
	ReadLine() (string, error)
}

// Publisher sends a payload to a topic. Delivery guarantees are the
// transport's; an error is fatal to the relay.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// History records published envelopes for diagnostics.
type History interface {
	Record(ctx context.Context, topic string, env Envelope) error
}

// Logger is the structured logger used by the relay.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Relay.
type Options struct {
	// Topic is where envelopes are published. Required.
	Topic string

	// Logger is optional; nil discards.
	Logger Logger

	// History is optional; nil disables recording.
	History History
}

// Relay moves lines from a LineReader to a Publisher and observes inbound
// messages. Counters are safe to read while Run is active.
type Relay struct {
	topic   string
	logger  Logger
	history History

	linesRead    atomic.Uint64
	published    atomic.Uint64
	received     atomic.Uint64
	bytesOut     atomic.Uint64
	lastSequence atomic.Uint64
}

// New creates a relay for the given options.
func New(opts Options) (*Relay, error) {
	if opts.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Relay{
		topic:   opts.Topic,
		logger:  logger,
		history: opts.History,
	}, nil
}

// Run relays with default options. See Relay.Run.
func Run(ctx context.Context, reader LineReader, publisher Publisher, topic string) error {
	r, err := New(Options{Topic: topic})
	if err != nil {
		return err
	}
	return r.Run(ctx, reader, publisher)
}

// Run reads lines until ctx is cancelled or a fatal error occurs.
//
// Each iteration checks ctx, blocks in ReadLine, then publishes one
// envelope with the next sequence number. The first envelope has
// sequence 0. A reader failure returns an error wrapping ErrIO; a publish
// failure returns one wrapping ErrPublish. Cancellation returns ctx.Err().
//
// If reader implements io.Closer it is closed when ctx is cancelled so a
// blocked ReadLine returns.
func (r *Relay) Run(ctx context.Context, reader LineReader, publisher Publisher) error {
	if closer, ok := reader.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() {
			closer.Close() //nolint:errcheck // Only used to unblock ReadLine
		})
		defer stop()
	}

	var sequence uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadLine()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: after %d lines: %w", ErrIO, sequence, err)
		}
		r.linesRead.Add(1)

		env := Envelope{Message: line, Sequence: sequence}
		payload, err := env.Marshal()
		if err != nil {
			return fmt.Errorf("%w: encoding sequence %d: %w", ErrPublish, sequence, err)
		}

		if err := publisher.Publish(r.topic, payload); err != nil {
			return fmt.Errorf("%w: topic %s sequence %d: %w", ErrPublish, r.topic, sequence, err)
		}

		r.published.Add(1)
		r.bytesOut.Add(uint64(len(payload)))
		r.lastSequence.Store(sequence)
		r.logger.Debug("line published", "topic", r.topic, "sequence", sequence, "message", line)

		r.record(ctx, env)
		sequence++
	}
}

// record writes env to the history. Failures are logged and never stop the loop.
func (r *Relay) record(ctx context.Context, env Envelope) {
	if r.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()

	if err := r.history.Record(ctx, r.topic, env); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("recording history failed", "sequence", env.Sequence, "error", err)
	}
}

// Topic returns the publish topic.
func (r *Relay) Topic() string {
	return r.topic
}

// Stats is a point-in-time snapshot of the relay counters.
type Stats struct {
	LinesRead    uint64
	Published    uint64
	Received     uint64
	BytesOut     uint64
	LastSequence uint64 // meaningful only when Published > 0
}

// Stats returns the current counters.
func (r *Relay) Stats() Stats {
	return Stats{
		LinesRead:    r.linesRead.Load(),
		Published:    r.published.Load(),
		Received:     r.received.Load(),
		BytesOut:     r.bytesOut.Load(),
		LastSequence: r.lastSequence.Load(),
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
