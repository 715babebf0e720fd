package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnMessage_LogsTopicAndPayload(t *testing.T) {
	logger := &recordingLogger{}
	r, err := New(Options{Topic: "board/serial", Logger: logger})
	require.NoError(t, err)

	r.OnMessage("board/serial", []byte(`{"message":"hi","sequence":0}`))

	entry := logger.last()
	assert.Equal(t, "info", entry.level)
	assert.Equal(t, []any{"topic", "board/serial", "payload", `{"message":"hi","sequence":0}`}, entry.args)
	assert.Equal(t, uint64(1), r.Stats().Received)
}

func TestOnMessage_NeverPanics(t *testing.T) {
	r, err := New(Options{Topic: "t", Logger: panicLogger{}})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		r.OnMessage("t", []byte("boom"))
		r.OnMessage("", nil)
	})
	assert.Equal(t, uint64(2), r.Stats().Received)
}

func TestOnMessage_BoundedDuration(t *testing.T) {
	r, err := New(Options{Topic: "t"})
	require.NoError(t, err)

	const calls = 1000
	payload := make([]byte, 4096)

	start := time.Now()
	for i := 0; i < calls; i++ {
		r.OnMessage("t", payload)
	}
	perCall := time.Since(start) / calls

	assert.Less(t, perCall, time.Millisecond)
}

func TestOnMessage_ConcurrentWithPublishing(t *testing.T) {
	r, err := New(Options{Topic: "t", Logger: &recordingLogger{}})
	require.NoError(t, err)

	lines := make([]string, 200)
	reader := &scriptedReader{lines: lines, err: errDeviceGone}
	pub := &recordingPublisher{}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = r.Run(t.Context(), reader, pub) //nolint:errcheck // Ends with ErrIO
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			r.OnMessage("t", []byte("echo"))
		}
	}()
	wg.Wait()

	stats := r.Stats()
	assert.Equal(t, uint64(200), stats.Published)
	assert.Equal(t, uint64(200), stats.Received)
}

func TestLogPublisher(t *testing.T) {
	logger := &recordingLogger{}
	pub := LogPublisher{Logger: logger}

	require.NoError(t, pub.Publish("board/serial", []byte(`{"message":"x","sequence":0}`)))

	entry := logger.last()
	assert.Equal(t, "echo", entry.msg)
	assert.Equal(t, []any{"topic", "board/serial", "payload", `{"message":"x","sequence":0}`}, entry.args)

	assert.NoError(t, LogPublisher{}.Publish("t", nil), "nil logger must not fail")
}
