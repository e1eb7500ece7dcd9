package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/voicechat/voice-client/internal/observability"
)

// RecorderSession is a live microphone capture session. Read returns
// raw s16le PCM; Stop releases the input device.
type RecorderSession interface {
	io.Reader
	Stop() error
}

// Recorder acquires the audio input device and starts capture sessions.
type Recorder interface {
	Start(ctx context.Context) (RecorderSession, error)
}

// CaptureConfig describes how microphone audio is sliced and analyzed.
type CaptureConfig struct {
	SampleRate    int           // Hz
	Channels      int           // typically 1
	ChunkInterval time.Duration // audio per chunk, e.g. 100ms
	WindowBytes   int           // analysis window size; defaults to one chunk
}

func (c CaptureConfig) chunkBytes() int {
	n := int(int64(c.SampleRate*c.Channels*2) * int64(c.ChunkInterval) / int64(time.Second))
	if n < 2 {
		n = 2
	}
	if n%2 != 0 {
		n++
	}
	return n
}

// Capture owns one microphone segment at a time. Chunks are appended to
// an outbound buffer (flushed as one framed unit on Stop) and to a
// retained buffer kept for local attachment to the resulting user
// message. A live analysis window feeds the silence detector.
type Capture struct {
	rec    Recorder
	cfg    CaptureConfig
	logger zerolog.Logger

	mu        sync.Mutex
	recording bool
	session   RecorderSession
	pumpDone  chan struct{}
	chunks    [][]byte
	retained  [][]byte
	window    *SampleRing
}

// NewCapture creates a capture pipeline over the given recorder.
func NewCapture(rec Recorder, cfg CaptureConfig) *Capture {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = 100 * time.Millisecond
	}
	if cfg.WindowBytes <= 0 {
		cfg.WindowBytes = cfg.chunkBytes()
	}
	return &Capture{
		rec:    rec,
		cfg:    cfg,
		logger: observability.WithComponent("capture"),
		window: NewSampleRing(cfg.WindowBytes),
	}
}

// MimeType describes the encoding of the flushed segment.
func (c *Capture) MimeType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", c.cfg.SampleRate)
}

// Start acquires the input device and begins slicing chunks. Calling
// Start while a segment is already recording is a no-op.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		c.logger.Debug().Msg("capture already running, ignoring start")
		return nil
	}
	c.mu.Unlock()

	// Device acquisition can take arbitrarily long; do it unlocked.
	session, err := c.rec.Start(ctx)
	if err != nil {
		return fmt.Errorf("acquire input device: %w", err)
	}

	c.mu.Lock()
	if c.recording {
		// Raced with another Start; the first one owns the device.
		c.mu.Unlock()
		_ = session.Stop()
		return nil
	}
	c.recording = true
	c.session = session
	c.chunks = nil
	c.window.Clear()
	done := make(chan struct{})
	c.pumpDone = done
	c.mu.Unlock()

	go c.pump(session, done)
	c.logger.Info().Int("sample_rate", c.cfg.SampleRate).Msg("capture started")
	return nil
}

// pump slices the device stream into fixed-interval chunks. With a
// realtime device each ReadFull blocks for one chunk interval.
func (c *Capture) pump(session RecorderSession, done chan struct{}) {
	defer close(done)

	size := c.cfg.chunkBytes()
	for {
		buf := make([]byte, size)
		n, err := io.ReadFull(session, buf)
		if n > 0 {
			chunk := buf[:n]
			c.mu.Lock()
			if c.session == session {
				c.chunks = append(c.chunks, chunk)
				c.retained = append(c.retained, chunk)
				c.window.Write(chunk)
			}
			c.mu.Unlock()
			observability.RecordAudioBytes("captured", int64(n))
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				c.logger.Debug().Err(err).Msg("capture stream ended")
			}
			return
		}
	}
}

// Stop finalizes the recorder, releases the device, and returns the
// whole segment base64-encoded. An empty string means zero chunks were
// captured and nothing should be sent. Stop without an active segment
// is a no-op.
func (c *Capture) Stop() (string, error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return "", nil
	}
	c.recording = false
	session := c.session
	done := c.pumpDone
	c.mu.Unlock()

	// Release device tracks unconditionally, then wait until the
	// recorder fully finalizes so partial segments are never framed.
	stopErr := session.Stop()
	<-done

	c.mu.Lock()
	chunks := c.chunks
	c.chunks = nil
	c.session = nil
	c.pumpDone = nil
	c.mu.Unlock()

	if len(chunks) == 0 {
		c.logger.Info().Msg("capture stopped with no audio")
		return "", stopErr
	}

	segment := bytes.Join(chunks, nil)
	observability.RecordCaptureSegment()
	c.logger.Info().
		Int("chunks", len(chunks)).
		Int("bytes", len(segment)).
		Msg("capture segment finalized")
	return base64.StdEncoding.EncodeToString(segment), stopErr
}

// Recording reports whether a segment is currently being captured.
func (c *Capture) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Level returns the RMS energy of the most recent analysis window.
func (c *Capture) Level() float64 {
	return CalculateRMS(SamplesFromPCM16(c.window.Snapshot()))
}

// RetainedAudio returns the locally retained segment base64-encoded,
// for immediate attachment to the resulting user message.
func (c *Capture) RetainedAudio() (string, bool) {
	c.mu.Lock()
	retained := c.retained
	c.mu.Unlock()

	if len(retained) == 0 {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(bytes.Join(retained, nil)), true
}

// ClearRetained discards the retained buffer at the start of a new
// segment.
func (c *Capture) ClearRetained() {
	c.mu.Lock()
	c.retained = nil
	c.mu.Unlock()
}
