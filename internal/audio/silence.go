package audio

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/voicechat/voice-client/internal/observability"
)

// LevelSource exposes the live RMS energy of the capture window.
type LevelSource interface {
	Level() float64
}

// SilenceConfig tunes end-of-speech detection.
type SilenceConfig struct {
	Threshold float64       // RMS energy at or below which a sample counts as silence
	Hold      time.Duration // continuous silence required before auto-stop
	Poll      time.Duration // sampling interval
}

// DefaultSilenceConfig returns the standard detection parameters.
func DefaultSilenceConfig() SilenceConfig {
	return SilenceConfig{
		Threshold: 500.0,
		Hold:      1500 * time.Millisecond,
		Poll:      100 * time.Millisecond,
	}
}

// SilenceDetector polls the capture analysis window while a segment is
// being recorded and fires an auto-stop exactly once per segment when
// the energy stays at or below the threshold for the hold duration.
type SilenceDetector struct {
	cfg    SilenceConfig
	src    LevelSource
	logger zerolog.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	fired     bool
	lastVoice time.Time
}

// NewSilenceDetector creates a detector over the given level source.
func NewSilenceDetector(src LevelSource, cfg SilenceConfig) *SilenceDetector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 500.0
	}
	if cfg.Hold <= 0 {
		cfg.Hold = 1500 * time.Millisecond
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 100 * time.Millisecond
	}
	return &SilenceDetector{
		cfg:    cfg,
		src:    src,
		logger: observability.WithComponent("silence"),
	}
}

// Arm starts polling for end of speech on a fresh segment. Any previous
// poll is cancelled and the once-per-segment guard resets.
func (d *SilenceDetector) Arm(onAutoStop func()) {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.fired = false
	d.lastVoice = time.Now()
	d.mu.Unlock()

	go d.poll(ctx, onAutoStop)
}

// Disarm stops polling immediately. Safe to call when not armed.
func (d *SilenceDetector) Disarm() {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()
}

func (d *SilenceDetector) poll(ctx context.Context, onAutoStop func()) {
	ticker := time.NewTicker(d.cfg.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if d.observe(d.src.Level(), now) {
				d.logger.Info().Msg("silence hold elapsed, auto-stopping segment")
				observability.RecordSilenceAutoStop()
				onAutoStop()
				return
			}
		}
	}
}

// observe records one level sample and reports whether the auto-stop
// fires on this sample. The guard flag ensures at most one firing per
// armed segment.
func (d *SilenceDetector) observe(level float64, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fired {
		return false
	}
	if level > d.cfg.Threshold {
		d.lastVoice = now
		return false
	}
	if now.Sub(d.lastVoice) >= d.cfg.Hold {
		d.fired = true
		return true
	}
	return false
}
