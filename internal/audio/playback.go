package audio

import (
	"encoding/base64"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/voicechat/voice-client/internal/observability"
)

// Player turns decoded PCM into audible output. Play blocks until the
// fragment finishes naturally; Stop interrupts an in-flight Play.
type Player interface {
	Play(pcm []byte) error
	Stop()
}

// FragmentDelimiter joins a reply's encoded fragments when they are
// backfilled onto the finished message.
const FragmentDelimiter = ","

// SequencerHooks are invoked from the drain goroutine, never while the
// sequencer lock is held.
type SequencerHooks struct {
	// OnDrained fires when the queue empties and nothing is playing.
	OnDrained func()
	// OnBackfill delivers the delimiter-joined fragments of a completed
	// reply, exactly once per reply.
	OnBackfill func(joined string)
}

// Sequencer plays inbound synthesized fragments strictly in arrival
// order with no overlap. Fragments for the current reply are also
// accumulated so the finished audio can be attached to its message.
type Sequencer struct {
	player Player
	logger zerolog.Logger

	mu         sync.Mutex
	queue      []string // pending encoded fragments, FIFO
	accum      []string // every fragment of the current reply
	playing    bool
	replyDone  bool
	backfilled bool
	gen        int // bumped on barge-in to abandon the running drain
	hooks      SequencerHooks
}

// NewSequencer creates a playback sequencer over the given player.
func NewSequencer(player Player) *Sequencer {
	return &Sequencer{
		player: player,
		logger: observability.WithComponent("playback"),
	}
}

// SetHooks wires the session callbacks. Must be called before the first
// Enqueue.
func (s *Sequencer) SetHooks(h SequencerHooks) {
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

// BeginReply clears the fragment accumulator for a new AI reply.
func (s *Sequencer) BeginReply() {
	s.mu.Lock()
	s.accum = nil
	s.replyDone = false
	s.backfilled = false
	s.mu.Unlock()
}

// MarkReplyComplete records that the reply's final text arrived. If the
// queue already drained, the backfill and drained hooks fire now.
func (s *Sequencer) MarkReplyComplete() {
	s.mu.Lock()
	s.replyDone = true
	idle := !s.playing && len(s.queue) == 0
	var joined string
	var hooks SequencerHooks
	if idle {
		joined = s.takeBackfillLocked()
		hooks = s.hooks
	}
	s.mu.Unlock()

	if !idle {
		return
	}
	// Hooks re-enter the session; run them off the caller's goroutine.
	go func() {
		if joined != "" && hooks.OnBackfill != nil {
			hooks.OnBackfill(joined)
		}
		if hooks.OnDrained != nil {
			hooks.OnDrained()
		}
	}()
}

// Accumulated returns the delimiter-joined fragments received so far
// for the current reply, or "" when none arrived yet.
func (s *Sequencer) Accumulated() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.accum) == 0 {
		return ""
	}
	return strings.Join(s.accum, FragmentDelimiter)
}

// Enqueue appends an encoded fragment to the queue tail and starts
// draining if nothing is currently playing.
func (s *Sequencer) Enqueue(data string) {
	s.mu.Lock()
	s.accum = append(s.accum, data)
	s.queue = append(s.queue, data)
	start := !s.playing
	if start {
		s.playing = true
	}
	gen := s.gen
	s.mu.Unlock()

	if start {
		go s.drain(gen)
	}
}

// Pending returns the number of fragments waiting behind the one that
// is playing.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Playing reports whether a fragment is currently being played.
func (s *Sequencer) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Interrupt implements barge-in: the pending queue is cleared and any
// active playback stops. The abandoned drain fires no hooks.
func (s *Sequencer) Interrupt() {
	s.mu.Lock()
	s.gen++
	s.queue = nil
	s.playing = false
	s.mu.Unlock()

	s.player.Stop()
	observability.RecordBargeIn()
	s.logger.Info().Msg("playback interrupted")
}

// drain plays queued fragments one after another until the queue is
// empty, then fires the end-of-drain hooks if the reply is complete. A
// decode or playback failure skips that fragment and the drain
// continues.
func (s *Sequencer) drain(gen int) {
	for {
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.playing = false
			if !s.replyDone {
				// A network gap between fragments of one reply. The
				// reply is still open; the next Enqueue resumes the
				// drain and the hooks wait for the real end.
				s.mu.Unlock()
				return
			}
			joined := s.takeBackfillLocked()
			hooks := s.hooks
			s.mu.Unlock()

			if joined != "" && hooks.OnBackfill != nil {
				hooks.OnBackfill(joined)
			}
			if hooks.OnDrained != nil {
				hooks.OnDrained()
			}
			return
		}
		head := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		pcm, err := base64.StdEncoding.DecodeString(head)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping undecodable fragment")
			observability.RecordPlaybackFragment("skipped")
			continue
		}
		if err := s.player.Play(pcm); err != nil {
			s.logger.Warn().Err(err).Msg("fragment playback failed")
			observability.RecordPlaybackFragment("skipped")
			continue
		}
		observability.RecordPlaybackFragment("played")
		observability.RecordAudioBytes("played", int64(len(pcm)))
	}
}

// takeBackfillLocked returns the joined reply audio exactly once.
func (s *Sequencer) takeBackfillLocked() string {
	if s.backfilled || len(s.accum) == 0 {
		return ""
	}
	s.backfilled = true
	return strings.Join(s.accum, FragmentDelimiter)
}
