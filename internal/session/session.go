package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/voicechat/voice-client/internal/observability"
	"github.com/voicechat/voice-client/internal/protocol"
	"github.com/voicechat/voice-client/internal/transport"
)

// CapturePipeline is the microphone side of the session.
type CapturePipeline interface {
	Start(ctx context.Context) error
	Stop() (string, error)
	RetainedAudio() (string, bool)
	ClearRetained()
	Recording() bool
	MimeType() string
}

// PlaybackSequencer is the speaker side of the session.
type PlaybackSequencer interface {
	BeginReply()
	Enqueue(data string)
	MarkReplyComplete()
	Interrupt()
	Accumulated() string
}

// SilenceWatcher ends a speech segment after sustained silence.
type SilenceWatcher interface {
	Arm(onAutoStop func())
	Disarm()
}

// Sender writes protocol frames to the backend.
type Sender interface {
	Send(frameType protocol.MessageType, frame interface{}) error
}

// Config tunes session behavior.
type Config struct {
	// TranscriptTimeout bounds the wait for a final transcript after a
	// segment was sent. Zero disables the watchdog.
	TranscriptTimeout time.Duration
}

// Session coordinates capture, playback, and the wire protocol into the
// idle, listening, processing, speaking conversation loop.
type Session struct {
	capture  CapturePipeline
	playback PlaybackSequencer
	silence  SilenceWatcher
	sender   Sender
	history  *History
	cfg      Config
	logger   zerolog.Logger

	mu                 sync.Mutex
	state              AppState
	connStatus         transport.Status
	conversationActive bool
	sessionID          string
	transcript         string // latest interim transcript
	streamText         string // cumulative streamed reply text
	aiProcessing       bool   // backend is working on a reply, no text yet
	emotion            Emotion
	lastError          string
	transcriptTimer    *time.Timer

	onUpdate func() // UI refresh hook, may be nil
}

// New creates a session over the given collaborators.
func New(capture CapturePipeline, playback PlaybackSequencer, silence SilenceWatcher, sender Sender, cfg Config) *Session {
	return &Session{
		capture:    capture,
		playback:   playback,
		silence:    silence,
		sender:     sender,
		history:    NewHistory(),
		cfg:        cfg,
		logger:     observability.WithComponent("session"),
		state:      StateIdle,
		connStatus: transport.StatusClosed,
		emotion:    EmotionNeutral,
	}
}

// PlaybackDrained is the sequencer's end-of-drain hook.
func (s *Session) PlaybackDrained() { s.playbackDrained() }

// AttachReplyAudio backfills the joined reply audio onto the newest AI
// message.
func (s *Session) AttachReplyAudio(joined string) {
	if msg := s.history.Last(RoleAI); msg != nil {
		if msg.AttachAudio(joined) {
			s.logger.Debug().Str("message_id", msg.ID).Msg("reply audio attached")
		}
	}
}

// OnUpdate registers a hook invoked after every externally visible
// state change.
func (s *Session) OnUpdate(fn func()) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// State returns the current conversation phase.
func (s *Session) State() AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnStatus returns the connection status last reported by transport.
func (s *Session) ConnStatus() transport.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connStatus
}

// SessionID returns the backend-assigned session identifier.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Transcript returns the latest interim transcript text.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// AIProcessing reports whether the backend flagged a reply as in
// progress with no streamed text yet.
func (s *Session) AIProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aiProcessing
}

// StreamingText returns the cumulative streamed reply text.
func (s *Session) StreamingText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamText
}

// CurrentEmotion returns the emotion of the newest AI reply.
func (s *Session) CurrentEmotion() Emotion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emotion
}

// LastError returns the most recent surfaced error message.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// History returns the conversation log.
func (s *Session) History() *History {
	return s.history
}

// StartRecording begins a user-initiated speech segment. The segment
// keeps the hands-free conversation loop active until StopRecording.
func (s *Session) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	if s.connStatus != transport.StatusOpen {
		s.mu.Unlock()
		return fmt.Errorf("cannot record while %s", s.connStatus)
	}
	if s.state == StateListening {
		s.mu.Unlock()
		return nil
	}
	s.conversationActive = true
	s.mu.Unlock()

	return s.beginSegment(ctx)
}

// StopRecording ends the segment and the hands-free loop. The captured
// audio is still sent for processing.
func (s *Session) StopRecording() error {
	s.mu.Lock()
	s.conversationActive = false
	s.mu.Unlock()
	return s.finishSegment()
}

// beginSegment acquires the microphone and notifies the backend.
func (s *Session) beginSegment(ctx context.Context) error {
	if err := s.capture.Start(ctx); err != nil {
		s.surfaceError("microphone unavailable: "+err.Error(), "capture")
		s.mu.Lock()
		s.conversationActive = false
		s.setStateLocked(StateIdle)
		s.mu.Unlock()
		s.notify()
		return err
	}

	if err := s.sender.Send(protocol.TypeStartRecording, protocol.NewStartRecording()); err != nil {
		s.logger.Warn().Err(err).Msg("start_recording not delivered")
	}
	s.silence.Arm(s.autoStop)

	s.mu.Lock()
	s.transcript = ""
	s.setStateLocked(StateListening)
	s.mu.Unlock()
	s.notify()
	s.logger.Info().Msg("segment started")
	return nil
}

// autoStop is the silence detector callback. The segment ends but the
// conversation loop stays active so playback hands the mic back.
func (s *Session) autoStop() {
	s.logger.Info().Msg("segment auto-stopped on silence")
	if err := s.finishSegment(); err != nil {
		s.logger.Warn().Err(err).Msg("auto-stop finalize failed")
	}
}

// finishSegment finalizes capture and ships the segment as one framed
// audio_complete unit. A segment with zero chunks sends nothing.
func (s *Session) finishSegment() error {
	s.silence.Disarm()

	encoded, err := s.capture.Stop()
	if err != nil {
		s.logger.Warn().Err(err).Msg("capture finalize reported error")
	}

	if serr := s.sender.Send(protocol.TypeStopRecording, protocol.NewStopRecording()); serr != nil {
		s.logger.Warn().Err(serr).Msg("stop_recording not delivered")
	}

	if encoded == "" {
		s.mu.Lock()
		s.setStateLocked(StateIdle)
		s.mu.Unlock()
		s.notify()
		return err
	}

	frame := protocol.NewAudioComplete(encoded, s.capture.MimeType())
	if serr := s.sender.Send(protocol.TypeAudioComplete, frame); serr != nil {
		s.surfaceError("segment not delivered: "+serr.Error(), "transport")
		s.mu.Lock()
		s.setStateLocked(StateIdle)
		s.mu.Unlock()
		s.notify()
		return serr
	}

	s.mu.Lock()
	s.setStateLocked(StateProcessing)
	s.armTranscriptTimerLocked()
	s.mu.Unlock()
	s.notify()
	s.logger.Info().Msg("segment sent for processing")
	return err
}

// SendChatMessage sends typed text. Blank input is ignored. Typing a
// message while recording abandons the voice segment.
func (s *Session) SendChatMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if s.capture.Recording() {
		s.silence.Disarm()
		s.mu.Lock()
		s.conversationActive = false
		s.mu.Unlock()
		if _, err := s.capture.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("capture stop before chat message")
		}
	}

	s.mu.Lock()
	open := s.connStatus == transport.StatusOpen
	s.mu.Unlock()
	if !open {
		s.surfaceError("not connected", "transport")
		return transport.ErrNotConnected
	}

	if err := s.sender.Send(protocol.TypeChatMessage, protocol.NewChatMessage(text)); err != nil {
		s.surfaceError("message not delivered: "+err.Error(), "transport")
		s.mu.Lock()
		s.setStateLocked(StateIdle)
		s.mu.Unlock()
		s.notify()
		return err
	}

	s.history.Append(NewMessage(RoleUser, text))
	s.mu.Lock()
	s.setStateLocked(StateProcessing)
	s.mu.Unlock()
	s.notify()
	return nil
}

// UpdateSettings forwards the opaque settings object to the backend.
func (s *Session) UpdateSettings(settings json.RawMessage) error {
	return s.sender.Send(protocol.TypeUpdateSettings, protocol.NewUpdateSettings(settings))
}

// HandleStatus reacts to transport status changes. Losing the socket
// mid-conversation halts capture and playback and resets to idle.
func (s *Session) HandleStatus(status transport.Status) {
	s.mu.Lock()
	prev := s.connStatus
	s.connStatus = status
	s.mu.Unlock()

	switch status {
	case transport.StatusOpen:
		s.logger.Info().Msg("session online")
	case transport.StatusClosed:
		if prev == transport.StatusOpen {
			s.handleConnectionLoss()
		}
	}
	s.notify()
}

func (s *Session) handleConnectionLoss() {
	s.silence.Disarm()
	if s.capture.Recording() {
		if _, err := s.capture.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("capture stop after disconnect")
		}
	}
	s.playback.Interrupt()

	s.mu.Lock()
	s.conversationActive = false
	s.cancelTranscriptTimerLocked()
	s.setStateLocked(StateIdle)
	s.mu.Unlock()
	s.logger.Warn().Msg("connection lost, session reset")
}

// playbackDrained runs when a completed reply finishes playing. With
// the loop active the microphone reopens; otherwise the session goes
// idle. Only a session still in speaking may act on it.
func (s *Session) playbackDrained() {
	s.mu.Lock()
	if s.state != StateSpeaking {
		s.mu.Unlock()
		return
	}
	resume := s.conversationActive && s.connStatus == transport.StatusOpen
	if !resume {
		s.setStateLocked(StateIdle)
		s.emotion = EmotionNeutral
	}
	s.mu.Unlock()

	if resume {
		if err := s.beginSegment(context.Background()); err != nil {
			s.logger.Warn().Err(err).Msg("hands-free resume failed")
		}
		return
	}
	s.notify()
}

// surfaceError records and logs a user-visible error.
func (s *Session) surfaceError(msg, component string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
	observability.RecordError("session_error", component)
	s.logger.Error().Str("component", component).Msg(msg)
	s.notify()
}

// armTranscriptTimerLocked starts the watchdog for the final
// transcript of the segment just sent.
func (s *Session) armTranscriptTimerLocked() {
	if s.cfg.TranscriptTimeout <= 0 {
		return
	}
	if s.transcriptTimer != nil {
		s.transcriptTimer.Stop()
	}
	s.transcriptTimer = time.AfterFunc(s.cfg.TranscriptTimeout, s.transcriptTimedOut)
}

func (s *Session) cancelTranscriptTimerLocked() {
	if s.transcriptTimer != nil {
		s.transcriptTimer.Stop()
		s.transcriptTimer = nil
	}
}

// transcriptTimedOut fires when no final transcript arrived in time.
func (s *Session) transcriptTimedOut() {
	s.mu.Lock()
	if s.state != StateProcessing {
		s.mu.Unlock()
		return
	}
	s.transcriptTimer = nil
	s.conversationActive = false
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	s.surfaceError("no transcript received, please try again", "session")
}

func (s *Session) setStateLocked(state AppState) {
	if s.state == state {
		return
	}
	s.logger.Debug().
		Str("from", string(s.state)).
		Str("to", string(state)).
		Msg("state change")
	s.state = state
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
