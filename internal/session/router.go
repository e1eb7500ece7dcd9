package session

import (
	"github.com/voicechat/voice-client/internal/observability"
	"github.com/voicechat/voice-client/internal/protocol"
)

// HandleFrame dispatches one inbound frame on its type tag. Frames that
// fail to decode are logged and dropped; unknown types are logged.
func (s *Session) HandleFrame(env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeSessionInit:
		var msg protocol.SessionInit
		if !s.decode(env, &msg) {
			return
		}
		s.handleSessionInit(&msg)

	case protocol.TypeRecordingStarted:
		s.handleRecordingStarted()

	case protocol.TypeRecordingStopped:
		s.logger.Debug().Msg("backend acknowledged segment end")

	case protocol.TypeTranscript:
		var msg protocol.Transcript
		if !s.decode(env, &msg) {
			return
		}
		s.handleTranscript(&msg)

	case protocol.TypeAIProcessing:
		var msg protocol.AIProcessing
		if !s.decode(env, &msg) {
			return
		}
		s.handleAIProcessing(&msg)

	case protocol.TypeAIStreamChunk:
		var msg protocol.AIStreamChunk
		if !s.decode(env, &msg) {
			return
		}
		s.handleStreamChunk(&msg)

	case protocol.TypeAIResponse:
		var msg protocol.AIResponse
		if !s.decode(env, &msg) {
			return
		}
		s.handleAIResponse(&msg)

	case protocol.TypeAudio:
		var msg protocol.Audio
		if !s.decode(env, &msg) {
			return
		}
		s.playback.Enqueue(msg.Data)

	case protocol.TypeUserSpeaking:
		s.handleUserSpeaking()

	case protocol.TypeError, protocol.TypeSTTError:
		var msg protocol.ErrorFrame
		if !s.decode(env, &msg) {
			return
		}
		s.handleBackendError(env.Type, &msg)

	default:
		s.logger.Warn().Str("type", string(env.Type)).Msg("unknown frame type")
	}
}

func (s *Session) decode(env *protocol.Envelope, v interface{}) bool {
	if err := env.Decode(v); err != nil {
		s.logger.Warn().Err(err).Msg("dropping undecodable frame")
		observability.RecordDroppedFrame()
		return false
	}
	return true
}

func (s *Session) handleSessionInit(msg *protocol.SessionInit) {
	s.mu.Lock()
	s.sessionID = msg.SessionID
	s.mu.Unlock()
	s.logger.Info().Str("session_id", msg.SessionID).Msg("session initialized")
	s.notify()
}

// handleRecordingStarted confirms the backend opened the segment. A
// fresh segment starts with a clean transcript and retained buffer.
// The frame can arrive after a locally-initiated stop; with no
// recorder running it is stale and must not touch the state or the
// retained audio awaiting the final transcript.
func (s *Session) handleRecordingStarted() {
	if !s.capture.Recording() {
		s.logger.Debug().Msg("recording_started after segment ended, ignoring")
		return
	}
	s.capture.ClearRetained()
	s.mu.Lock()
	s.transcript = ""
	s.setStateLocked(StateListening)
	s.mu.Unlock()
	s.notify()
}

// handleTranscript shows interim results and finalizes the user turn on
// the final one. The retained capture audio attaches to the user
// message immediately.
func (s *Session) handleTranscript(msg *protocol.Transcript) {
	if !msg.IsFinal {
		s.mu.Lock()
		s.transcript = msg.Text
		s.mu.Unlock()
		s.notify()
		return
	}

	userMsg := NewMessage(RoleUser, msg.Text)
	if audio, ok := s.capture.RetainedAudio(); ok {
		userMsg.AttachAudio(audio)
		s.capture.ClearRetained()
	}
	s.history.Append(userMsg)

	s.mu.Lock()
	s.transcript = ""
	s.cancelTranscriptTimerLocked()
	s.setStateLocked(StateProcessing)
	s.mu.Unlock()
	s.notify()
	s.logger.Info().Str("text", msg.Text).Msg("final transcript")
}

// handleAIProcessing tracks the backend's reply-in-progress flag. Any
// ai_processing frame invalidates previously streamed text; only a
// true flag opens a new reply.
func (s *Session) handleAIProcessing(msg *protocol.AIProcessing) {
	processing := msg.Processing()

	s.mu.Lock()
	s.aiProcessing = processing
	s.streamText = ""
	if processing {
		s.cancelTranscriptTimerLocked()
		s.setStateLocked(StateProcessing)
	}
	s.mu.Unlock()

	if processing {
		s.playback.BeginReply()
	}
	s.notify()
}

// handleStreamChunk replaces the streaming text wholesale; the backend
// sends cumulative text, not deltas. Streamed text supersedes the
// processing flag.
func (s *Session) handleStreamChunk(msg *protocol.AIStreamChunk) {
	s.mu.Lock()
	s.streamText = msg.Text
	s.aiProcessing = false
	s.mu.Unlock()
	s.notify()
}

func (s *Session) handleAIResponse(msg *protocol.AIResponse) {
	aiMsg := NewMessage(RoleAI, msg.Text)
	aiMsg.Emotion = ParseEmotion(msg.Emotion)
	// Fragments received so far attach immediately; the post-drain
	// backfill is a no-op once audio is present.
	if joined := s.playback.Accumulated(); joined != "" {
		aiMsg.AttachAudio(joined)
	}
	s.history.Append(aiMsg)

	s.mu.Lock()
	s.streamText = ""
	s.aiProcessing = false
	s.emotion = aiMsg.Emotion
	s.setStateLocked(StateSpeaking)
	s.mu.Unlock()

	// Fragments may still be queued or in flight; the sequencer fires
	// the drained hook once the reply actually finishes.
	s.playback.MarkReplyComplete()
	s.notify()
	s.logger.Info().
		Str("emotion", string(aiMsg.Emotion)).
		Msg("reply complete")
}

// handleUserSpeaking is backend-detected barge-in: playback stops and
// the microphone keeps listening.
func (s *Session) handleUserSpeaking() {
	s.playback.Interrupt()
	s.mu.Lock()
	s.setStateLocked(StateListening)
	s.mu.Unlock()
	s.notify()
	s.logger.Info().Msg("barge-in, playback interrupted")
}

func (s *Session) handleBackendError(frameType protocol.MessageType, msg *protocol.ErrorFrame) {
	s.silence.Disarm()
	if s.capture.Recording() {
		if _, err := s.capture.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("capture stop after backend error")
		}
	}

	s.mu.Lock()
	s.cancelTranscriptTimerLocked()
	s.conversationActive = false
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	component := "backend"
	if frameType == protocol.TypeSTTError {
		component = "stt"
	}
	s.surfaceError(msg.Message, component)
}
