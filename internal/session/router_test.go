package session

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/voicechat/voice-client/internal/protocol"
)

func TestSessionInitFrame(t *testing.T) {
	h := newHarness(Config{})
	h.deliver(t, `{"type":"session_init","session_id":"sess-42"}`)

	if got := h.session.SessionID(); got != "sess-42" {
		t.Errorf("SessionID = %q, want sess-42", got)
	}
}

func TestRecordingStartedClearsStaleState(t *testing.T) {
	h := newHarness(Config{})
	if err := h.session.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	h.capture.retained = "stale-audio"
	h.deliver(t, `{"type":"transcript","text":"stale interim","isFinal":false}`)

	h.deliver(t, `{"type":"recording_started"}`)

	if got := h.session.State(); got != StateListening {
		t.Errorf("state = %s, want listening", got)
	}
	if got := h.session.Transcript(); got != "" {
		t.Errorf("interim transcript = %q, want cleared", got)
	}
	if _, ok := h.capture.RetainedAudio(); ok {
		t.Error("retained buffer not cleared for the new segment")
	}
}

// A recording_started frame can cross a locally-initiated stop on the
// wire. With the recorder already released it is stale.
func TestLateRecordingStartedIsIgnored(t *testing.T) {
	h := newHarness(Config{})
	h.capture.segment = base64.StdEncoding.EncodeToString([]byte("speech"))

	if err := h.session.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := h.session.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	h.capture.retained = "segment-audio"

	h.deliver(t, `{"type":"recording_started"}`)

	if got := h.session.State(); got != StateProcessing {
		t.Errorf("state = %s, want processing after late frame", got)
	}
	if _, ok := h.capture.RetainedAudio(); !ok {
		t.Error("retained audio discarded by a stale recording_started")
	}

	// The final transcript still gets the segment audio.
	h.deliver(t, `{"type":"transcript","text":"hello","isFinal":true}`)
	msg := h.session.History().Last(RoleUser)
	if msg == nil || msg.Audio != "segment-audio" {
		t.Errorf("user message audio = %+v", msg)
	}
}

func TestInterimTranscriptReplacesWholesale(t *testing.T) {
	h := newHarness(Config{})
	h.deliver(t, `{"type":"transcript","text":"xin","isFinal":false}`)
	h.deliver(t, `{"type":"transcript","text":"xin chào","isFinal":false}`)

	if got := h.session.Transcript(); got != "xin chào" {
		t.Errorf("Transcript = %q, want latest interim", got)
	}
	if h.session.History().Len() != 0 {
		t.Error("interim transcript appended to history")
	}
}

func TestFinalTranscriptAttachesRetainedAudio(t *testing.T) {
	h := newHarness(Config{})
	retained := base64.StdEncoding.EncodeToString([]byte("segment"))
	h.capture.retained = retained

	h.deliver(t, `{"type":"transcript","text":"xin chào","isFinal":true}`)

	msg := h.session.History().Last(RoleUser)
	if msg == nil {
		t.Fatal("no user message appended")
	}
	if msg.Text != "xin chào" {
		t.Errorf("text = %q", msg.Text)
	}
	if msg.Audio != retained {
		t.Error("retained audio not attached to the user message")
	}
	if got := h.session.State(); got != StateProcessing {
		t.Errorf("state = %s, want processing", got)
	}
	if got := h.session.Transcript(); got != "" {
		t.Errorf("interim transcript = %q after final", got)
	}
}

func TestAIProcessingStartsReply(t *testing.T) {
	h := newHarness(Config{})
	h.deliver(t, `{"type":"ai_processing"}`)

	if h.playback.begins != 1 {
		t.Errorf("BeginReply called %d times, want 1", h.playback.begins)
	}
	if got := h.session.State(); got != StateProcessing {
		t.Errorf("state = %s, want processing", got)
	}
	if !h.session.AIProcessing() {
		t.Error("AIProcessing = false after ai_processing frame")
	}
}

func TestAIProcessingFalseIsIgnored(t *testing.T) {
	h := newHarness(Config{})
	h.deliver(t, `{"type":"ai_processing"}`)
	h.deliver(t, `{"type":"ai_processing","isProcessing":false}`)

	if h.playback.begins != 1 {
		t.Errorf("BeginReply called %d times, want 1", h.playback.begins)
	}
	if h.session.AIProcessing() {
		t.Error("AIProcessing = true after isProcessing=false")
	}
}

func TestStreamChunkClearsAIProcessing(t *testing.T) {
	h := newHarness(Config{})
	h.deliver(t, `{"type":"ai_processing"}`)
	h.deliver(t, `{"type":"ai_stream_chunk","text":"Chào"}`)

	if h.session.AIProcessing() {
		t.Error("AIProcessing = true once text is streaming")
	}
}

func TestAIResponseClearsAIProcessing(t *testing.T) {
	h := newHarness(Config{})
	h.deliver(t, `{"type":"ai_processing"}`)
	h.deliver(t, `{"type":"ai_response","text":"xin chào","emotion":"NEUTRAL"}`)

	if h.session.AIProcessing() {
		t.Error("AIProcessing = true after the full reply")
	}
}

func TestStreamChunksAreCumulative(t *testing.T) {
	h := newHarness(Config{})
	h.deliver(t, `{"type":"ai_stream_chunk","text":"Chào"}`)
	h.deliver(t, `{"type":"ai_stream_chunk","text":"Chào bạn!"}`)

	if got := h.session.StreamingText(); got != "Chào bạn!" {
		t.Errorf("StreamingText = %q", got)
	}
}

func TestAIResponseCompletesReply(t *testing.T) {
	h := newHarness(Config{})
	h.deliver(t, `{"type":"ai_response","text":"Chào bạn!","emotion":"HAPPY"}`)

	msg := h.session.History().Last(RoleAI)
	if msg == nil {
		t.Fatal("no AI message appended")
	}
	if msg.Text != "Chào bạn!" || msg.Emotion != EmotionHappy {
		t.Errorf("message = %q emotion %s", msg.Text, msg.Emotion)
	}
	if got := h.session.State(); got != StateSpeaking {
		t.Errorf("state = %s, want speaking", got)
	}
	if got := h.session.CurrentEmotion(); got != EmotionHappy {
		t.Errorf("emotion = %s, want HAPPY", got)
	}
	if h.playback.completes != 1 {
		t.Errorf("MarkReplyComplete called %d times, want 1", h.playback.completes)
	}
}

func TestAIResponseAttachesAccumulatedAudio(t *testing.T) {
	h := newHarness(Config{})
	h.playback.accumulated = "ZnJhZzE=,ZnJhZzI="

	h.deliver(t, `{"type":"ai_response","text":"reply","emotion":"NEUTRAL"}`)

	msg := h.session.History().Last(RoleAI)
	if msg == nil {
		t.Fatal("no AI message appended")
	}
	if msg.Audio != "ZnJhZzE=,ZnJhZzI=" {
		t.Errorf("audio = %q", msg.Audio)
	}
	// The post-drain backfill never overwrites it.
	h.session.AttachReplyAudio("ZnJhZzE=,ZnJhZzI=,ZnJhZzM=")
	if msg.Audio != "ZnJhZzE=,ZnJhZzI=" {
		t.Errorf("backfill overwrote attached audio: %q", msg.Audio)
	}
}

func TestBackendErrorReleasesMicrophone(t *testing.T) {
	h := newHarness(Config{})
	if err := h.session.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	h.deliver(t, `{"type":"stt_error","message":"recognizer crashed"}`)

	if h.capture.Recording() {
		t.Error("capture still holds the device after backend error")
	}
	if h.silence.armed {
		t.Error("silence detector still armed after backend error")
	}
	if got := h.session.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestAIResponseUnknownEmotionFallsBack(t *testing.T) {
	h := newHarness(Config{})
	h.deliver(t, `{"type":"ai_response","text":"ok","emotion":"EXUBERANT"}`)

	if got := h.session.CurrentEmotion(); got != EmotionNeutral {
		t.Errorf("emotion = %s, want NEUTRAL fallback", got)
	}
}

func TestAudioFramesReachSequencerInOrder(t *testing.T) {
	h := newHarness(Config{})
	h.deliver(t, `{"type":"audio","data":"AAAA"}`)
	h.deliver(t, `{"type":"audio","data":"BBBB"}`)

	if len(h.playback.enqueued) != 2 {
		t.Fatalf("enqueued %d fragments, want 2", len(h.playback.enqueued))
	}
	if h.playback.enqueued[0] != "AAAA" || h.playback.enqueued[1] != "BBBB" {
		t.Errorf("fragments out of order: %v", h.playback.enqueued)
	}
}

func TestUserSpeakingInterruptsPlayback(t *testing.T) {
	h := newHarness(Config{})
	h.deliver(t, `{"type":"ai_response","text":"long reply","emotion":"NEUTRAL"}`)
	h.deliver(t, `{"type":"user_speaking"}`)

	if h.playback.interrupts != 1 {
		t.Errorf("Interrupt called %d times, want 1", h.playback.interrupts)
	}
	if got := h.session.State(); got != StateListening {
		t.Errorf("state = %s, want listening", got)
	}
}

func TestBackendErrorSurfacesAndResets(t *testing.T) {
	h := newHarness(Config{})
	h.deliver(t, `{"type":"error","message":"backend exploded"}`)

	if got := h.session.LastError(); got != "backend exploded" {
		t.Errorf("LastError = %q", got)
	}
	if got := h.session.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestSTTErrorSurfaces(t *testing.T) {
	h := newHarness(Config{})
	h.deliver(t, `{"type":"stt_error","message":"recognition failed"}`)

	if got := h.session.LastError(); got != "recognition failed" {
		t.Errorf("LastError = %q", got)
	}
	if got := h.session.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestUnknownFrameTypeIsIgnored(t *testing.T) {
	h := newHarness(Config{})
	h.deliver(t, `{"type":"totally_new_thing","payload":1}`)

	if got := h.session.State(); got != StateIdle {
		t.Errorf("state = %s after unknown frame, want idle", got)
	}
}

func TestUpdateSettingsPassthrough(t *testing.T) {
	h := newHarness(Config{})
	raw := []byte(`{"voice":"vi-female","speed":1.25}`)
	if err := h.session.UpdateSettings(raw); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	last, ok := h.sender.last()
	if !ok || last.frameType != protocol.TypeUpdateSettings {
		t.Fatal("update_settings not sent")
	}
	msg := last.frame.(*protocol.UpdateSettings)
	if string(msg.Settings) != string(raw) {
		t.Errorf("settings = %s, want verbatim passthrough", msg.Settings)
	}
}

// Full voice round trip: speak, transcribe, reply with audio, finish.
func TestConversationRoundTrip(t *testing.T) {
	h := newHarness(Config{})
	h.capture.segment = base64.StdEncoding.EncodeToString([]byte("xin chao pcm"))

	h.deliver(t, `{"type":"session_init","session_id":"sess-1"}`)
	if err := h.session.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	h.deliver(t, `{"type":"recording_started"}`)
	h.capture.retained = h.capture.segment

	if err := h.session.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	h.deliver(t, `{"type":"recording_stopped"}`)
	h.deliver(t, `{"type":"transcript","text":"xin","isFinal":false}`)
	h.deliver(t, `{"type":"transcript","text":"xin chào","isFinal":true}`)
	h.deliver(t, `{"type":"ai_processing"}`)
	h.deliver(t, `{"type":"ai_stream_chunk","text":"Chào"}`)
	h.deliver(t, `{"type":"audio","data":"ZnJhZzE="}`)
	h.deliver(t, `{"type":"ai_stream_chunk","text":"Chào bạn!"}`)
	h.deliver(t, `{"type":"audio","data":"ZnJhZzI="}`)
	h.deliver(t, `{"type":"ai_response","text":"Chào bạn!","emotion":"HAPPY"}`)

	user := h.session.History().Last(RoleUser)
	ai := h.session.History().Last(RoleAI)
	if user == nil || user.Text != "xin chào" || !user.HasAudio() {
		t.Errorf("user turn = %+v", user)
	}
	if ai == nil || ai.Text != "Chào bạn!" || ai.Emotion != EmotionHappy {
		t.Errorf("ai turn = %+v", ai)
	}
	if got := h.session.State(); got != StateSpeaking {
		t.Errorf("state = %s, want speaking", got)
	}
	if len(h.playback.enqueued) != 2 {
		t.Errorf("enqueued %d fragments, want 2", len(h.playback.enqueued))
	}

	// Playback finishes; backfill attaches and the loop ends.
	h.session.AttachReplyAudio("ZnJhZzE=,ZnJhZzI=")
	h.session.PlaybackDrained()
	if got := h.session.State(); got != StateIdle {
		t.Errorf("state = %s, want idle after drain", got)
	}
	if ai.Audio != "ZnJhZzE=,ZnJhZzI=" {
		t.Errorf("reply audio = %q", ai.Audio)
	}
}
