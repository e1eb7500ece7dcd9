package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType tags every frame on the wire. Frames are JSON objects;
// binary audio travels base64-encoded inside text frames.
type MessageType string

// Outbound frame types (client to backend).
const (
	TypeStartRecording MessageType = "start_recording"
	TypeStopRecording  MessageType = "stop_recording"
	TypeAudioComplete  MessageType = "audio_complete"
	TypeChatMessage    MessageType = "chat_message"
	TypeUpdateSettings MessageType = "update_settings"
)

// Inbound frame types (backend to client).
const (
	TypeSessionInit      MessageType = "session_init"
	TypeRecordingStarted MessageType = "recording_started"
	TypeRecordingStopped MessageType = "recording_stopped"
	TypeTranscript       MessageType = "transcript"
	TypeAIProcessing     MessageType = "ai_processing"
	TypeAIStreamChunk    MessageType = "ai_stream_chunk"
	TypeAIResponse       MessageType = "ai_response"
	TypeAudio            MessageType = "audio"
	TypeUserSpeaking     MessageType = "user_speaking"
	TypeError            MessageType = "error"
	TypeSTTError         MessageType = "stt_error"
)

// StartRecording asks the backend to open a new speech segment.
type StartRecording struct {
	Type MessageType `json:"type"`
}

// StopRecording tells the backend the current segment is being finalized.
type StopRecording struct {
	Type MessageType `json:"type"`
}

// AudioComplete carries one finished speech segment as a single framed unit.
type AudioComplete struct {
	Type     MessageType `json:"type"`
	Data     string      `json:"data"` // base64 encoded audio
	MimeType string      `json:"mimeType"`
}

// ChatMessage carries typed chat text that needs no transcription.
type ChatMessage struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

// UpdateSettings forwards the opaque settings object verbatim. The client
// does not interpret its fields.
type UpdateSettings struct {
	Type     MessageType     `json:"type"`
	Settings json.RawMessage `json:"settings"`
}

// SessionInit is the first frame after connect and carries the backend
// session identifier.
type SessionInit struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

// Transcript is a recognition result for the current segment. Interim
// results replace each other wholesale until IsFinal arrives.
type Transcript struct {
	Type    MessageType `json:"type"`
	Text    string      `json:"text"`
	IsFinal bool        `json:"isFinal"`
}

// AIProcessing flags whether the backend is working on a reply.
// IsProcessing defaults to true when omitted.
type AIProcessing struct {
	Type         MessageType `json:"type"`
	IsProcessing *bool       `json:"isProcessing,omitempty"`
}

// Processing returns the flag value, defaulting to true when absent.
func (m *AIProcessing) Processing() bool {
	if m.IsProcessing == nil {
		return true
	}
	return *m.IsProcessing
}

// AIStreamChunk carries the cumulative streamed reply text so far.
type AIStreamChunk struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

// AIResponse is the completed reply with its emotion tag.
type AIResponse struct {
	Type    MessageType `json:"type"`
	Text    string      `json:"text"`
	Emotion string      `json:"emotion"`
}

// Audio is one synthesized fragment of the in-flight reply.
type Audio struct {
	Type MessageType `json:"type"`
	Data string      `json:"data"` // base64 encoded audio
}

// UserSpeaking signals barge-in: the user started talking over playback.
type UserSpeaking struct {
	Type MessageType `json:"type"`
}

// ErrorFrame is a backend-reported failure ("error" or "stt_error").
type ErrorFrame struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// Envelope is a decoded frame header. The payload stays raw until the
// router dispatches on Type and decodes the concrete struct.
type Envelope struct {
	Type MessageType
	raw  json.RawMessage
}

// ParseEnvelope parses a raw frame far enough to read its type tag.
// Malformed JSON or a missing type is an error; callers log and drop.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("frame missing type tag")
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return &Envelope{Type: head.Type, raw: raw}, nil
}

// Decode unmarshals the full frame into the given typed struct.
func (e *Envelope) Decode(v interface{}) error {
	if err := json.Unmarshal(e.raw, v); err != nil {
		return fmt.Errorf("decode %s frame: %w", e.Type, err)
	}
	return nil
}

// NewStartRecording creates a start_recording frame.
func NewStartRecording() *StartRecording {
	return &StartRecording{Type: TypeStartRecording}
}

// NewStopRecording creates a stop_recording frame.
func NewStopRecording() *StopRecording {
	return &StopRecording{Type: TypeStopRecording}
}

// NewAudioComplete creates an audio_complete frame for one segment.
func NewAudioComplete(data, mimeType string) *AudioComplete {
	return &AudioComplete{Type: TypeAudioComplete, Data: data, MimeType: mimeType}
}

// NewChatMessage creates a chat_message frame.
func NewChatMessage(text string) *ChatMessage {
	return &ChatMessage{Type: TypeChatMessage, Text: text}
}

// NewUpdateSettings creates an update_settings frame from an opaque object.
func NewUpdateSettings(settings json.RawMessage) *UpdateSettings {
	return &UpdateSettings{Type: TypeUpdateSettings, Settings: settings}
}
