package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AppState is the conversation phase driving the client UI.
type AppState string

const (
	StateIdle       AppState = "idle"
	StateListening  AppState = "listening"
	StateProcessing AppState = "processing"
	StateSpeaking   AppState = "speaking"
)

// Emotion tags an AI reply for avatar display.
type Emotion string

const (
	EmotionNeutral   Emotion = "NEUTRAL"
	EmotionHappy     Emotion = "HAPPY"
	EmotionSad       Emotion = "SAD"
	EmotionThinking  Emotion = "THINKING"
	EmotionSurprised Emotion = "SURPRISED"
	EmotionAngry     Emotion = "ANGRY"
)

// ParseEmotion normalizes a backend emotion tag. Unknown or empty tags
// fall back to NEUTRAL so a bad tag never breaks display.
func ParseEmotion(s string) Emotion {
	switch Emotion(strings.ToUpper(strings.TrimSpace(s))) {
	case EmotionHappy:
		return EmotionHappy
	case EmotionSad:
		return EmotionSad
	case EmotionThinking:
		return EmotionThinking
	case EmotionSurprised:
		return EmotionSurprised
	case EmotionAngry:
		return EmotionAngry
	default:
		return EmotionNeutral
	}
}

// Role identifies the author of a history message.
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Message is one entry in the conversation history.
type Message struct {
	ID        string
	Role      Role
	Text      string
	Emotion   Emotion
	Audio     string // base64 encoded, delimiter-joined for AI replies
	Timestamp time.Time

	mu sync.Mutex
}

// NewMessage creates a history entry with a time-ordered unique ID.
func NewMessage(role Role, text string) *Message {
	now := time.Now()
	return &Message{
		ID:        fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.New().String()[:8]),
		Role:      role,
		Text:      text,
		Emotion:   EmotionNeutral,
		Timestamp: now,
	}
}

// AttachAudio sets the message audio once. Later calls are no-ops and
// return false, so a retained segment and a late backfill never clobber
// each other.
func (m *Message) AttachAudio(data string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data == "" || m.Audio != "" {
		return false
	}
	m.Audio = data
	return true
}

// HasAudio reports whether audio was attached.
func (m *Message) HasAudio() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Audio != ""
}

// History is the append-only conversation log.
type History struct {
	mu       sync.Mutex
	messages []*Message
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds a message to the end of the log.
func (h *History) Append(m *Message) {
	h.mu.Lock()
	h.messages = append(h.messages, m)
	h.mu.Unlock()
}

// Last returns the most recent message with the given role, or nil.
func (h *History) Last(role Role) *Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].Role == role {
			return h.messages[i]
		}
	}
	return nil
}

// Messages returns a snapshot of the log in order.
func (h *History) Messages() []*Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}
