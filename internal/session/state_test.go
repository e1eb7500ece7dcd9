package session

import (
	"testing"
)

func TestParseEmotion(t *testing.T) {
	tests := []struct {
		in   string
		want Emotion
	}{
		{"HAPPY", EmotionHappy},
		{"happy", EmotionHappy},
		{" Sad ", EmotionSad},
		{"THINKING", EmotionThinking},
		{"SURPRISED", EmotionSurprised},
		{"ANGRY", EmotionAngry},
		{"NEUTRAL", EmotionNeutral},
		{"", EmotionNeutral},
		{"confused", EmotionNeutral},
	}
	for _, tt := range tests {
		if got := ParseEmotion(tt.in); got != tt.want {
			t.Errorf("ParseEmotion(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNewMessageIDs(t *testing.T) {
	a := NewMessage(RoleUser, "one")
	b := NewMessage(RoleUser, "two")
	if a.ID == "" || b.ID == "" {
		t.Fatal("empty message ID")
	}
	if a.ID == b.ID {
		t.Errorf("duplicate message IDs: %s", a.ID)
	}
	if a.Emotion != EmotionNeutral {
		t.Errorf("new message emotion = %s, want NEUTRAL", a.Emotion)
	}
}

func TestAttachAudioOnce(t *testing.T) {
	m := NewMessage(RoleAI, "hello")
	if m.HasAudio() {
		t.Fatal("fresh message reports audio")
	}
	if !m.AttachAudio("first") {
		t.Fatal("first attach rejected")
	}
	if m.AttachAudio("second") {
		t.Fatal("second attach accepted")
	}
	if m.Audio != "first" {
		t.Errorf("audio = %q, want %q", m.Audio, "first")
	}
}

func TestAttachAudioIgnoresEmpty(t *testing.T) {
	m := NewMessage(RoleAI, "hello")
	if m.AttachAudio("") {
		t.Fatal("empty attach accepted")
	}
	if m.HasAudio() {
		t.Fatal("message reports audio after empty attach")
	}
}

func TestHistoryLast(t *testing.T) {
	h := NewHistory()
	if h.Last(RoleUser) != nil {
		t.Fatal("Last on empty history")
	}

	first := NewMessage(RoleUser, "question")
	reply := NewMessage(RoleAI, "answer")
	second := NewMessage(RoleUser, "followup")
	h.Append(first)
	h.Append(reply)
	h.Append(second)

	if got := h.Last(RoleUser); got != second {
		t.Errorf("Last(user) = %v", got)
	}
	if got := h.Last(RoleAI); got != reply {
		t.Errorf("Last(ai) = %v", got)
	}
	if h.Len() != 3 {
		t.Errorf("Len = %d, want 3", h.Len())
	}

	msgs := h.Messages()
	if len(msgs) != 3 || msgs[0] != first || msgs[2] != second {
		t.Errorf("Messages out of order")
	}
}
