package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestCalculateRMS(t *testing.T) {
	samples := []int16{1000, -1000, 2000, -2000}
	got := CalculateRMS(samples)
	want := math.Sqrt((1000.0*1000 + 1000*1000 + 2000*2000 + 2000*2000) / 4)
	if math.Abs(got-want) > 0.01 {
		t.Errorf("CalculateRMS = %f, want %f", got, want)
	}
}

func TestCalculateRMSEmpty(t *testing.T) {
	if got := CalculateRMS(nil); got != 0 {
		t.Errorf("CalculateRMS(nil) = %f, want 0", got)
	}
}

func TestCalculateRMSSilence(t *testing.T) {
	samples := make([]int16, 160)
	if got := CalculateRMS(samples); got != 0 {
		t.Errorf("CalculateRMS(zeros) = %f, want 0", got)
	}
}

func TestSamplesFromPCM16(t *testing.T) {
	raw := make([]byte, 6)
	binary.LittleEndian.PutUint16(raw[0:], uint16(1234))
	binary.LittleEndian.PutUint16(raw[2:], uint16(0x8000)) // -32768
	binary.LittleEndian.PutUint16(raw[4:], uint16(0x7FFF)) // 32767

	samples := SamplesFromPCM16(raw)
	want := []int16{1234, -32768, 32767}
	if len(samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(samples), len(want))
	}
	for i, s := range samples {
		if s != want[i] {
			t.Errorf("sample %d = %d, want %d", i, s, want[i])
		}
	}
}

func TestSamplesFromPCM16OddLength(t *testing.T) {
	// A trailing odd byte cannot form a sample and is dropped.
	raw := []byte{0x10, 0x00, 0xFF}
	samples := SamplesFromPCM16(raw)
	if len(samples) != 1 || samples[0] != 16 {
		t.Errorf("got %v, want [16]", samples)
	}
}

func TestDetectSilence(t *testing.T) {
	tests := []struct {
		name      string
		samples   []int16
		threshold float64
		want      bool
	}{
		{"quiet below threshold", []int16{10, -10, 20, -20}, 500, true},
		{"loud above threshold", []int16{5000, -5000, 5000, -5000}, 500, false},
		{"exactly at threshold counts as silence", []int16{500, -500, 500, -500}, 500, true},
		{"empty window", nil, 500, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectSilence(tt.samples, tt.threshold); got != tt.want {
				t.Errorf("DetectSilence = %v, want %v", got, tt.want)
			}
		})
	}
}
