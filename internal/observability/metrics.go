package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_client_connection_state",
		Help: "Connection state (0=closed, 1=connecting, 2=open)",
	})

	reconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_reconnect_attempts_total",
		Help: "Total reconnect attempts scheduled after unexpected closes",
	})

	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_frames_total",
		Help: "Total protocol frames by direction and type",
	}, []string{"direction", "type"})

	droppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_dropped_frames_total",
		Help: "Malformed inbound frames logged and dropped",
	})

	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_audio_bytes_total",
		Help: "Audio bytes by direction (captured vs played)",
	}, []string{"direction"})

	captureSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_capture_segments_total",
		Help: "Completed capture segments sent to the backend",
	})

	silenceAutoStops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_silence_auto_stops_total",
		Help: "Segments ended by the silence detector",
	})

	playbackFragments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_playback_fragments_total",
		Help: "Inbound audio fragments by outcome (played, skipped)",
	}, []string{"outcome"})

	bargeIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_barge_ins_total",
		Help: "Playback interruptions triggered by user_speaking frames",
	})

	sessionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_errors_total",
		Help: "Session errors by type and component",
	}, []string{"type", "component"})
)

// RecordConnectionState updates the connection state gauge.
func RecordConnectionState(state int) {
	connectionState.Set(float64(state))
}

// RecordReconnectAttempt counts a scheduled reconnect.
func RecordReconnectAttempt() {
	reconnectAttempts.Inc()
}

// RecordFrame counts one protocol frame.
func RecordFrame(direction, frameType string) {
	framesTotal.WithLabelValues(direction, frameType).Inc()
}

// RecordDroppedFrame counts a malformed inbound frame.
func RecordDroppedFrame() {
	droppedFrames.Inc()
}

// RecordAudioBytes counts audio bytes moved through the client.
func RecordAudioBytes(direction string, n int64) {
	audioBytes.WithLabelValues(direction).Add(float64(n))
}

// RecordCaptureSegment counts one completed outbound segment.
func RecordCaptureSegment() {
	captureSegments.Inc()
}

// RecordSilenceAutoStop counts one silence-triggered segment end.
func RecordSilenceAutoStop() {
	silenceAutoStops.Inc()
}

// RecordPlaybackFragment counts one fragment outcome.
func RecordPlaybackFragment(outcome string) {
	playbackFragments.WithLabelValues(outcome).Inc()
}

// RecordBargeIn counts one playback interruption.
func RecordBargeIn() {
	bargeIns.Inc()
}

// RecordError counts a session error.
func RecordError(errorType, component string) {
	sessionErrors.WithLabelValues(errorType, component).Inc()
}
