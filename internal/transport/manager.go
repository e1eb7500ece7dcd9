package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/voicechat/voice-client/internal/observability"
	"github.com/voicechat/voice-client/internal/protocol"
	"github.com/voicechat/voice-client/internal/resilience"
)

// ErrNotConnected is returned by Send while the socket is down.
var ErrNotConnected = errors.New("transport: not connected")

// Status is the lifecycle state of the server connection.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
)

func gaugeValue(s Status) int {
	switch s {
	case StatusOpen:
		return 2
	case StatusConnecting:
		return 1
	default:
		return 0
	}
}

// Manager owns the WebSocket connection to the chat backend. It dials,
// reads frames, and schedules reconnects with linear backoff after
// unexpected closes. Frame and status callbacks run on the manager's
// goroutines.
type Manager struct {
	url     string
	backoff resilience.LinearBackoff
	dialer  *websocket.Dialer
	logger  zerolog.Logger

	onMessage func(*protocol.Envelope)
	onStatus  func(Status)

	mu         sync.Mutex
	conn       *websocket.Conn
	connecting bool
	closed     bool
	attempt    int
	timer      *time.Timer

	writeMu sync.Mutex
}

// NewManager creates a connection manager for the given WebSocket URL.
func NewManager(url string, backoff resilience.LinearBackoff) *Manager {
	return &Manager{
		url:     url,
		backoff: backoff,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		logger: observability.WithComponent("transport"),
	}
}

// OnMessage registers the inbound frame handler. Must be set before
// Connect.
func (m *Manager) OnMessage(fn func(*protocol.Envelope)) {
	m.onMessage = fn
}

// OnStatus registers the connection status handler. Must be set before
// Connect.
func (m *Manager) OnStatus(fn func(Status)) {
	m.onStatus = fn
}

// Connect dials the backend. On failure a reconnect is scheduled; the
// returned error describes the failed attempt.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("transport: manager closed")
	}
	if m.conn != nil || m.connecting {
		m.mu.Unlock()
		return nil
	}
	m.connecting = true
	m.mu.Unlock()

	m.setStatus(StatusConnecting)
	m.logger.Info().Str("url", m.url).Msg("dialing server")

	conn, _, err := m.dialer.DialContext(ctx, m.url, nil)

	m.mu.Lock()
	m.connecting = false
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn().Err(err).Msg("dial failed")
		observability.RecordError("dial_failed", "transport")
		m.setStatus(StatusClosed)
		m.scheduleReconnect(ctx)
		return err
	}
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return errors.New("transport: manager closed")
	}
	m.conn = conn
	m.attempt = 0
	m.mu.Unlock()

	m.setStatus(StatusOpen)
	m.logger.Info().Msg("connected")
	go m.readLoop(ctx, conn)
	return nil
}

// Send marshals the frame as JSON and writes it to the socket.
func (m *Manager) Send(frameType protocol.MessageType, frame interface{}) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	err := conn.WriteJSON(frame)
	m.writeMu.Unlock()
	if err != nil {
		observability.RecordError("write_failed", "transport")
		return err
	}
	observability.RecordFrame("outbound", string(frameType))
	return nil
}

// Connected reports whether the socket is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Close shuts the connection down intentionally. No reconnect is
// scheduled afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	var err error
	if conn != nil {
		m.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		err = conn.Close()
	}
	m.setStatus(StatusClosed)
	m.logger.Info().Msg("connection closed")
	return err
}

// readLoop parses inbound frames until the socket dies, then hands off
// to reconnect scheduling.
func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(ctx, conn, err)
			return
		}

		env, perr := protocol.ParseEnvelope(data)
		if perr != nil {
			// Malformed frames never tear the session down.
			m.logger.Warn().Err(perr).Msg("dropping malformed frame")
			observability.RecordDroppedFrame()
			continue
		}
		observability.RecordFrame("inbound", string(env.Type))
		if m.onMessage != nil {
			m.onMessage(env)
		}
	}
}

func (m *Manager) handleDisconnect(ctx context.Context, conn *websocket.Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		// Stale loop for a connection that was already replaced or
		// intentionally closed.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	closed := m.closed
	m.mu.Unlock()

	_ = conn.Close()
	if closed {
		return
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		m.logger.Info().Msg("server closed the connection")
	} else {
		m.logger.Warn().Err(err).Msg("connection lost")
	}
	m.setStatus(StatusClosed)
	m.scheduleReconnect(ctx)
}

// scheduleReconnect arms a one-shot timer for the next dial attempt.
// The delay grows linearly with consecutive failures.
func (m *Manager) scheduleReconnect(ctx context.Context) {
	m.mu.Lock()
	if m.closed || m.timer != nil {
		m.mu.Unlock()
		return
	}
	m.attempt++
	attempt := m.attempt
	delay := m.backoff.Delay(attempt)
	m.timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.timer = nil
		m.mu.Unlock()
		if err := m.Connect(ctx); err != nil {
			m.logger.Debug().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
		}
	})
	m.mu.Unlock()

	observability.RecordReconnectAttempt()
	m.logger.Info().
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("reconnect scheduled")
}

func (m *Manager) setStatus(s Status) {
	observability.RecordConnectionState(gaugeValue(s))
	if m.onStatus != nil {
		m.onStatus(s)
	}
}
