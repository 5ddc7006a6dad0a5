package testutil

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// MockPlayer simulates the media player's websocket endpoint. Tests push
// clock events through it and inspect the transport commands it received.
type MockPlayer struct {
	listener net.Listener
	server   *http.Server
	conn     *websocket.Conn
	mu       sync.Mutex

	commands  []map[string]interface{}
	connected bool
}

// NewMockPlayer creates a stopped mock player.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

// Start begins listening on a dynamic port.
func (m *MockPlayer) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	m.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleWebSocket)
	m.server = &http.Server{Handler: mux}

	go func() {
		_ = m.server.Serve(m.listener)
	}()

	// Give server time to start
	time.Sleep(50 * time.Millisecond)
	return nil
}

// Stop shuts the server down.
func (m *MockPlayer) Stop() error {
	m.mu.Lock()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.connected = false
	m.mu.Unlock()

	if m.server != nil {
		return m.server.Close()
	}
	return nil
}

// URL returns the websocket URL clients should dial.
func (m *MockPlayer) URL() string {
	return fmt.Sprintf("ws://%s/", m.listener.Addr().String())
}

func (m *MockPlayer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.conn = conn
	m.connected = true
	m.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			m.connected = false
			m.mu.Unlock()
			return
		}
		var cmd map[string]interface{}
		if err := json.Unmarshal(data, &cmd); err == nil {
			m.mu.Lock()
			m.commands = append(m.commands, cmd)
			m.mu.Unlock()
		}
	}
}

// WaitForClient blocks until a client connects or the timeout expires.
func (m *MockPlayer) WaitForClient(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		ok := m.connected
		m.mu.Unlock()
		if ok {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("no client connected within %v", timeout)
}

// SendTimeUpdate pushes a clock tick to the connected client.
func (m *MockPlayer) SendTimeUpdate(t float64) error {
	return m.sendEvent(map[string]interface{}{"type": "time_update", "current_time": t})
}

// SendDuration pushes a duration report to the connected client.
func (m *MockPlayer) SendDuration(d float64) error {
	return m.sendEvent(map[string]interface{}{"type": "duration", "duration": d})
}

// SendState pushes a play/pause transition to the connected client.
func (m *MockPlayer) SendState(playing bool) error {
	return m.sendEvent(map[string]interface{}{"type": "state", "playing": playing})
}

func (m *MockPlayer) sendEvent(ev map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return fmt.Errorf("no client connected")
	}
	return m.conn.WriteJSON(ev)
}

// DropConnection closes the client connection without stopping the server,
// simulating a player crash.
func (m *MockPlayer) DropConnection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.connected = false
}

// Commands returns a copy of the transport commands received so far.
func (m *MockPlayer) Commands() []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]interface{}, len(m.commands))
	copy(out, m.commands)
	return out
}
