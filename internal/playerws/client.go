// Package playerws is the websocket bridge to the media player. The
// player pushes clock events (time, duration, play state) and accepts
// transport commands back.
package playerws

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/meetscribe/meetscribe/internal/diaglog"
)

// Event types pushed by the player.
const (
	eventTimeUpdate = "time_update"
	eventDuration   = "duration"
	eventState      = "state"
)

// playerEvent is the inbound wire shape. Fields are populated per Type.
type playerEvent struct {
	Type        string  `json:"type"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
	Playing     bool    `json:"playing"`
}

// command is the outbound wire shape for transport control.
type command struct {
	Type     string  `json:"type"`
	Position float64 `json:"position,omitempty"`
	Path     string  `json:"path,omitempty"`
}

// Client maintains a websocket connection to the player and dispatches
// its clock events to registered handlers. Lost connections are retried
// with capped exponential backoff until Close.
type Client struct {
	url  string
	conn *websocket.Conn
	mu   sync.RWMutex

	connected        bool
	reconnectEnabled bool
	reconnectDelay   time.Duration
	stopChan         chan struct{}
	stopOnce         sync.Once

	handlerMu      sync.RWMutex
	onTimeUpdate   func(t float64)
	onDuration     func(d float64)
	onStateChange  func(playing bool)
	onDisconnected func()

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewClient creates a client for the given websocket URL.
func NewClient(url string) *Client {
	return &Client{
		url:              url,
		reconnectEnabled: true,
		reconnectDelay:   5 * time.Second,
		stopChan:         make(chan struct{}),
	}
}

// SetLogger injects a diaglog.Logger. Safe to call any time before or
// after Connect.
func (c *Client) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Client) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentPlayerWS
	}
	l.Log(entry)
}

// OnTimeUpdate registers the handler for player clock ticks (seconds).
func (c *Client) OnTimeUpdate(fn func(t float64)) {
	c.handlerMu.Lock()
	c.onTimeUpdate = fn
	c.handlerMu.Unlock()
}

// OnDuration registers the handler for media duration reports (seconds).
func (c *Client) OnDuration(fn func(d float64)) {
	c.handlerMu.Lock()
	c.onDuration = fn
	c.handlerMu.Unlock()
}

// OnStateChange registers the handler for play/pause transitions.
func (c *Client) OnStateChange(fn func(playing bool)) {
	c.handlerMu.Lock()
	c.onStateChange = fn
	c.handlerMu.Unlock()
}

// OnDisconnected registers a callback fired when the connection drops.
func (c *Client) OnDisconnected(fn func()) {
	c.handlerMu.Lock()
	c.onDisconnected = fn
	c.handlerMu.Unlock()
}

// SetReconnectEnabled enables or disables automatic reconnection.
func (c *Client) SetReconnectEnabled(enabled bool) {
	c.mu.Lock()
	c.reconnectEnabled = enabled
	c.mu.Unlock()
}

// Connect dials the player and starts the event reader.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to player: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.log(diaglog.LogEntry{
		Event:   diaglog.EventWSConnect,
		Payload: map[string]interface{}{"url": c.url},
	})

	go c.readEvents()
	return nil
}

// IsConnected reports whether the player connection is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readEvents reads player events until the connection drops, then hands
// off to the reconnect loop.
func (c *Client) readEvents() {
	defer func() {
		c.disconnect()
		c.mu.RLock()
		retry := c.reconnectEnabled
		c.mu.RUnlock()
		if retry {
			c.reconnect()
		}
	}()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		var ev playerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			c.handlerMu.RLock()
			fn := c.onDisconnected
			c.handlerMu.RUnlock()
			if fn != nil {
				fn()
			}
			return
		}
		c.handleEvent(ev)
	}
}

func (c *Client) handleEvent(ev playerEvent) {
	c.handlerMu.RLock()
	onTime, onDur, onState := c.onTimeUpdate, c.onDuration, c.onStateChange
	c.handlerMu.RUnlock()

	switch ev.Type {
	case eventTimeUpdate:
		if onTime != nil {
			onTime(ev.CurrentTime)
		}
	case eventDuration:
		if onDur != nil {
			onDur(ev.Duration)
		}
	case eventState:
		if onState != nil {
			onState(ev.Playing)
		}
	}
}

// Play asks the player to start playback.
func (c *Client) Play() error {
	return c.send(command{Type: "play"})
}

// Pause asks the player to pause playback.
func (c *Client) Pause() error {
	return c.send(command{Type: "pause"})
}

// Seek asks the player to move to position (seconds).
func (c *Client) Seek(position float64) error {
	return c.send(command{Type: "seek", Position: position})
}

// LoadFile asks the player to open a media file.
func (c *Client) LoadFile(path string) error {
	return c.send(command{Type: "load", Path: path})
}

func (c *Client) send(cmd command) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected || c.conn == nil {
		return fmt.Errorf("player not connected")
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// disconnect closes the connection without stopping the reconnect loop.
func (c *Client) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.log(diaglog.LogEntry{
			Event:   diaglog.EventWSDisconnect,
			Payload: map[string]interface{}{"url": c.url},
		})
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// reconnect retries the connection with capped exponential backoff and
// jitter until it succeeds or the client is closed.
func (c *Client) reconnect() {
	c.mu.RLock()
	delay := c.reconnectDelay
	c.mu.RUnlock()
	attempt := 0
	for {
		select {
		case <-c.stopChan:
			return
		case <-time.After(delay):
			attempt++
			c.log(diaglog.LogEntry{
				Event:   diaglog.EventWSReconnectAttempt,
				Payload: map[string]interface{}{"attempt": attempt, "delay_ms": delay.Milliseconds()},
			})
			if err := c.Connect(); err == nil {
				return
			}

			delay *= 2
			if delay > 60*time.Second {
				delay = 60 * time.Second
			}
			jitter := time.Duration((delay.Seconds() * 0.2) * (rand.Float64() - 0.5) * float64(time.Second))
			delay += jitter
			if delay < time.Second {
				delay = time.Second
			}
		}
	}
}

// Close shuts the connection down and stops reconnection.
func (c *Client) Close() {
	c.mu.Lock()
	c.reconnectEnabled = false
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.disconnect()
}
