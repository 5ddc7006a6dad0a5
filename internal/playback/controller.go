// Package playback tracks player position against a loaded transcript and
// decides which segment is active so the UI can highlight and scroll it.
package playback

import (
	"fmt"
	"math"
	"sync"

	"github.com/meetscribe/meetscribe/internal/diaglog"
	"github.com/meetscribe/meetscribe/internal/transcript"
)

// DefaultTolerance widens segment boundaries during resolution so clock
// jitter near a boundary does not leave the highlight empty.
const DefaultTolerance = 0.5

// State is the playback lifecycle state.
type State string

const (
	StateIdle    State = "idle"    // no media loaded
	StateReady   State = "ready"   // media loaded, stopped at a position
	StatePlaying State = "playing" // clock advancing
	StatePaused  State = "paused"  // clock frozen mid-playback
)

// Config tunes the controller.
type Config struct {
	ToleranceSeconds float64 // 0 = DefaultTolerance
}

// Snapshot is a point-in-time view of the controller for status reporting.
type Snapshot struct {
	State           State   `json:"state"`
	CurrentTime     float64 `json:"current_time"`
	Duration        float64 `json:"duration"`
	ActiveSegmentID string  `json:"active_segment_id,omitempty"`
	SyncEnabled     bool    `json:"sync_enabled"`
	SegmentCount    int     `json:"segment_count"`
}

// Controller owns the playback position and the active-segment resolution.
// Resolution is total: whenever segments are loaded, some segment is
// active. Scroll callbacks fire at most once per distinct segment; the
// guard resets on load, unload, and when sync is re-enabled.
type Controller struct {
	mu sync.Mutex

	state       State
	currentTime float64
	duration    float64
	tolerance   float64

	segments        []transcript.Segment
	activeSegmentID string
	lastScrolledID  string
	syncEnabled     bool

	scrollFn func(segmentID string)

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewController creates an idle controller with sync enabled.
func NewController(cfg Config) *Controller {
	tol := cfg.ToleranceSeconds
	if tol <= 0 {
		tol = DefaultTolerance
	}
	return &Controller{
		state:       StateIdle,
		tolerance:   tol,
		syncEnabled: true,
	}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (c *Controller) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Controller) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentPlayback
	}
	l.Log(entry)
}

// OnScroll registers the callback fired when the active segment changes
// and sync is enabled. Called without the controller lock held.
func (c *Controller) OnScroll(fn func(segmentID string)) {
	c.mu.Lock()
	c.scrollFn = fn
	c.mu.Unlock()
}

// Load attaches a transcript and media duration, entering Ready. The
// segment slice is copied and sorted; the caller's slice is untouched.
func (c *Controller) Load(segments []transcript.Segment, duration float64) {
	sorted := make([]transcript.Segment, len(segments))
	copy(sorted, segments)
	transcript.SortSegments(sorted)

	c.mu.Lock()
	c.segments = sorted
	c.duration = duration
	c.currentTime = 0
	c.state = StateReady
	c.activeSegmentID = ""
	c.lastScrolledID = ""
	c.mu.Unlock()

	c.log(diaglog.LogEntry{
		Event:   diaglog.EventPlaybackLoad,
		Payload: map[string]interface{}{"segments": len(sorted), "duration": duration},
	})
}

// Unload drops the transcript and returns to Idle.
func (c *Controller) Unload() {
	c.mu.Lock()
	c.segments = nil
	c.duration = 0
	c.currentTime = 0
	c.state = StateIdle
	c.activeSegmentID = ""
	c.lastScrolledID = ""
	c.mu.Unlock()

	c.log(diaglog.LogEntry{Event: diaglog.EventPlaybackUnload})
}

// Play transitions Ready or Paused into Playing.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateReady, StatePaused:
		c.state = StatePlaying
		return nil
	case StatePlaying:
		return nil
	default:
		return fmt.Errorf("cannot play: no media loaded")
	}
}

// Pause freezes a playing clock.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StatePlaying:
		c.state = StatePaused
		return nil
	case StatePaused:
		return nil
	default:
		return fmt.Errorf("cannot pause in state %q", c.state)
	}
}

// Stop rewinds to zero and returns to Ready.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		return fmt.Errorf("cannot stop: no media loaded")
	}
	c.state = StateReady
	c.currentTime = 0
	c.activeSegmentID = ""
	return nil
}

// Seek moves the clock to t, clamped to the media bounds, and re-resolves
// the active segment. Valid in any loaded state.
func (c *Controller) Seek(t float64) error {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("cannot seek: no media loaded")
	}
	if t < 0 {
		t = 0
	}
	if c.duration > 0 && t > c.duration {
		t = c.duration
	}
	c.currentTime = t
	fire, id := c.resolveLocked()
	c.mu.Unlock()

	if fire {
		c.fireScroll(id)
	}
	return nil
}

// JumpToSegment seeks to the start of the named segment and starts
// playback if the clock is not already running. The jump marks the
// segment as already scrolled so the next tick does not echo a scroll
// back at the view that initiated it.
func (c *Controller) JumpToSegment(segmentID string) error {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("cannot jump: no media loaded")
	}
	var target *transcript.Segment
	for i := range c.segments {
		if c.segments[i].ID == segmentID {
			target = &c.segments[i]
			break
		}
	}
	if target == nil {
		c.mu.Unlock()
		return fmt.Errorf("unknown segment %q", segmentID)
	}
	c.currentTime = target.Start
	c.activeSegmentID = target.ID
	c.lastScrolledID = target.ID
	c.state = StatePlaying
	c.mu.Unlock()
	return nil
}

// OnTick advances the clock from a player time event and re-resolves the
// active segment, firing the scroll callback when it changed.
func (c *Controller) OnTick(t float64) {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.currentTime = t
	fire, id := c.resolveLocked()
	c.mu.Unlock()

	if fire {
		c.fireScroll(id)
	}
}

// SetDuration records the media duration reported by the player.
func (c *Controller) SetDuration(d float64) {
	c.mu.Lock()
	c.duration = d
	c.mu.Unlock()
}

// SetPlaying mirrors the player's play/pause state into the controller.
func (c *Controller) SetPlaying(playing bool) {
	c.mu.Lock()
	if c.state != StateIdle {
		if playing {
			c.state = StatePlaying
		} else if c.state == StatePlaying {
			c.state = StatePaused
		}
	}
	c.mu.Unlock()
}

// SetSync toggles follow-along scrolling. Re-enabling resets the scroll
// guard so the current segment scrolls into view immediately.
func (c *Controller) SetSync(enabled bool) {
	c.mu.Lock()
	c.syncEnabled = enabled
	c.lastScrolledID = ""
	var fire bool
	var id string
	if enabled {
		fire, id = c.resolveLocked()
	}
	c.mu.Unlock()

	if fire {
		c.fireScroll(id)
	}
}

// SyncEnabled reports whether follow-along scrolling is on.
func (c *Controller) SyncEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncEnabled
}

// ActiveSegmentID returns the id of the currently active segment, or ""
// when nothing is loaded.
func (c *Controller) ActiveSegmentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeSegmentID
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a consistent view for status reporting.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:           c.state,
		CurrentTime:     c.currentTime,
		Duration:        c.duration,
		ActiveSegmentID: c.activeSegmentID,
		SyncEnabled:     c.syncEnabled,
		SegmentCount:    len(c.segments),
	}
}

// resolveLocked recomputes the active segment for the current time and
// reports whether a scroll should fire. Caller holds c.mu.
func (c *Controller) resolveLocked() (fire bool, id string) {
	if len(c.segments) == 0 {
		c.activeSegmentID = ""
		return false, ""
	}

	seg := resolveSegment(c.segments, c.currentTime, c.tolerance)
	c.activeSegmentID = seg.ID

	if !c.syncEnabled || c.scrollFn == nil {
		return false, ""
	}
	if seg.ID == c.lastScrolledID {
		return false, ""
	}
	c.lastScrolledID = seg.ID
	return true, seg.ID
}

func (c *Controller) fireScroll(segmentID string) {
	c.mu.Lock()
	fn := c.scrollFn
	c.mu.Unlock()
	if fn == nil {
		return
	}
	c.log(diaglog.LogEntry{
		Event:   diaglog.EventScrollTrigger,
		Payload: map[string]interface{}{"segment_id": segmentID},
	})
	fn(segmentID)
}

// resolveSegment picks the active segment for time t. Exact containment
// wins; otherwise a boundary within tolerance; otherwise the segment whose
// start is nearest. segments must be non-empty and sorted by start.
func resolveSegment(segments []transcript.Segment, t, tolerance float64) transcript.Segment {
	for _, s := range segments {
		if t >= s.Start && t < s.End {
			return s
		}
	}
	for _, s := range segments {
		if t >= s.Start-tolerance && t <= s.End+tolerance {
			return s
		}
	}

	nearest := segments[0]
	best := math.Abs(segments[0].Start - t)
	for _, s := range segments[1:] {
		if d := math.Abs(s.Start - t); d < best {
			best = d
			nearest = s
		}
	}
	return nearest
}
