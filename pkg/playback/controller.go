// Package playback enforces navigation bounds of a video session.
//
// A session is either Free (whole video) or Clip (one segment). Every
// stimulus (seek, tick, skip, play, mode switch) passes through the
// Controller, so the current time never leaves the active bounds:
//
//	Free ──EnterClip(seg)──→ Clip(lower, upper)
//	 ↑                          │
//	 └────────ExitClip()────────┘
//
// EnterClip from Clip replaces the bounds.
package playback

import (
	"math"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/model"
)

// DefaultSkipDelta is the skip distance in seconds.
const DefaultSkipDelta = 10.0

// Mode is either Free or Clip.
type Mode interface {
	isMode()
	String() string
}

// Free allows navigation over the whole video.
type Free struct{}

func (Free) isMode()        {}
func (Free) String() string { return "free" }

// Clip restricts navigation to [Lower, Upper].
type Clip struct {
	Lower float64
	Upper float64
}

func (Clip) isMode()        {}
func (Clip) String() string { return "clip" }

// Player is the media clock the controller drives. Directives are issued
// when a transition moves the playhead or stops playback.
type Player interface {
	Seek(t float64)
	Play()
	Pause()
}

type nopPlayer struct{}

func (nopPlayer) Seek(float64) {}
func (nopPlayer) Play()        {}
func (nopPlayer) Pause()       {}

// Controller is the playback state machine of one video session. It is
// not safe for concurrent use; callers serialize events.
type Controller struct {
	mode     Mode
	duration float64 // 0 while unknown
	current  float64
	playing  bool

	player    Player
	skipDelta float64
}

// Option is a functional option for Controller
type Option func(*Controller)

// WithPlayer sets the media clock receiving seek/play/pause directives
func WithPlayer(p Player) Option {
	return func(c *Controller) {
		if p != nil {
			c.player = p
		}
	}
}

// WithSkipDelta sets the default skip distance
func WithSkipDelta(d float64) Option {
	return func(c *Controller) {
		if d > 0 && !math.IsInf(d, 0) {
			c.skipDelta = d
		}
	}
}

// New creates a controller in Free mode at time 0. duration may be 0 when
// it is not known yet; see SetDuration.
func New(duration float64, opts ...Option) *Controller {
	c := &Controller{
		mode:      Free{},
		player:    nopPlayer{},
		skipDelta: DefaultSkipDelta,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.SetDuration(duration)
	return c
}

// State is a snapshot of the session for rendering.
type State struct {
	Mode        string   `json:"mode"`
	LowerBound  float64  `json:"lower_bound"`
	UpperBound  *float64 `json:"upper_bound,omitempty"`
	CurrentTime float64  `json:"current_time"`
	IsPlaying   bool     `json:"is_playing"`
	Duration    float64  `json:"duration"`
}

func (c *Controller) State() State {
	st := State{
		Mode:        c.mode.String(),
		CurrentTime: c.current,
		IsPlaying:   c.playing,
		Duration:    c.duration,
	}
	if clip, ok := c.mode.(Clip); ok {
		upper := clip.Upper
		st.LowerBound = clip.Lower
		st.UpperBound = &upper
	}
	return st
}

func (c *Controller) Mode() Mode           { return c.mode }
func (c *Controller) CurrentTime() float64 { return c.current }
func (c *Controller) IsPlaying() bool      { return c.playing }
func (c *Controller) Duration() float64    { return c.duration }

// SetDuration records the video duration once the media clock knows it.
// Non-positive or non-finite values are ignored. In Free mode the
// playhead is pulled back inside the new bound.
func (c *Controller) SetDuration(d float64) {
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return
	}
	c.duration = d
	if _, ok := c.mode.(Free); ok && c.current > d {
		c.current = d
		c.player.Seek(d)
	}
}

// EnterClip constrains playback to seg. The playhead moves to the segment
// start; a playing session keeps playing. Invalid bounds fail with
// model.ErrInvalidClipBounds and leave the state unchanged.
func (c *Controller) EnterClip(seg model.Segment) error {
	if !seg.Valid() {
		return goerr.Wrap(model.ErrInvalidClipBounds, "segment cannot bound a clip",
			goerr.V("start_time", seg.StartTime),
			goerr.V("end_time", seg.EndTime))
	}

	c.mode = Clip{Lower: seg.StartTime, Upper: seg.EndTime}
	c.current = seg.StartTime
	c.player.Seek(c.current)
	return nil
}

// ExitClip returns to Free mode, leaving the playhead where it is.
func (c *Controller) ExitClip() {
	c.mode = Free{}
}

// Seek moves the playhead to t clamped into the active bounds. Non-finite
// times are ignored.
func (c *Controller) Seek(t float64) {
	if !finite(t) {
		return
	}
	c.current = c.clamp(t)
	c.player.Seek(c.current)
}

// SkipForward seeks delta seconds ahead; delta <= 0 uses the default.
func (c *Controller) SkipForward(delta float64) {
	c.Seek(c.current + c.delta(delta))
}

// SkipBackward seeks delta seconds back; delta <= 0 uses the default.
func (c *Controller) SkipBackward(delta float64) {
	c.Seek(c.current - c.delta(delta))
}

// Tick applies a periodic time update from the media clock.
//
// In Clip mode a time before the lower bound forces a seek to it, and a
// time at or past the upper bound pauses playback without advancing the
// playhead. In Free mode t is adopted after clamping into [0, duration].
// Non-finite times are ignored.
func (c *Controller) Tick(t float64) {
	if !finite(t) {
		return
	}

	clip, ok := c.mode.(Clip)
	if !ok {
		c.current = c.clamp(t)
		return
	}

	switch {
	case t < clip.Lower:
		c.current = clip.Lower
		c.player.Seek(clip.Lower)
	case t >= clip.Upper:
		if c.playing {
			c.playing = false
			c.player.Pause()
		}
	default:
		c.current = t
	}
}

// Play starts playback. A playhead outside the legal range is moved first;
// in Clip mode a finished clip restarts from its lower bound.
func (c *Controller) Play() {
	if clip, ok := c.mode.(Clip); ok {
		if c.current < clip.Lower || c.current >= clip.Upper {
			c.current = clip.Lower
			c.player.Seek(c.current)
		}
	} else if t := c.clamp(c.current); t != c.current {
		c.current = t
		c.player.Seek(t)
	}

	c.playing = true
	c.player.Play()
}

func (c *Controller) Pause() {
	c.playing = false
	c.player.Pause()
}

// Toggle switches between Play and Pause.
func (c *Controller) Toggle() {
	if c.playing {
		c.Pause()
	} else {
		c.Play()
	}
}

// Remaining returns the seconds left until the active upper bound, or -1
// when the bound is unknown.
func (c *Controller) Remaining() float64 {
	_, upper := c.bounds()
	if math.IsInf(upper, 1) {
		return -1
	}
	return math.Max(0, upper-c.current)
}

func (c *Controller) bounds() (lower, upper float64) {
	if clip, ok := c.mode.(Clip); ok {
		return clip.Lower, clip.Upper
	}
	if c.duration > 0 {
		return 0, c.duration
	}
	return 0, math.Inf(1)
}

func (c *Controller) clamp(t float64) float64 {
	lower, upper := c.bounds()
	return math.Min(math.Max(t, lower), upper)
}

func finite(t float64) bool {
	return !math.IsNaN(t) && !math.IsInf(t, 0)
}

func (c *Controller) delta(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return c.skipDelta
	}
	return d
}
