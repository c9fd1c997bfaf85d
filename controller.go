package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ControllerOptions carries the timing of the greeting policy.
type ControllerOptions struct {
	Cooldown     time.Duration
	WelcomeHold  time.Duration
	WarnHold     time.Duration
	DanceHold    time.Duration
	DanceRepeats int
	Channels     int
}

// ControllerOptionsFrom extracts the controller settings from cfg.
func ControllerOptionsFrom(cfg Config, channels int) ControllerOptions {
	return ControllerOptions{
		Cooldown:     cfg.Cooldown,
		WelcomeHold:  cfg.WelcomeHold,
		WarnHold:     cfg.WarnHold,
		DanceHold:    cfg.DanceHold,
		DanceRepeats: cfg.DanceRepeats,
		Channels:     channels,
	}
}

// SnapshotSource produces one sensor snapshot per call.  *SensorReader
// satisfies it.
type SnapshotSource interface {
	Sense() SensorSnapshot
}

var _ SnapshotSource = (*SensorReader)(nil)

// decide selects the behavior for one tick.  A zero lastGreet means nobody has
// been greeted yet.
func decide(snap SensorSnapshot, lastGreet time.Time, cooldown time.Duration, now time.Time) Behavior {
	far, near := snap.FarPresent(), snap.NearPresent()
	switch {
	case far && !near && (lastGreet.IsZero() || now.Sub(lastGreet) > cooldown):
		return BehaviorWelcome
	case far && near:
		return BehaviorWarn
	}
	return BehaviorIdle
}

// Controller owns the greeter state and is the only caller of the actuators.
// Tick, Dispatch, Advance and Shutdown must all be called from one goroutine;
// Status may be called from anywhere.
type Controller struct {
	opts       ControllerOptions
	servos     ServoDriver
	eyes       EyeDriver
	seq        *Sequencer
	announcers []Announcer
	logger     *slog.Logger

	mu             sync.RWMutex
	lastGreet      time.Time
	customerCount  uint64
	behavior       Behavior
	animation      string
	servoPositions []int
}

// NewController wires a controller to its actuators.  Announcers are told
// about every welcome and every entry into warn.
func NewController(opts ControllerOptions, servos ServoDriver, eyes EyeDriver, announcers []Announcer, logger *slog.Logger) *Controller {
	if opts.Channels <= 0 || opts.Channels > maxServoChannels {
		opts.Channels = maxServoChannels
	}
	c := &Controller{
		opts:           opts,
		servos:         servos,
		eyes:           eyes,
		announcers:     announcers,
		logger:         logger.With("component", "controller"),
		servoPositions: make([]int, opts.Channels),
	}
	c.seq = NewSequencer(Actuators{Servos: trackedServos{c}, Eyes: eyes}, c.logger)
	return c
}

// Tick evaluates the policy against one snapshot and starts the matching
// animation.  A welcome is only counted once its animation starts: while a
// warn cycle is still playing the welcome is deferred to a later tick.  Idle
// and warn state changes apply even when their animation is refused.
func (c *Controller) Tick(snap SensorSnapshot, now time.Time) Behavior {
	c.seq.Advance(now)

	c.mu.RLock()
	lastGreet, prev := c.lastGreet, c.behavior
	c.mu.RUnlock()

	b := decide(snap, lastGreet, c.opts.Cooldown, now)
	switch b {
	case BehaviorWelcome:
		if !c.seq.Play(WelcomeAnimation(c.opts.WelcomeHold), now) {
			c.logger.Debug("welcome deferred", "animation", c.seq.Current())
			c.syncAnimation()
			return prev
		}
		c.mu.Lock()
		c.behavior = b
		c.customerCount++
		c.lastGreet = now
		count := c.customerCount
		c.mu.Unlock()
		c.logger.Info("welcome", "customer_count", count)
		c.announce(Announcement{Kind: AnnounceWelcome, Count: count, At: now})
	case BehaviorWarn:
		c.seq.Play(WarnAnimation(c.opts.WarnHold), now)
		count := c.setBehavior(b)
		if prev != BehaviorWarn {
			c.logger.Info("warn")
			c.announce(Announcement{Kind: AnnounceWarn, Count: count, At: now})
		}
	default:
		c.seq.Play(IdleAnimation(), now)
		c.setBehavior(b)
	}
	c.syncAnimation()
	return b
}

// setBehavior records b and returns the customer count.
func (c *Controller) setBehavior(b Behavior) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.behavior = b
	return c.customerCount
}

// Dispatch applies one remote command.
func (c *Controller) Dispatch(cmd Command, now time.Time) {
	c.seq.Advance(now)
	switch cmd.Kind {
	case CommandSetEyes:
		if err := c.eyes.SetEyes(cmd.Expression); err != nil {
			c.logger.Warn("set eyes failed", "expression", cmd.Expression.String(), "err", err)
		}
	case CommandSetServo:
		if cmd.Channel < 0 || cmd.Channel >= c.opts.Channels || cmd.Angle < 0 || cmd.Angle > 180 {
			c.logger.Debug("servo command out of range", "channel", cmd.Channel, "angle", cmd.Angle)
			return
		}
		if err := (trackedServos{c}).SetServo(cmd.Channel, cmd.Angle); err != nil {
			c.logger.Warn("set servo failed", "channel", cmd.Channel, "angle", cmd.Angle, "err", err)
		}
	case CommandEvent:
		c.handleEvent(cmd.Event, now)
	default:
		c.logger.Debug("ignoring command", "command", cmd.String())
	}
	c.syncAnimation()
}

func (c *Controller) handleEvent(name string, now time.Time) {
	switch name {
	case "reset":
		c.seq.Force(IdleAnimation(), now)
		c.setBehavior(BehaviorIdle)
		c.logger.Info("reset")
	case "dance":
		if !c.seq.Play(DanceAnimation(c.opts.DanceHold, c.opts.DanceRepeats), now) {
			c.logger.Debug("dance refused", "animation", c.seq.Current())
		}
	default:
		c.logger.Info("unknown event ignored", "event", name)
	}
}

// Advance runs animation steps that are due.
func (c *Controller) Advance(now time.Time) {
	c.seq.Advance(now)
	c.syncAnimation()
}

// NextDue returns when the playing animation next needs Advance.
func (c *Controller) NextDue() (time.Time, bool) {
	return c.seq.NextDue()
}

// Shutdown puts the eyes to sleep and disables every servo.  It is best
// effort: failures are logged and the remaining steps still run.
func (c *Controller) Shutdown() {
	c.seq.Stop()
	c.syncAnimation()
	if err := c.eyes.SetEyes(ExpressionSleep); err != nil {
		c.logger.Warn("sleep eyes failed", "err", err)
	}
	if err := c.servos.DisableAll(); err != nil {
		c.logger.Warn("disable servos failed", "err", err)
	}
}

// Status returns a copy of the controller state.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Behavior:       c.behavior.String(),
		CustomerCount:  c.customerCount,
		LastGreet:      c.lastGreet,
		Animation:      c.animation,
		ServoPositions: append([]int(nil), c.servoPositions...),
	}
}

// Run drives the controller until ctx is cancelled: it samples sensors every
// interval, applies commands in arrival order and runs animation steps when
// they fall due.  Shutdown is left to the caller.
func (c *Controller) Run(ctx context.Context, sensors SnapshotSource, commands <-chan Command, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	step := time.NewTimer(time.Hour)
	defer step.Stop()

	for {
		if due, ok := c.NextDue(); ok {
			step.Reset(time.Until(due))
		} else {
			step.Stop()
		}

		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.Tick(sensors.Sense(), now)
		case cmd := <-commands:
			c.Dispatch(cmd, time.Now())
		case now := <-step.C:
			c.Advance(now)
		}
	}
}

func (c *Controller) announce(a Announcement) {
	for _, an := range c.announcers {
		if err := an.Announce(a); err != nil {
			c.logger.Warn("announcer failed", "announcer", an.Name(), "err", err)
		}
	}
}

func (c *Controller) syncAnimation() {
	name := c.seq.Current()
	c.mu.Lock()
	c.animation = name
	c.mu.Unlock()
}

func (c *Controller) setPosition(channel, angle int) {
	c.mu.Lock()
	if channel >= 0 && channel < len(c.servoPositions) {
		c.servoPositions[channel] = angle
	}
	c.mu.Unlock()
}

// trackedServos records every successful move in the controller state.
type trackedServos struct{ c *Controller }

func (t trackedServos) SetServo(channel, angle int) error {
	if err := t.c.servos.SetServo(channel, angle); err != nil {
		return err
	}
	t.c.setPosition(channel, angle)
	return nil
}

func (t trackedServos) MoveAll(angle int) error {
	if err := t.c.servos.MoveAll(angle); err != nil {
		return err
	}
	for ch := 0; ch < t.c.opts.Channels; ch++ {
		t.c.setPosition(ch, angle)
	}
	return nil
}

func (t trackedServos) DisableAll() error {
	return t.c.servos.DisableAll()
}
