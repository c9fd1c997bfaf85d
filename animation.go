package main

import (
	"errors"
	"log/slog"
	"strconv"
	"time"
)

// ServoDriver is the servo side of the actuators.
type ServoDriver interface {
	SetServo(channel, angle int) error
	MoveAll(angle int) error
	DisableAll() error
}

// EyeDriver is the display side of the actuators.
type EyeDriver interface {
	SetEyes(expr Expression) error
}

// Actuators groups what an animation step may drive.
type Actuators struct {
	Servos ServoDriver
	Eyes   EyeDriver
}

// Step is one timed actuation.  Do runs when the step becomes due; the next
// step becomes due Hold later.
type Step struct {
	Name string
	Do   func(Actuators) error
	Hold time.Duration
}

// Animation is a named sequence of steps.  A playing animation can only be
// replaced by one of equal or higher priority.
type Animation struct {
	Name     string
	Priority int
	Steps    []Step
}

// pose sets the eyes and moves every servo to a preset angle.
func pose(expr Expression, angle int, hold time.Duration) Step {
	return Step{
		Name: expr.String() + "@" + strconv.Itoa(angle),
		Do: func(a Actuators) error {
			return errors.Join(a.Eyes.SetEyes(expr), a.Servos.MoveAll(angle))
		},
		Hold: hold,
	}
}

// sweep moves every servo to a preset angle without touching the eyes.
func sweep(angle int, hold time.Duration) Step {
	return Step{
		Name: "servos@" + strconv.Itoa(angle),
		Do:   func(a Actuators) error { return a.Servos.MoveAll(angle) },
		Hold: hold,
	}
}

// IdleAnimation shows neutral eyes with every servo at rest.
func IdleAnimation() Animation {
	return Animation{Name: "idle", Priority: 0, Steps: []Step{pose(ExpressionNeutral, 0, 0)}}
}

// WelcomeAnimation raises the servos for hold, then lowers them.
func WelcomeAnimation(hold time.Duration) Animation {
	return Animation{Name: "welcome", Priority: 2, Steps: []Step{
		pose(ExpressionWelcome, 90, hold),
		sweep(0, 0),
	}}
}

// WarnAnimation swings the servos fully out and back, holding each position.
func WarnAnimation(hold time.Duration) Animation {
	return Animation{Name: "warn", Priority: 3, Steps: []Step{
		pose(ExpressionAngry, 180, hold),
		sweep(0, hold),
	}}
}

// DanceAnimation alternates the welcome and neutral poses repeats times.
func DanceAnimation(hold time.Duration, repeats int) Animation {
	a := Animation{Name: "dance", Priority: 1}
	for i := 0; i < repeats; i++ {
		a.Steps = append(a.Steps,
			pose(ExpressionWelcome, 90, hold),
			pose(ExpressionNeutral, 0, hold),
		)
	}
	return a
}

// Sequencer plays animations step by step from its owner's loop.  It never
// sleeps: the owner calls Advance when NextDue is reached.  It is not safe for
// concurrent use.
type Sequencer struct {
	act    Actuators
	logger *slog.Logger

	current *Animation
	next    int       // index of the next step to run
	dueAt   time.Time // when the next step (or the end of the last hold) is due
}

// NewSequencer returns an idle sequencer driving act.
func NewSequencer(act Actuators, logger *slog.Logger) *Sequencer {
	return &Sequencer{act: act, logger: logger}
}

// Play starts a unless an animation of higher priority, or a itself, is still
// playing.  The first step runs immediately.  It reports whether a started.
func (s *Sequencer) Play(a Animation, now time.Time) bool {
	s.Advance(now)
	if s.current != nil {
		if a.Priority < s.current.Priority || a.Name == s.current.Name {
			return false
		}
		s.logger.Debug("animation preempted", "animation", s.current.Name, "by", a.Name)
	}
	s.start(a, now)
	return true
}

// Force starts a regardless of what is playing.
func (s *Sequencer) Force(a Animation, now time.Time) {
	s.start(a, now)
}

func (s *Sequencer) start(a Animation, now time.Time) {
	s.current = &a
	s.next = 0
	s.dueAt = now
	s.Advance(now)
}

// Advance runs every step that is due at now.  Holds are measured from when a
// step was due, not from when Advance noticed.  An animation stays current
// until the hold of its last step has elapsed.
func (s *Sequencer) Advance(now time.Time) {
	for s.current != nil && !now.Before(s.dueAt) {
		if s.next >= len(s.current.Steps) {
			s.current = nil
			return
		}
		step := s.current.Steps[s.next]
		s.next++
		if err := step.Do(s.act); err != nil {
			s.logger.Warn("animation step failed", "animation", s.current.Name, "step", step.Name, "err", err)
		}
		s.dueAt = s.dueAt.Add(step.Hold)
	}
}

// NextDue returns when Advance should next be called.
func (s *Sequencer) NextDue() (time.Time, bool) {
	if s.current == nil {
		return time.Time{}, false
	}
	return s.dueAt, true
}

// Current returns the name of the playing animation, or "".
func (s *Sequencer) Current() string {
	if s.current == nil {
		return ""
	}
	return s.current.Name
}

// Stop drops the playing animation without running its remaining steps.
func (s *Sequencer) Stop() {
	s.current = nil
	s.next = 0
}
