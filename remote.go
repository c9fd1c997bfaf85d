package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Topics holds the message topics of one greeter, derived from a prefix.
type Topics struct {
	Eyes   string
	Servo  string
	Events string
	Count  string
}

// NewTopics returns the topics under prefix, e.g. "greeter/eyes".
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	return Topics{
		Eyes:   prefix + "/eyes",
		Servo:  prefix + "/servo",
		Events: prefix + "/events",
		Count:  prefix + "/count",
	}
}

// Decode turns a message received on one of the command topics into a
// Command.
func (t Topics) Decode(topic string, payload []byte) (Command, error) {
	switch topic {
	case t.Eyes:
		return DecodeEyes(payload)
	case t.Servo:
		return DecodeServo(payload)
	case t.Events:
		return DecodeEvent(payload)
	}
	return Command{}, fmt.Errorf("unexpected topic %q", topic)
}

// DecodeEyes parses a plain expression name.
func DecodeEyes(payload []byte) (Command, error) {
	expr, err := ParseExpression(string(payload))
	if err != nil {
		return Command{}, err
	}
	return SetEyesCommand(expr), nil
}

// DecodeServo parses {"channel": <int>, "angle": <number>}.  Both fields are
// required; an in-range angle is rounded to the nearest degree.  Range checks
// are left to the controller.
func DecodeServo(payload []byte) (Command, error) {
	var msg struct {
		Channel *int     `json:"channel"`
		Angle   *float64 `json:"angle"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Command{}, fmt.Errorf("servo payload: %w", err)
	}
	if msg.Channel == nil || msg.Angle == nil {
		return Command{}, errors.New("servo payload: channel and angle are required")
	}
	if math.IsNaN(*msg.Angle) || math.IsInf(*msg.Angle, 0) {
		return Command{}, errors.New("servo payload: angle is not a number")
	}
	// Rounding must not pull an out-of-range angle into range; the
	// controller drops anything outside [0,180].
	var angle int
	switch a := *msg.Angle; {
	case a < 0:
		angle = -1
	case a > 180:
		angle = 181
	default:
		angle = int(math.Round(a))
	}
	return SetServoCommand(*msg.Channel, angle), nil
}

// DecodeEvent parses a plain event name.  Unknown names are accepted here and
// ignored by the controller.
func DecodeEvent(payload []byte) (Command, error) {
	name := strings.TrimSpace(string(payload))
	if name == "" {
		return Command{}, errors.New("empty event name")
	}
	return EventCommand(name), nil
}

// Inbox is the bounded queue between the remote channels and the controller
// goroutine.
type Inbox struct {
	ch chan Command
}

// NewInbox returns an inbox holding at most size pending commands.
func NewInbox(size int) *Inbox {
	return &Inbox{ch: make(chan Command, size)}
}

// Push enqueues cmd without blocking.  It reports false when the inbox is
// full and the command was dropped.
func (in *Inbox) Push(cmd Command) bool {
	select {
	case in.ch <- cmd:
		return true
	default:
		return false
	}
}

// C returns the receive side consumed by Controller.Run.
func (in *Inbox) C() <-chan Command { return in.ch }
