package main

import (
	"fmt"
	"strings"
	"time"
)

// Expression is the eye-display intent shown on both displays at once.
type Expression int

const (
	ExpressionNeutral Expression = iota
	ExpressionWelcome
	ExpressionAngry
	ExpressionSleep
)

var expressionNames = map[Expression]string{
	ExpressionNeutral: "neutral",
	ExpressionWelcome: "welcome",
	ExpressionAngry:   "angry",
	ExpressionSleep:   "sleep",
}

func (e Expression) String() string {
	if name, ok := expressionNames[e]; ok {
		return name
	}
	return fmt.Sprintf("expression(%d)", int(e))
}

// ParseExpression maps a plain expression name (case and surrounding space
// ignored) to an Expression.
func ParseExpression(s string) (Expression, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for expr, n := range expressionNames {
		if n == name {
			return expr, nil
		}
	}
	return ExpressionNeutral, fmt.Errorf("unknown expression %q", s)
}

// Reading is the tri-state result of sampling one IR detector.
type Reading int

const (
	NotDetected Reading = iota
	Detected
	ReadError
)

func (r Reading) String() string {
	switch r {
	case Detected:
		return "detected"
	case ReadError:
		return "read_error"
	default:
		return "not_detected"
	}
}

// SensorSnapshot is one sample of both detectors.  It is produced fresh each
// tick and never retained.
type SensorSnapshot struct {
	Near Reading
	Far  Reading
}

// NearPresent reports whether the close-range detector sees an object.  A read
// error counts as absence.
func (s SensorSnapshot) NearPresent() bool { return s.Near == Detected }

// FarPresent reports whether the long-range detector sees an object.  A read
// error counts as absence.
func (s SensorSnapshot) FarPresent() bool { return s.Far == Detected }

// Behavior is the state selected by the controller on a tick.
type Behavior int

const (
	BehaviorIdle Behavior = iota
	BehaviorWarn
	BehaviorWelcome
)

func (b Behavior) String() string {
	switch b {
	case BehaviorWarn:
		return "warn"
	case BehaviorWelcome:
		return "welcome"
	default:
		return "idle"
	}
}

// CommandKind tags the variant carried by a Command.
type CommandKind int

const (
	CommandSetEyes CommandKind = iota + 1
	CommandSetServo
	CommandEvent
)

// Command is a remote instruction.  Exactly one group of fields is meaningful,
// selected by Kind.
type Command struct {
	Kind       CommandKind
	Expression Expression // CommandSetEyes
	Channel    int        // CommandSetServo
	Angle      int        // CommandSetServo
	Event      string     // CommandEvent
}

// SetEyesCommand shows expr on both eyes.
func SetEyesCommand(expr Expression) Command {
	return Command{Kind: CommandSetEyes, Expression: expr}
}

// SetServoCommand moves one servo channel to angle degrees.
func SetServoCommand(channel, angle int) Command {
	return Command{Kind: CommandSetServo, Channel: channel, Angle: angle}
}

// EventCommand carries a named event such as "reset" or "dance".
func EventCommand(name string) Command {
	return Command{Kind: CommandEvent, Event: name}
}

func (c Command) String() string {
	switch c.Kind {
	case CommandSetEyes:
		return "set_eyes(" + c.Expression.String() + ")"
	case CommandSetServo:
		return fmt.Sprintf("set_servo(%d, %d)", c.Channel, c.Angle)
	case CommandEvent:
		return "event(" + c.Event + ")"
	default:
		return "command(invalid)"
	}
}

// Status is a read-only copy of the controller state served to operators.
type Status struct {
	Behavior       string    `json:"behavior"`
	CustomerCount  uint64    `json:"customer_count"`
	LastGreet      time.Time `json:"last_greet,omitempty"`
	Animation      string    `json:"animation,omitempty"`
	ServoPositions []int     `json:"servo_positions"`
}

// SensorConfig selects and addresses the IR detectors.
type SensorConfig struct {
	Backend   string `yaml:"backend"`  // "devfs" or "gpio"
	NearPath  string `yaml:"near_path"`
	FarPath   string `yaml:"far_path"`
	Sentinel  string `yaml:"sentinel"` // byte that means "detected" on devfs
	NearPin   string `yaml:"near_pin"`
	FarPin    string `yaml:"far_pin"`
	ActiveLow bool   `yaml:"active_low"`
}

// ServoConfig selects the PWM sink and carries the calibrated duty bounds.
type ServoConfig struct {
	Backend   string   `yaml:"backend"` // "pwm_mc", "gpio" or "none"
	Devices   []string `yaml:"devices"`
	Pins      []string `yaml:"pins"`
	PeriodNs  int64    `yaml:"period_ns"`
	Duty0Ns   int64    `yaml:"duty_0_ns"`
	Duty90Ns  int64    `yaml:"duty_90_ns"`
	Duty180Ns int64    `yaml:"duty_180_ns"`
}

// DisplayConfig addresses the two OLED eyes.
type DisplayConfig struct {
	Backend   string `yaml:"backend"` // "ssd1306" or "none"
	Bus       string `yaml:"bus"`
	LeftAddr  uint16 `yaml:"left_addr"`
	RightAddr uint16 `yaml:"right_addr"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
}

// MQTTConfig configures the optional remote command channel.
type MQTTConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Timeout     time.Duration `yaml:"connect_timeout"`
}

// User is an operator account for the HTTP API.  Passwords are stored as
// bcrypt hashes.
type User struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// HTTPConfig configures the operator API.
type HTTPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	Users    []User `yaml:"users"`
}

// Config is the top-level structure serialized to greeter.yaml.
type Config struct {
	LogLevel     string        `yaml:"log_level"`
	EventLog     string        `yaml:"event_log"`
	TickInterval time.Duration `yaml:"tick_interval"`
	Cooldown     time.Duration `yaml:"cooldown"`
	WelcomeHold  time.Duration `yaml:"welcome_hold"`
	WarnHold     time.Duration `yaml:"warn_hold"`
	DanceHold    time.Duration `yaml:"dance_hold"`
	DanceRepeats int           `yaml:"dance_repeats"`
	InboxSize    int           `yaml:"inbox_size"`

	Sensors SensorConfig  `yaml:"sensors"`
	Servos  ServoConfig   `yaml:"servos"`
	Display DisplayConfig `yaml:"display"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	HTTP    HTTPConfig    `yaml:"http"`
}
