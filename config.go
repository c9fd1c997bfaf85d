package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// defaultConfigPath is used when GREETER_CONFIG is not set.
const defaultConfigPath = "greeter.yaml"

// maxServoChannels bounds the channel numbers accepted from any caller.
const maxServoChannels = 3

// ConfigManager wraps the loaded configuration and a mutex for concurrent access.
type ConfigManager struct {
	mu     sync.RWMutex
	path   string
	cfg    Config
	loaded bool
}

// NewConfigManager returns a manager for the file at path.  An empty path
// resolves to GREETER_CONFIG or greeter.yaml.
func NewConfigManager(path string) *ConfigManager {
	if path == "" {
		path = getEnv("GREETER_CONFIG", defaultConfigPath)
	}
	return &ConfigManager{path: path}
}

// DefaultConfig returns the compiled-in settings of the kiosk: three servo
// channels on the multi-channel PWM driver, the near/far IR drivers, two
// SSD1306 eyes on I2C bus 1 and a local MQTT broker.
func DefaultConfig() Config {
	return Config{
		LogLevel:     "info",
		EventLog:     "events.log",
		TickInterval: 200 * time.Millisecond,
		Cooldown:     5 * time.Second,
		WelcomeHold:  time.Second,
		WarnHold:     500 * time.Millisecond,
		DanceHold:    500 * time.Millisecond,
		DanceRepeats: 3,
		InboxSize:    32,
		Sensors: SensorConfig{
			Backend:   "devfs",
			NearPath:  "/dev/ir_mc0",
			FarPath:   "/dev/ir_mc1",
			Sentinel:  "0",
			NearPin:   "GPIO17",
			FarPin:    "GPIO27",
			ActiveLow: true,
		},
		Servos: ServoConfig{
			Backend:   "pwm_mc",
			Devices:   []string{"/dev/pwm_mc0", "/dev/pwm_mc1", "/dev/pwm_mc2"},
			Pins:      []string{"GPIO12", "GPIO13", "GPIO18"},
			PeriodNs:  20000000,
			Duty0Ns:   1000000,
			Duty90Ns:  1500000,
			Duty180Ns: 2000000,
		},
		Display: DisplayConfig{
			Backend:   "ssd1306",
			Bus:       "1",
			LeftAddr:  0x3C,
			RightAddr: 0x3D,
			Width:     128,
			Height:    64,
		},
		MQTT: MQTTConfig{
			Enabled:     true,
			Broker:      "tcp://localhost:1883",
			ClientID:    "greeter",
			TopicPrefix: "greeter",
			Timeout:     5 * time.Second,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Addr:    ":8443",
		},
	}
}

// Load reads configuration from disk.  If the file does not exist, the default
// configuration is created with a single operator (password: "admin", which
// you should change immediately) and persisted to disk.  Environment
// overrides, including those from a .env file, are applied last.
func (cm *ConfigManager) Load() error {
	cm.mu.Lock()
	if cm.loaded {
		cm.mu.Unlock()
		return nil
	}
	cfg := DefaultConfig()
	data, err := os.ReadFile(cm.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg.HTTP.Users = []User{{Username: "admin", PasswordHash: hashPassword("admin")}}
		cm.cfg = cfg
		cm.loaded = true
		// Save takes the read lock.
		cm.mu.Unlock()
		if err := cm.Save(); err != nil {
			return err
		}
		cm.mu.Lock()
	case err != nil:
		cm.mu.Unlock()
		return fmt.Errorf("unable to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			cm.mu.Unlock()
			return fmt.Errorf("invalid %s: %w", cm.path, err)
		}
		cm.cfg = cfg
		cm.loaded = true
	}
	applyEnvOverrides(&cm.cfg)
	cm.mu.Unlock()
	return Validate(cm.Get())
}

// Save writes the configuration to disk through a temporary file.
func (cm *ConfigManager) Save() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out, err := yaml.Marshal(cm.cfg)
	if err != nil {
		return err
	}
	tmpPath := cm.path + ".tmp"
	if err := os.WriteFile(tmpPath, out, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, cm.path)
}

// Get returns a copy of the current configuration.  Callers must treat the
// returned Config as immutable.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.cfg
}

// FindUser returns the operator with the given name and whether it exists.
func (cm *ConfigManager) FindUser(username string) (User, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, u := range cm.cfg.HTTP.Users {
		if u.Username == username {
			return u, true
		}
	}
	return User{}, false
}

// Authenticate checks whether the provided username and password are valid.
func (cm *ConfigManager) Authenticate(username, password string) (User, error) {
	user, ok := cm.FindUser(username)
	if !ok {
		return User{}, errors.New("invalid credentials")
	}
	if err := checkPasswordHash(password, user.PasswordHash); err != nil {
		return User{}, errors.New("invalid credentials")
	}
	return user, nil
}

// applyEnvOverrides loads .env when present and lets GREETER_* variables
// override the file.
func applyEnvOverrides(cfg *Config) {
	// A missing .env is the normal case on the kiosk.
	_ = godotenv.Load()

	cfg.LogLevel = getEnv("GREETER_LOG_LEVEL", cfg.LogLevel)
	cfg.EventLog = getEnv("GREETER_EVENT_LOG", cfg.EventLog)
	cfg.MQTT.Broker = getEnv("GREETER_MQTT_BROKER", cfg.MQTT.Broker)
	cfg.HTTP.Addr = getEnv("GREETER_HTTP_ADDR", cfg.HTTP.Addr)
	if v := os.Getenv("GREETER_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = parseBool(v, cfg.MQTT.Enabled)
	}
	if v := os.Getenv("GREETER_HTTP_ENABLED"); v != "" {
		cfg.HTTP.Enabled = parseBool(v, cfg.HTTP.Enabled)
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

// Validate checks configuration correctness.  It does not mutate cfg.
func Validate(cfg Config) error {
	if cfg.TickInterval <= 0 {
		return errors.New("tick_interval must be > 0")
	}
	if cfg.Cooldown < 0 || cfg.WelcomeHold < 0 || cfg.WarnHold < 0 || cfg.DanceHold < 0 {
		return errors.New("cooldown and hold durations must not be negative")
	}
	if cfg.InboxSize <= 0 {
		return errors.New("inbox_size must be > 0")
	}

	switch cfg.Sensors.Backend {
	case "devfs":
		if cfg.Sensors.NearPath == "" || cfg.Sensors.FarPath == "" {
			return errors.New("sensors: near_path and far_path are required for devfs")
		}
		if len(cfg.Sensors.Sentinel) != 1 {
			return fmt.Errorf("sensors: sentinel must be a single byte, got %q", cfg.Sensors.Sentinel)
		}
	case "gpio":
		if cfg.Sensors.NearPin == "" || cfg.Sensors.FarPin == "" {
			return errors.New("sensors: near_pin and far_pin are required for gpio")
		}
	default:
		return fmt.Errorf("sensors: unknown backend %q", cfg.Sensors.Backend)
	}

	var channels int
	switch cfg.Servos.Backend {
	case "pwm_mc":
		channels = len(cfg.Servos.Devices)
	case "gpio":
		channels = len(cfg.Servos.Pins)
	case "none":
		channels = maxServoChannels
	default:
		return fmt.Errorf("servos: unknown backend %q", cfg.Servos.Backend)
	}
	if channels == 0 || channels > maxServoChannels {
		return fmt.Errorf("servos: need 1..%d channels, got %d", maxServoChannels, channels)
	}
	if _, err := NewCalibration(cfg.Servos); err != nil {
		return fmt.Errorf("servos: %w", err)
	}

	switch cfg.Display.Backend {
	case "ssd1306":
		if cfg.Display.LeftAddr == cfg.Display.RightAddr {
			return fmt.Errorf("display: left and right eyes share address 0x%02X", cfg.Display.LeftAddr)
		}
	case "none":
	default:
		return fmt.Errorf("display: unknown backend %q", cfg.Display.Backend)
	}
	if cfg.Display.Width <= 0 || cfg.Display.Height <= 0 || cfg.Display.Height%8 != 0 {
		return fmt.Errorf("display: invalid geometry %dx%d", cfg.Display.Width, cfg.Display.Height)
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" || cfg.MQTT.TopicPrefix == "" {
			return errors.New("mqtt: broker and topic_prefix are required when enabled")
		}
	}
	if cfg.HTTP.Enabled {
		if cfg.HTTP.Addr == "" {
			return errors.New("http: addr is required when enabled")
		}
		if (cfg.HTTP.CertFile == "") != (cfg.HTTP.KeyFile == "") {
			return errors.New("http: cert_file and key_file must be set together")
		}
		if len(cfg.HTTP.Users) == 0 {
			return errors.New("http: at least one user is required when enabled")
		}
	}
	return nil
}
