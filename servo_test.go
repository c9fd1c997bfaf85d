package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func defaultCalibration(t *testing.T) Calibration {
	t.Helper()
	cal, err := NewCalibration(DefaultConfig().Servos)
	if err != nil {
		t.Fatalf("NewCalibration: %v", err)
	}
	return cal
}

func TestDutyMapping(t *testing.T) {
	cal := defaultCalibration(t)
	tests := []struct {
		angle int
		want  int64
	}{
		{0, 1000000},
		{45, 1250000},
		{90, 1500000},
		{135, 1750000},
		{180, 2000000},
	}
	for _, tt := range tests {
		got, err := cal.Duty(tt.angle)
		if err != nil {
			t.Fatalf("Duty(%d): %v", tt.angle, err)
		}
		if got != tt.want {
			t.Fatalf("Duty(%d) = %d, want %d", tt.angle, got, tt.want)
		}
	}
}

func TestDutyMonotonic(t *testing.T) {
	cal := defaultCalibration(t)
	prev := int64(-1)
	for angle := 0; angle <= 180; angle++ {
		d, err := cal.Duty(angle)
		if err != nil {
			t.Fatalf("Duty(%d): %v", angle, err)
		}
		if d <= prev {
			t.Fatalf("Duty(%d) = %d not above Duty(%d) = %d", angle, d, angle-1, prev)
		}
		prev = d
	}
}

func TestDutyRejectsOutOfRange(t *testing.T) {
	cal := defaultCalibration(t)
	for _, angle := range []int{-1, 181, 360} {
		if _, err := cal.Duty(angle); !errors.Is(err, ErrInvalidAngle) {
			t.Fatalf("Duty(%d) err = %v, want ErrInvalidAngle", angle, err)
		}
	}
}

func TestNewCalibrationValidatesBounds(t *testing.T) {
	cfg := DefaultConfig().Servos
	cfg.Duty90Ns = cfg.Duty0Ns
	if _, err := NewCalibration(cfg); err == nil {
		t.Fatal("expected error for non-increasing duties")
	}
	cfg = DefaultConfig().Servos
	cfg.Duty180Ns = cfg.PeriodNs + 1
	if _, err := NewCalibration(cfg); err == nil {
		t.Fatal("expected error for duty beyond period")
	}
}

// recordingSink remembers the last record per channel.
type recordingSink struct {
	channels int
	records  map[int][3]int64
	fail     map[int]error
}

func newRecordingSink(channels int) *recordingSink {
	return &recordingSink{channels: channels, records: make(map[int][3]int64), fail: make(map[int]error)}
}

func (s *recordingSink) Channels() int { return s.channels }

func (s *recordingSink) Write(channel int, periodNs, dutyNs int64, enable bool) error {
	if err := s.fail[channel]; err != nil {
		return err
	}
	en := int64(0)
	if enable {
		en = 1
	}
	s.records[channel] = [3]int64{periodNs, dutyNs, en}
	return nil
}

func newTestBank(t *testing.T, sink PWMSink) *ServoBank {
	return &ServoBank{sink: sink, cal: defaultCalibration(t)}
}

func TestServoBankSetup(t *testing.T) {
	sink := newRecordingSink(3)
	if err := newTestBank(t, sink).Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	for ch := 0; ch < 3; ch++ {
		if got := sink.records[ch]; got != [3]int64{20000000, 1000000, 1} {
			t.Fatalf("channel %d record = %v", ch, got)
		}
	}
}

func TestServoBankSetupFailure(t *testing.T) {
	sink := newRecordingSink(3)
	sink.fail[1] = os.ErrPermission
	if err := newTestBank(t, sink).Setup(); !errors.Is(err, os.ErrPermission) {
		t.Fatalf("Setup err = %v", err)
	}
}

func TestServoBankSetServo(t *testing.T) {
	sink := newRecordingSink(3)
	bank := newTestBank(t, sink)
	if err := bank.SetServo(2, 90); err != nil {
		t.Fatalf("SetServo: %v", err)
	}
	if got := sink.records[2]; got[1] != 1500000 || got[2] != 1 {
		t.Fatalf("record = %v", got)
	}
	if err := bank.SetServo(3, 90); !errors.Is(err, ErrInvalidChannel) {
		t.Fatalf("SetServo(3) err = %v, want ErrInvalidChannel", err)
	}
	if err := bank.SetServo(0, 200); !errors.Is(err, ErrInvalidAngle) {
		t.Fatalf("SetServo(0, 200) err = %v, want ErrInvalidAngle", err)
	}
}

func TestServoBankMoveAllPresetsOnly(t *testing.T) {
	sink := newRecordingSink(3)
	bank := newTestBank(t, sink)
	if err := bank.MoveAll(45); !errors.Is(err, ErrInvalidAngle) {
		t.Fatalf("MoveAll(45) err = %v, want ErrInvalidAngle", err)
	}
	if len(sink.records) != 0 {
		t.Fatalf("rejected move wrote %v", sink.records)
	}
	if err := bank.MoveAll(180); err != nil {
		t.Fatalf("MoveAll(180): %v", err)
	}
	for ch := 0; ch < 3; ch++ {
		if sink.records[ch][1] != 2000000 {
			t.Fatalf("channel %d duty = %d", ch, sink.records[ch][1])
		}
	}
}

func TestServoBankDisableAllJoinsErrors(t *testing.T) {
	sink := newRecordingSink(3)
	sink.fail[0] = os.ErrPermission
	err := newTestBank(t, sink).DisableAll()
	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("DisableAll err = %v", err)
	}
	for _, ch := range []int{1, 2} {
		if got := sink.records[ch]; got != [3]int64{0, 0, 0} {
			t.Fatalf("channel %d record = %v, want disabled", ch, got)
		}
	}
}

func TestPWMDeviceSinkRecord(t *testing.T) {
	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "pwm_mc0"), filepath.Join(dir, "pwm_mc1")}
	for _, p := range paths {
		if err := os.WriteFile(p, nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	sink := &pwmDeviceSink{paths: paths}
	if err := sink.Write(1, 20000000, 1500000, true); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(paths[1])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "1 20000000 1500000 1" {
		t.Fatalf("record = %q", data)
	}
}

func TestPWMDeviceSinkMissingDevice(t *testing.T) {
	sink := &pwmDeviceSink{paths: []string{filepath.Join(t.TempDir(), "absent")}}
	if err := sink.Write(0, 0, 0, false); err == nil {
		t.Fatal("expected error for missing device")
	}
}

func TestNewServoBankNoneBackend(t *testing.T) {
	cfg := DefaultConfig().Servos
	cfg.Backend = "none"
	bank, err := NewServoBank(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewServoBank: %v", err)
	}
	if bank.Channels() != maxServoChannels {
		t.Fatalf("channels = %d", bank.Channels())
	}
	if err := bank.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
}
