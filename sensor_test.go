package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDevice(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDevfsSensorRead(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		path    string
		want    Reading
		wantErr bool
	}{
		{"sentinel means detected", writeDevice(t, dir, "detected", "0\n"), Detected, false},
		{"other byte means clear", writeDevice(t, dir, "clear", "1\n"), NotDetected, false},
		{"empty read is an error", writeDevice(t, dir, "empty", ""), ReadError, true},
		{"missing device is an error", filepath.Join(dir, "absent"), ReadError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &devfsSensor{path: tt.path, sentinel: '0'}
			got, err := s.Read()
			if got != tt.want {
				t.Fatalf("Read = %v, want %v", got, tt.want)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSensorReaderSense(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig().Sensors
	cfg.NearPath = writeDevice(t, dir, "ir_mc0", "1")
	cfg.FarPath = writeDevice(t, dir, "ir_mc1", "0")

	r, err := NewSensorReader(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewSensorReader: %v", err)
	}
	got := r.Sense()
	if got != (SensorSnapshot{Near: NotDetected, Far: Detected}) {
		t.Fatalf("Sense = %+v", got)
	}
	if !got.FarPresent() || got.NearPresent() {
		t.Fatalf("presence = far %v near %v", got.FarPresent(), got.NearPresent())
	}
}

func TestSensorReaderDistinguishesReadError(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig().Sensors
	cfg.NearPath = filepath.Join(dir, "gone")
	cfg.FarPath = writeDevice(t, dir, "ir_mc1", "1")

	r, err := NewSensorReader(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewSensorReader: %v", err)
	}
	got := r.Sense()
	if got.Near != ReadError || got.Far != NotDetected {
		t.Fatalf("Sense = %+v", got)
	}
	if got.NearPresent() {
		t.Fatal("read error must count as absence")
	}
}
