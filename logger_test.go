package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestEventLoggerTail(t *testing.T) {
	el := NewEventLogger(filepath.Join(t.TempDir(), "events.log"))
	for _, msg := range []string{"one", "two", "three"} {
		el.Log("event %s", msg)
	}
	lines, err := el.Tail(2)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 2 || !strings.HasSuffix(lines[0], " - event two") || !strings.HasSuffix(lines[1], " - event three") {
		t.Fatalf("Tail = %q", lines)
	}
	all, _ := el.Tail(0)
	if len(all) != 3 {
		t.Fatalf("Tail(0) = %d lines", len(all))
	}
}

func TestEventLoggerTailMissingFile(t *testing.T) {
	el := NewEventLogger(filepath.Join(t.TempDir(), "absent.log"))
	if _, err := el.Tail(10); err == nil {
		t.Fatal("expected error for missing journal")
	}
}

func TestLogAnnouncer(t *testing.T) {
	el := NewEventLogger(filepath.Join(t.TempDir(), "events.log"))
	a := LogAnnouncer{Journal: el}
	a.Announce(Announcement{Kind: AnnounceWelcome, Count: 4})
	a.Announce(Announcement{Kind: AnnounceWarn, Count: 4})
	lines, err := el.Tail(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || !strings.HasSuffix(lines[0], "welcome customer #4") || !strings.Contains(lines[1], "warn") {
		t.Fatalf("journal = %q", lines)
	}
}
