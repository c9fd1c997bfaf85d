package main

// This file defines pluggable announcers that are told when the controller
// greets or warns somebody.

import "time"

// AnnouncementKind names the controller transition being announced.
type AnnouncementKind string

const (
	AnnounceWelcome AnnouncementKind = "welcome"
	AnnounceWarn    AnnouncementKind = "warn"
)

// Announcement describes one welcome or warn transition.  Count is the running
// customer count after the transition.
type Announcement struct {
	Kind  AnnouncementKind `json:"kind"`
	Count uint64           `json:"customer_count"`
	At    time.Time        `json:"at"`
}

// Announcer represents a mechanism that is notified of controller
// transitions.  Announce is called on the controller goroutine and must not
// block for long.  If an error is returned, the caller logs it and continues.
type Announcer interface {
	Name() string
	Announce(a Announcement) error
}

// LogAnnouncer records transitions in the event journal.
type LogAnnouncer struct {
	Journal *EventLogger
}

// Name returns the type name of the announcer.
func (LogAnnouncer) Name() string { return "journal" }

// Announce writes the transition to the event journal.
func (l LogAnnouncer) Announce(a Announcement) error {
	switch a.Kind {
	case AnnounceWelcome:
		l.Journal.Log("welcome customer #%d", a.Count)
	default:
		l.Journal.Log("%s (customers so far: %d)", a.Kind, a.Count)
	}
	return nil
}
