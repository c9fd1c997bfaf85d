package main

import (
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	sm := NewSessionManager()
	now := time.Unix(1000, 0)
	sm.now = func() time.Time { return now }

	id, s := sm.Create("op", time.Hour)
	if id == "" || s.Username != "op" {
		t.Fatalf("Create = %q, %+v", id, s)
	}
	if got, ok := sm.Get(id); !ok || got.Username != "op" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
	other, _ := sm.Create("op", time.Hour)
	if other == id {
		t.Fatal("session ids must be unique")
	}

	now = now.Add(2 * time.Hour)
	if _, ok := sm.Get(id); ok {
		t.Fatal("expired session still valid")
	}
	if n := sm.Purge(); n != 2 {
		t.Fatalf("Purge removed %d, want 2", n)
	}
	if sm.Delete(id) {
		t.Fatal("purged session deleted twice")
	}
}

func TestSessionDelete(t *testing.T) {
	sm := NewSessionManager()
	id, _ := sm.Create("op", time.Hour)
	if !sm.Delete(id) {
		t.Fatal("Delete reported missing session")
	}
	if _, ok := sm.Get(id); ok {
		t.Fatal("deleted session still valid")
	}
}

func TestPasswordHash(t *testing.T) {
	h := hashPassword("hunter2")
	if err := checkPasswordHash("hunter2", h); err != nil {
		t.Fatalf("checkPasswordHash: %v", err)
	}
	if err := checkPasswordHash("hunter3", h); err == nil {
		t.Fatal("wrong password matched")
	}
}
