package main

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHubStreamsAnnouncements(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(func() Status { return Status{Behavior: "idle", CustomerCount: 2} }, testLogger())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first struct {
		Type string `json:"type"`
		Data Status `json:"data"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if first.Type != "status" || first.Data.CustomerCount != 2 {
		t.Fatalf("first message = %+v", first)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("clients = %d", hub.ClientCount())
	}

	if err := hub.Announce(Announcement{Kind: AnnounceWelcome, Count: 3, At: time.Unix(1000, 0)}); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read announcement: %v", err)
	}
	var a Announcement
	if err := json.Unmarshal(msg.Data, &a); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "announcement" || a.Kind != AnnounceWelcome || a.Count != 3 {
		t.Fatalf("announcement = %s %+v", msg.Type, a)
	}
}

func TestHubAnnounceWithoutClients(t *testing.T) {
	hub := NewHub(nil, testLogger())
	for i := 0; i < 100; i++ {
		if err := hub.Announce(Announcement{Kind: AnnounceWarn}); err != nil {
			t.Fatalf("Announce: %v", err)
		}
	}
}
