package config

import (
	"context"
	"testing"
	"time"

	"switchcontrol/bus"
)

func TestService_PublishesSectionsRetained(t *testing.T) {
	app, err := Load(DefaultProfile, "")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	app.Heartbeat.Interval = 3
	app.Bridge.Prefix = "plant"

	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	svc := NewService(app, nil)
	svc.Start(context.Background(), conn)

	// Retained messages must reach a late subscriber.
	time.Sleep(20 * time.Millisecond)
	sub := conn.Subscribe(bus.T(configPrefix, "#"))

	got := map[string]any{}
	deadline := time.After(500 * time.Millisecond)
	for len(got) < 2 {
		select {
		case m := <-sub.Channel():
			if len(m.Topic) != 2 || m.Topic[0] != configPrefix {
				t.Fatalf("unexpected topic: %v", m.Topic)
			}
			if !m.Retained {
				t.Fatalf("%v not retained", m.Topic)
			}
			got[m.Topic[1]] = m.Payload
		case <-deadline:
			t.Fatalf("expected 2 sections, got %v", got)
		}
	}

	hb, ok := got["heartbeat"].(map[string]any)
	if !ok {
		t.Fatalf("heartbeat payload = %#v, want object", got["heartbeat"])
	}
	if v, ok := hb["interval"].(float64); !ok || v != 3 {
		t.Fatalf("heartbeat.interval = %#v, want 3", hb["interval"])
	}

	br, ok := got["bridge"].(map[string]any)
	if !ok {
		t.Fatalf("bridge payload = %#v, want object", got["bridge"])
	}
	if v, _ := br["prefix"].(string); v != "plant" {
		t.Fatalf("bridge.prefix = %#v, want plant", br["prefix"])
	}
	if _, present := br["password"]; present {
		t.Fatal("empty password should be omitted")
	}
}

func TestService_CancelledContextPublishesNothing(t *testing.T) {
	app, err := Load(DefaultProfile, "")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	b := bus.NewBus(4)
	conn := b.NewConnection("test-config")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewService(app, nil).Start(ctx, conn)
	time.Sleep(20 * time.Millisecond)

	sub := conn.Subscribe(bus.T(configPrefix, "#"))
	select {
	case m := <-sub.Channel():
		t.Fatalf("unexpected message on %v", m.Topic)
	case <-time.After(30 * time.Millisecond):
	}
}
