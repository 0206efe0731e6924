package heartbeat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"switchcontrol/bus"
)

type fakeNotifier struct {
	mu     sync.Mutex
	states []string
	err    error
}

func (f *fakeNotifier) notify(state string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
	return f.err == nil, f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}

func waitBeat(t *testing.T, sub *bus.Subscription) map[string]any {
	t.Helper()
	select {
	case m := <-sub.Channel():
		p, ok := m.Payload.(map[string]any)
		if !ok {
			t.Fatalf("heartbeat payload %T", m.Payload)
		}
		return p
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for heartbeat")
	}
	return nil
}

func TestHeartbeat_IntervalFromConfigAndWatchdog(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("test")
	beats := conn.Subscribe(TopicHeartbeat)

	conn.Publish(conn.NewMessage(topicConfigHeartbeat, map[string]any{
		"interval": 0.02,
		"watchdog": true,
	}, true))

	fn := &fakeNotifier{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := New(nil, fn.notify).Start(ctx, conn); err != nil {
		t.Fatalf("start: %v", err)
	}

	first := waitBeat(t, beats)
	second := waitBeat(t, beats)
	if first["count"].(uint64) != 1 || second["count"].(uint64) != 2 {
		t.Fatalf("counts %v, %v", first["count"], second["count"])
	}
	if _, ok := first["ts_ms"].(int64); !ok {
		t.Fatalf("ts_ms missing: %#v", first)
	}

	deadline := time.Now().Add(time.Second)
	for fn.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	fn.mu.Lock()
	defer fn.mu.Unlock()
	if len(fn.states) < 2 {
		t.Fatalf("watchdog notified %d times", len(fn.states))
	}
	for _, s := range fn.states {
		if s != daemon.SdNotifyWatchdog {
			t.Fatalf("unexpected notify state %q", s)
		}
	}
}

func TestHeartbeat_WatchdogOffAndNotifyErrors(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("test")
	beats := conn.Subscribe(TopicHeartbeat)
	conn.Publish(conn.NewMessage(topicConfigHeartbeat, map[string]any{"interval": 0.01}, true))

	fn := &fakeNotifier{err: errors.New("socket gone")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = New(nil, fn.notify).Start(ctx, conn)

	waitBeat(t, beats)
	waitBeat(t, beats)
	if n := fn.count(); n != 0 {
		t.Fatalf("watchdog disabled but notified %d times", n)
	}

	// enabling with a failing notifier keeps the loop alive
	conn.Publish(conn.NewMessage(topicConfigHeartbeat, map[string]any{"interval": 0.01, "watchdog": true}, true))
	waitBeat(t, beats)
	waitBeat(t, beats)
	waitBeat(t, beats)
	if fn.count() == 0 {
		t.Fatal("expected notify attempts after enabling watchdog")
	}
}

func TestHeartbeat_StopsOnCancel(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("test")
	beats := conn.Subscribe(TopicHeartbeat)
	conn.Publish(conn.NewMessage(topicConfigHeartbeat, map[string]any{"interval": 0.01}, true))

	ctx, cancel := context.WithCancel(context.Background())
	_ = New(nil, func(string) (bool, error) { return false, nil }).Start(ctx, conn)
	waitBeat(t, beats)
	cancel()
	time.Sleep(30 * time.Millisecond)

	// drain anything already queued, then expect silence
	for len(beats.Channel()) > 0 {
		<-beats.Channel()
	}
	select {
	case m := <-beats.Channel():
		t.Fatalf("heartbeat after cancel: %#v", m.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}
