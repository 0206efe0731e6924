package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"switchcontrol/bus"
	"switchcontrol/x/logx"
	"switchcontrol/x/timex"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	TopicHeartbeat       = bus.T("heartbeat")
)

const DefaultInterval = 10 * time.Second

// Notifier sends a state string to the service manager.
type Notifier func(state string) (bool, error)

func systemdNotify(state string) (bool, error) { return daemon.SdNotify(false, state) }

type Service struct {
	log    *slog.Logger
	notify Notifier

	count    uint64
	watchdog bool
}

// New builds the service. A nil notify uses the systemd socket.
func New(log *slog.Logger, notify Notifier) *Service {
	if notify == nil {
		notify = systemdNotify
	}
	return &Service{log: logx.OrDiscard(log).With("component", "heartbeat"), notify: notify}
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(DefaultInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("heartbeat service stopping", "beats", s.count)
			return
		case t := <-tick.C:
			s.beat(conn, t)
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
			s.applyConfig(msg.Payload, tick)
		}
	}
}

func (s *Service) beat(conn *bus.Connection, t time.Time) {
	s.count++
	s.log.Info("heartbeat", "count", s.count)
	conn.Publish(conn.NewMessage(TopicHeartbeat, map[string]any{
		"count": s.count,
		"ts_ms": t.UnixMilli(),
	}, false))
	if !s.watchdog {
		return
	}
	if sent, err := s.notify(daemon.SdNotifyWatchdog); err != nil {
		s.log.Warn("watchdog notify failed", "err", err)
	} else if !sent {
		s.log.Debug("watchdog notify skipped: no service manager socket")
	}
}

func (s *Service) applyConfig(payload any, tick *time.Ticker) {
	m, ok := payload.(map[string]any)
	if !ok {
		s.log.Warn("ignoring heartbeat config", "payload", payload)
		return
	}
	if w, ok := m["watchdog"].(bool); ok {
		s.watchdog = w
	}
	if iv, ok := m["interval"].(float64); ok && iv > 0 {
		d := timex.Seconds(iv)
		tick.Reset(d)
		s.log.Info("heartbeat interval set", "interval", d, "watchdog", s.watchdog)
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
