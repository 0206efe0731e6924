// Package bridge mirrors the switch status to an MQTT broker and accepts
// switch commands from it.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"switchcontrol/bus"
	"switchcontrol/errcode"
	"switchcontrol/services/control"
	"switchcontrol/types"
	"switchcontrol/x/logx"
)

var (
	topicConfigBridge = bus.T("config", "bridge")
	TopicState        = bus.T("bridge", "state")
	topicPressAny     = bus.T("switch", "press", bus.AnyOne)
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the JSON object expected on "config/bridge".
type Config struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Prefix   string `json:"prefix"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = "switchcontrol"
	}
	c.Prefix = strings.Trim(c.Prefix, "/")
	if c.Prefix == "" {
		c.Prefix = "switchcontrol"
	}
	return c
}

func (c Config) statusTopic() string        { return c.Prefix + "/status" }
func (c Config) onlineTopic() string        { return c.Prefix + "/online" }
func (c Config) commandFilter() string      { return c.Prefix + "/channel/+/set" }
func (c Config) pressTopic(id string) string { return c.Prefix + "/press/" + id }

// -----------------------------------------------------------------------------
// Link abstraction
// -----------------------------------------------------------------------------

// Link is one established broker session.
type Link interface {
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error
	Subscribe(ctx context.Context, filter string, fn func(topic string, payload []byte)) error
	// Lost delivers the error that ended the session.
	Lost() <-chan error
	Close()
}

// Dialer opens a Link for cfg.
type Dialer func(ctx context.Context, cfg Config) (Link, error)

// Commander receives validated remote actions.
type Commander interface {
	RequestSwitchChange(actions []types.SwitchAction)
	ForceSwitchChange(action types.SwitchAction)
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Options struct {
	Logger *slog.Logger
	Dial   Dialer // defaults to DialMQTT
}

type Service struct {
	conn   *bus.Connection
	target Commander
	dial   Dialer
	log    *slog.Logger

	mu     sync.Mutex
	curRun context.CancelFunc
	done   chan struct{}
}

func New(conn *bus.Connection, target Commander, opts Options) *Service {
	if opts.Dial == nil {
		opts.Dial = DialMQTT
	}
	return &Service{
		conn:   conn,
		target: target,
		dial:   opts.Dial,
		log:    logx.OrDiscard(opts.Logger).With("component", "bridge"),
	}
}

// Run blocks until ctx is cancelled. It listens for config on
// "config/bridge" and (re)configures the broker link.
func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfigBridge)
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

// stopCurrent cancels the running link and waits for it to wind down.
func (s *Service) stopCurrent() {
	s.mu.Lock()
	cancel, done := s.curRun, s.done
	s.curRun, s.done = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.stopCurrent()
	if !cfg.Enabled {
		s.log.Info("bridge disabled")
		s.publishState("idle", "disabled", nil)
		return
	}
	if cfg.Broker == "" {
		s.publishState("error", "missing_broker", nil)
		return
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.mu.Lock()
	s.curRun, s.done = cancel, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.runLink(ctx, cfg)
	}()
}

// -----------------------------------------------------------------------------
// Link supervision
// -----------------------------------------------------------------------------

const (
	retryMin = 250 * time.Millisecond
	retryMax = 5 * time.Second
)

func (s *Service) runLink(ctx context.Context, cfg Config) {
	backoff := backoffSeq(retryMin, retryMax)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		link, err := s.dial(ctx, cfg)
		if err != nil {
			delay := backoff()
			s.log.Warn("broker dial failed", "broker", cfg.Broker, "err", err, "retry_in", delay)
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.log.Info("broker link established", "broker", cfg.Broker, "prefix", cfg.Prefix)
		s.publishState("up", "link_established", nil)
		// a session that came up starts the next retry cycle from the minimum
		backoff = backoffSeq(retryMin, retryMax)
		err = s.handleLink(ctx, cfg, link)
		link.Close()
		if err == nil {
			s.publishState("idle", "stopped", nil)
			return
		}
		delay := backoff()
		s.log.Warn("broker link lost", "err", err, "retry_in", delay)
		s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
		if !sleep(ctx, delay) {
			return
		}
	}
}

type command struct {
	topic   string
	payload []byte
}

// handleLink owns the active link lifetime. It returns nil on cancellation.
func (s *Service) handleLink(ctx context.Context, cfg Config, link Link) error {
	statusSub := s.conn.Subscribe(control.TopicStatus)
	defer s.conn.Unsubscribe(statusSub)
	pressSub := s.conn.Subscribe(topicPressAny)
	defer s.conn.Unsubscribe(pressSub)

	cmds := make(chan command, 16)
	err := link.Subscribe(ctx, cfg.commandFilter(), func(topic string, payload []byte) {
		select {
		case cmds <- command{topic: topic, payload: bytes.Clone(payload)}:
		default:
			s.log.Warn("command dropped, queue full", "topic", topic)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.commandFilter(), err)
	}
	if err := link.Publish(ctx, cfg.onlineTopic(), []byte("true"), true); err != nil {
		return fmt.Errorf("publish online: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = link.Publish(context.Background(), cfg.onlineTopic(), []byte("false"), true)
			return nil
		case err := <-link.Lost():
			if err == nil {
				err = errors.New("connection closed")
			}
			return err
		case msg, ok := <-statusSub.Channel():
			if !ok {
				return errors.New("status subscription closed")
			}
			if err := s.forward(ctx, link, cfg.statusTopic(), msg.Payload, true); err != nil {
				return err
			}
		case msg, ok := <-pressSub.Channel():
			if !ok {
				return errors.New("press subscription closed")
			}
			id := msg.Topic[len(msg.Topic)-1]
			if err := s.forward(ctx, link, cfg.pressTopic(id), msg.Payload, false); err != nil {
				return err
			}
		case c := <-cmds:
			s.command(cfg, c)
		}
	}
}

func (s *Service) forward(ctx context.Context, link Link, topic string, payload any, retained bool) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("cannot encode payload", "topic", topic, "err", err)
		return nil
	}
	if err := link.Publish(ctx, topic, raw, retained); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// command applies one remote request. Custom positions are forced, the
// rest go through the cooldown queue.
func (s *Service) command(cfg Config, c command) {
	a, err := parseCommand(cfg, c.topic, c.payload)
	if err != nil {
		s.log.Warn("rejected remote command", "topic", c.topic, "err", err)
		return
	}
	s.log.Info("remote command", "channel", a.Channel, "direction", a.Direction)
	if a.Direction == types.DirCustom {
		s.target.ForceSwitchChange(a)
		return
	}
	s.target.RequestSwitchChange([]types.SwitchAction{a})
}

// parseCommand decodes "<prefix>/channel/<id>/set". The payload is either
// a bare direction token or a SwitchAction object.
func parseCommand(cfg Config, topic string, payload []byte) (types.SwitchAction, error) {
	const op = "bridge.command"
	rest, ok := strings.CutPrefix(topic, cfg.Prefix+"/channel/")
	id, ok2 := strings.CutSuffix(rest, "/set")
	if !ok || !ok2 || id == "" || strings.Contains(id, "/") {
		return types.SwitchAction{}, errcode.New(errcode.InvalidParams, op, "unexpected topic "+topic)
	}

	var a types.SwitchAction
	body := bytes.TrimSpace(payload)
	if len(body) > 0 && body[0] == '{' {
		if err := json.Unmarshal(body, &a); err != nil {
			return a, errcode.Wrap(errcode.InvalidPayload, op, err)
		}
		if a.Channel == "" {
			a.Channel = types.ChannelID(id)
		}
		if string(a.Channel) != id {
			return a, errcode.New(errcode.InvalidParams, op, fmt.Sprintf("payload channel %s on topic for %s", a.Channel, id))
		}
	} else {
		a = types.SwitchAction{Channel: types.ChannelID(id), Direction: types.ParseDirection(string(body))}
		if a.Direction == types.DirCustom {
			a.CustomTime = types.DefaultCustomTimeUs
		}
	}
	return a, a.Validate()
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (Config, error) {
	var cfg Config
	switch v := p.(type) {
	case []byte:
		if err := json.Unmarshal(v, &cfg); err != nil {
			return cfg, err
		}
	case string:
		if err := json.Unmarshal([]byte(v), &cfg); err != nil {
			return cfg, err
		}
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case Config:
		cfg = v
	default:
		return cfg, fmt.Errorf("unsupported config payload type: %T", p)
	}
	return cfg, nil
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "degraded", "error", "idle"
		"status": status, // short machine string
		"ts_ms":  time.Now().UnixMilli(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(TopicState, payload, true))
}

func backoffSeq(lo, hi time.Duration) func() time.Duration {
	if lo <= 0 {
		lo = 100 * time.Millisecond
	}
	hi = max(hi, lo)
	cur := lo
	return func() time.Duration {
		d := cur
		cur = min(cur*2, hi)
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
