package control

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"switchcontrol/bus"
	"switchcontrol/services/hal"
	"switchcontrol/types"
	"switchcontrol/x/logx"
	"switchcontrol/x/timex"
)

const (
	DefaultCooldown   = 2 * time.Second
	DefaultSettle     = time.Millisecond
	DefaultTickPeriod = 20 * time.Millisecond
)

// TopicStatus carries the retained servo status snapshot.
var TopicStatus = bus.T("switch", "status")

// PressTopic is where presses of button id are announced.
func PressTopic(id types.ChannelID) bus.Topic { return bus.T("switch", "press", string(id)) }

// Publisher is the part of a bus connection the controller needs.
type Publisher interface {
	Publish(msg *bus.Message)
}

// Options tune a Controller. Zero values take the defaults.
type Options struct {
	Clock      timex.Clock
	Cooldown   time.Duration // minimum time between queued executions
	Settle     time.Duration // input settle time before a button read
	Sleep      func(time.Duration)
	ButtonPull hal.Pull
	Logger     *slog.Logger
	Metrics    *Metrics
	Bus        Publisher // optional status and press events
}

func (o *Options) withDefaults() {
	if o.Clock == nil {
		o.Clock = timex.System
	}
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.Settle <= 0 {
		o.Settle = DefaultSettle
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	o.Logger = logx.OrDiscard(o.Logger)
}

// Controller owns every live channel. One mutex serialises all structural
// changes, action execution and snapshots, and is held for a full Tick.
type Controller struct {
	mu   sync.Mutex
	opts Options
	pins *hal.Registry
	log  *slog.Logger

	servos     map[types.ChannelID]*servoChannel
	buttons    map[types.ChannelID]*buttonChannel
	servoOrder []types.ChannelID
	buttonOrd  []types.ChannelID

	lastChange time.Time
	lastStatus []types.ServoStatus
}

func New(pins *hal.Registry, opts Options) *Controller {
	opts.withDefaults()
	return &Controller{
		opts:       opts,
		pins:       pins,
		log:        opts.Logger.With("component", "control"),
		servos:     make(map[types.ChannelID]*servoChannel),
		buttons:    make(map[types.ChannelID]*buttonChannel),
		lastChange: opts.Clock.Now(),
	}
}

// -----------------------------------------------------------------------------
// Channel lifecycle
// -----------------------------------------------------------------------------

// AddNewChannel builds the channel for a validated config. Disabled, I2c and
// Invalid types are not tracked; their pin is reset to a neutral state.
func (c *Controller) AddNewChannel(cfg types.ChannelConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(cfg)
	c.afterChangeLocked()
}

// UpdateChannel atomically replaces whatever lives at cfg.Channel.
func (c *Controller) UpdateChannel(cfg types.ChannelConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(cfg.Channel)
	c.addLocked(cfg)
	c.afterChangeLocked()
}

// Close releases every channel's pin.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range slices.Concat(c.servoOrder, c.buttonOrd) {
		c.removeLocked(id)
	}
}

func (c *Controller) addLocked(cfg types.ChannelConfig) {
	log := c.log.With("channel", cfg.Channel)
	pin, ok := cfg.Pin()
	if !ok {
		log.Warn("skipping channel not in capability table")
		return
	}

	switch {
	case cfg.Type == types.ChannelServo && cfg.Servo != nil:
		p, err := c.pins.ClaimPin(string(cfg.Channel), pin, hal.FuncPWM)
		if err != nil {
			log.Error("claim servo pin failed", "pin", pin, "err", err)
			return
		}
		s, err := newServoChannel(cfg.Channel, *cfg.Servo, p, c.opts.Clock, c.log, c.opts.Metrics)
		if err != nil {
			c.pins.ReleasePin(string(cfg.Channel), pin)
			log.Error("servo init failed", "pin", pin, "err", err)
			return
		}
		c.servos[cfg.Channel] = s
		c.servoOrder = insertSorted(c.servoOrder, cfg.Channel)
		log.Info("servo channel added", "pin", pin)

	case cfg.Type == types.ChannelSmartButton && cfg.Button != nil:
		p, err := c.pins.ClaimPin(string(cfg.Channel), pin, hal.FuncGPIOInOut)
		if err != nil {
			log.Error("claim button pin failed", "pin", pin, "err", err)
			return
		}
		b, err := newButtonChannel(cfg.Channel, *cfg.Button, p, &c.opts, c.log)
		if err != nil {
			c.pins.ReleasePin(string(cfg.Channel), pin)
			log.Error("button init failed", "pin", pin, "err", err)
			return
		}
		c.buttons[cfg.Channel] = b
		c.buttonOrd = insertSorted(c.buttonOrd, cfg.Channel)
		log.Info("button channel added", "pin", pin, "actions", len(cfg.Button.ActionOnPress))

	default:
		if err := c.pins.ResetPin(pin); err != nil {
			log.Warn("reset pin failed", "pin", pin, "err", err)
		}
		log.Info("channel inactive", "type", cfg.Type)
	}
}

func (c *Controller) removeLocked(id types.ChannelID) {
	pin, _ := types.ChannelConfig{Channel: id}.Pin()
	if _, ok := c.servos[id]; ok {
		delete(c.servos, id)
		c.servoOrder = removeID(c.servoOrder, id)
		c.pins.ReleasePin(string(id), pin)
		c.opts.Metrics.forgetServo(id)
	}
	if _, ok := c.buttons[id]; ok {
		delete(c.buttons, id)
		c.buttonOrd = removeID(c.buttonOrd, id)
		c.pins.ReleasePin(string(id), pin)
	}
}

// -----------------------------------------------------------------------------
// Switch requests
// -----------------------------------------------------------------------------

// RequestSwitchChange queues validated actions on their servos. Remote
// actions and unknown channels are skipped; a non-custom action for the
// position the servo already holds is dropped.
func (c *Controller) RequestSwitchChange(actions []types.SwitchAction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestLocked(actions)
	c.afterChangeLocked()
}

func (c *Controller) requestLocked(actions []types.SwitchAction) {
	m := c.opts.Metrics
	for _, a := range actions {
		log := c.log.With("channel", a.Channel, "direction", a.Direction)
		if a.IsRemote() {
			log.Info("skipping remote switch action", "address", a.Address)
			m.skip(reasonRemote)
			continue
		}
		s, ok := c.servos[a.Channel]
		if !ok {
			log.Info("skipping change request, unknown servo output channel")
			m.skip(reasonUnknownChannel)
			continue
		}
		s.removePending()
		if a.Direction != types.DirCustom && s.dir == a.Direction {
			log.Info("skipping change request, already in position")
			m.skip(reasonAlreadyInPosition)
			continue
		}
		log.Info("queuing change request")
		s.setPending(a)
		m.request(a.Channel)
	}
}

// ForceSwitchChange executes a validated action now, bypassing the queue
// and the cooldown.
func (c *Controller) ForceSwitchChange(a types.SwitchAction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.servos[a.Channel]
	if !ok {
		c.log.Info("skipping forced change, unknown servo output channel", "channel", a.Channel)
		c.opts.Metrics.skip(reasonUnknownChannel)
		return
	}
	s.setPending(a)
	if s.executePending() {
		c.opts.Metrics.execute(a.Channel, a.Direction)
	}
	c.afterChangeLocked()
}

// -----------------------------------------------------------------------------
// Tick
// -----------------------------------------------------------------------------

// Tick runs one control cycle: poll buttons, execute at most one queued
// change outside the cooldown, then advance overdraw timers.
func (c *Controller) Tick() {
	start := time.Now()
	defer func() { c.opts.Metrics.observeTick(time.Since(start)) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	// every line switches to input first so one settle covers all reads
	for _, id := range c.buttonOrd {
		c.buttons[id].sense()
	}
	if len(c.buttonOrd) > 0 {
		c.opts.Sleep(c.opts.Settle)
	}
	for _, id := range c.buttonOrd {
		b := c.buttons[id]
		if !b.sample() {
			continue
		}
		c.log.Info("button pressed, requesting change", "channel", id)
		c.opts.Metrics.press(id)
		c.publish(PressTopic(id), slices.Clone(b.actions()), false)
		c.requestLocked(b.actions())
		c.updateButtonsLocked()
	}

	c.performNextLocked()

	for _, id := range c.servoOrder {
		c.servos[id].checkOverdraw()
	}
	c.publishStatusLocked()
}

// performNextLocked executes the first queued servo in canonical order,
// at most once per cooldown window across all channels.
func (c *Controller) performNextLocked() {
	for _, id := range c.servoOrder {
		s := c.servos[id]
		if s.pending == nil {
			continue
		}
		now := c.opts.Clock.Now()
		if now.Sub(c.lastChange) < c.opts.Cooldown {
			c.opts.Metrics.deferCooldown()
			return
		}
		c.lastChange = now
		dir := s.pending.Direction
		if s.executePending() {
			c.opts.Metrics.execute(id, dir)
			c.log.Info("executed change", "channel", id, "direction", dir, "us", s.pos)
		}
		c.updateButtonsLocked()
		return
	}
}

// Run ticks every period until ctx is done.
func (c *Controller) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	t := time.NewTicker(period)
	defer t.Stop()

	c.log.Info("control loop started", "period", period)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("control loop stopping")
			return
		case <-t.C:
			c.Tick()
		}
	}
}

// -----------------------------------------------------------------------------
// Status
// -----------------------------------------------------------------------------

// GenerateStatus snapshots every live servo in canonical order.
func (c *Controller) GenerateStatus() []types.ServoStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// MatchingStates reports each button's indicator state.
func (c *Controller) MatchingStates() map[types.ChannelID]MatchingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[types.ChannelID]MatchingState, len(c.buttons))
	for id, b := range c.buttons {
		out[id] = b.state
	}
	return out
}

func (c *Controller) statusLocked() []types.ServoStatus {
	out := make([]types.ServoStatus, 0, len(c.servoOrder))
	for _, id := range c.servoOrder {
		out = append(out, c.servos[id].status())
	}
	return out
}

func (c *Controller) afterChangeLocked() {
	c.updateButtonsLocked()
	c.publishStatusLocked()
}

func (c *Controller) updateButtonsLocked() {
	for _, b := range c.buttons {
		b.updateMatchingState(c.servos)
	}
}

// publishStatusLocked publishes a retained snapshot when it changed.
func (c *Controller) publishStatusLocked() {
	if c.opts.Bus == nil {
		return
	}
	st := c.statusLocked()
	if c.lastStatus != nil && slices.Equal(st, c.lastStatus) {
		return
	}
	c.lastStatus = st
	c.publish(TopicStatus, slices.Clone(st), true)
}

func (c *Controller) publish(topic bus.Topic, payload any, retained bool) {
	if c.opts.Bus == nil {
		return
	}
	c.opts.Bus.Publish(&bus.Message{Topic: topic, Payload: payload, Retained: retained})
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func insertSorted(ids []types.ChannelID, id types.ChannelID) []types.ChannelID {
	i, found := slices.BinarySearch(ids, id)
	if found {
		return ids
	}
	return slices.Insert(ids, i, id)
}

func removeID(ids []types.ChannelID, id types.ChannelID) []types.ChannelID {
	if i, found := slices.BinarySearch(ids, id); found {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}
