// Package scheduler fires configured switch actions on cron schedules.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"switchcontrol/errcode"
	"switchcontrol/types"
	"switchcontrol/x/logx"
)

// Action is the YAML form of a switch action.
type Action struct {
	Channel   string `yaml:"channel"`
	Direction string `yaml:"direction"`
	Time      int    `yaml:"time"`
	IP        string `yaml:"ip"`
}

func (a Action) SwitchAction() types.SwitchAction {
	sa := types.SwitchAction{
		Channel:    types.ChannelID(a.Channel),
		Direction:  types.ParseDirection(a.Direction),
		Address:    a.IP,
		CustomTime: a.Time,
	}
	if sa.Direction == types.DirCustom && sa.CustomTime == 0 {
		sa.CustomTime = types.DefaultCustomTimeUs
	}
	return sa
}

// Entry is one named schedule. Spec is a five-field cron expression, a
// descriptor such as "@hourly", or a Go duration ("90s") for a fixed period.
type Entry struct {
	Name    string   `yaml:"name"`
	Spec    string   `yaml:"spec"`
	Actions []Action `yaml:"actions"`
}

// SwitchActions converts and validates the actions of e.
func (e Entry) SwitchActions() ([]types.SwitchAction, error) {
	out := make([]types.SwitchAction, 0, len(e.Actions))
	for i, a := range e.Actions {
		sa := a.SwitchAction()
		if err := sa.Validate(); err != nil {
			return nil, fmt.Errorf("actions[%d]: %w", i, err)
		}
		if !types.HasCapability(sa.Channel, types.ChannelServo) {
			return nil, fmt.Errorf("actions[%d]: %w", i,
				errcode.New(errcode.NoCapability, "schedule.validate", string(sa.Channel)+" cannot drive a servo"))
		}
		out = append(out, sa)
	}
	return out, nil
}

func (e Entry) Validate() error {
	if e.Name == "" {
		return errcode.New(errcode.InvalidParams, "schedule.validate", "name is required")
	}
	if len(e.Actions) == 0 {
		return errcode.New(errcode.InvalidParams, "schedule.validate", e.Name+": no actions")
	}
	if _, err := parseSchedule(e.Spec); err != nil {
		return errcode.Wrap(errcode.InvalidParams, "schedule.validate", err)
	}
	_, err := e.SwitchActions()
	return err
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func parseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, errors.New("empty schedule")
	}
	if s, err := parser.Parse(spec); err == nil {
		return s, nil
	}
	d, err := time.ParseDuration(spec)
	if err != nil {
		return nil, fmt.Errorf("not a cron expression or duration: %q", spec)
	}
	if d <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", spec)
	}
	return cron.Every(d), nil
}

// Requester receives the actions of a firing schedule.
type Requester interface {
	RequestSwitchChange(actions []types.SwitchAction)
}

type Scheduler struct {
	cron   *cron.Cron
	target Requester
	log    *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	started bool
}

func New(target Requester, log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser)),
		target:  target,
		log:     logx.OrDiscard(log).With("component", "scheduler"),
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers e. Names are unique.
func (s *Scheduler) Add(e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	sched, _ := parseSchedule(e.Spec)
	actions, _ := e.SwitchActions()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[e.Name]; dup {
		return errcode.New(errcode.Conflict, "schedule.add", fmt.Sprintf("duplicate schedule %q", e.Name))
	}
	name := e.Name
	s.entries[name] = s.cron.Schedule(sched, cron.FuncJob(func() {
		s.log.Info("schedule fired", "name", name, "actions", len(actions))
		s.target.RequestSwitchChange(actions)
	}))
	s.log.Info("schedule added", "name", name, "spec", e.Spec)
	return nil
}

// Remove drops the named schedule; unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Job returns the runnable job of the named schedule.
func (s *Scheduler) Job(name string) (cron.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[name]
	if !ok {
		return nil, false
	}
	e := s.cron.Entry(id)
	return e.Job, e.Valid()
}

// Next reports the next activation of the named schedule.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.cron.Start()
	s.started = true
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}
