package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"switchcontrol/services/scheduler"
	"switchcontrol/x/logx"
)

// DefaultProfile names the embedded document Load starts from.
const DefaultProfile = "default"

// DefaultYAML is the built-in application config.
const DefaultYAML = `log:
  level: info
  format: text
  output: stderr
http:
  listen: ":8080"
storage:
  path: switchcontrol.db
hardware:
  backend: periph
  max_pin: 39
  button_pull: up
  i2c:
    i2c0: ""
control:
  tick_interval: 20ms
  cooldown: 2s
  settle: 1ms
bridge:
  enabled: false
  broker: tcp://localhost:1883
  client_id: switchcontrol
  prefix: switchcontrol
heartbeat:
  interval: 10
  watchdog: false
schedules: []
`

// simYAML runs the whole stack on the in-memory board.
const simYAML = `hardware:
  backend: fake
storage:
  path: switchcontrol-sim.db
log:
  level: debug
`

var embeddedConfigs = map[string][]byte{
	DefaultProfile: []byte(DefaultYAML),
	"sim":          []byte(simYAML),
}

// EmbeddedConfigLookup allows overriding how built-in profiles are resolved.
var EmbeddedConfigLookup = func(profile string) ([]byte, bool) {
	b, ok := embeddedConfigs[profile]
	return b, ok
}

type App struct {
	Log       logx.Config       `yaml:"log"`
	HTTP      HTTP              `yaml:"http"`
	Storage   Storage           `yaml:"storage"`
	Hardware  Hardware          `yaml:"hardware"`
	Control   Control           `yaml:"control"`
	Bridge    Bridge            `yaml:"bridge"`
	Heartbeat Heartbeat         `yaml:"heartbeat"`
	Schedules []scheduler.Entry `yaml:"schedules"`
}

type HTTP struct {
	Listen string `yaml:"listen"`
}

type Storage struct {
	Path string `yaml:"path"`
}

type Hardware struct {
	Backend    string            `yaml:"backend"`
	MaxPin     int               `yaml:"max_pin"`
	ButtonPull string            `yaml:"button_pull"`
	I2C        map[string]string `yaml:"i2c"` // bus id -> platform bus name
}

type Control struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	Cooldown     time.Duration `yaml:"cooldown"`
	Settle       time.Duration `yaml:"settle"`
}

// Bridge is published on config/bridge.
type Bridge struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Broker   string `yaml:"broker" json:"broker"`
	ClientID string `yaml:"client_id" json:"client_id"`
	Prefix   string `yaml:"prefix" json:"prefix"`
	Username string `yaml:"username" json:"username,omitempty"`
	Password string `yaml:"password" json:"password,omitempty"`
}

// Heartbeat is published on config/heartbeat. Interval is in seconds.
type Heartbeat struct {
	Interval float64 `yaml:"interval" json:"interval"`
	Watchdog bool    `yaml:"watchdog" json:"watchdog"`
}

// Load decodes the embedded profile and then the file at path over it.
// A missing file is not an error: the profile alone is used.
func Load(profile, path string) (*App, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	cfg := &App{}
	base, ok := EmbeddedConfigLookup(DefaultProfile)
	if !ok {
		return nil, errors.New("no embedded default config")
	}
	if err := yaml.Unmarshal(base, cfg); err != nil {
		return nil, fmt.Errorf("parse embedded config: %w", err)
	}
	if profile != DefaultProfile {
		raw, ok := EmbeddedConfigLookup(profile)
		if !ok {
			return nil, fmt.Errorf("unknown config profile %q", profile)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse profile %s: %w", profile, err)
		}
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *App) Validate() error {
	if a.Hardware.Backend == "" {
		return errors.New("hardware.backend is required")
	}
	if a.Storage.Path == "" {
		return errors.New("storage.path is required")
	}
	if a.Control.TickInterval <= 0 {
		return fmt.Errorf("control.tick_interval must be positive, got %s", a.Control.TickInterval)
	}
	if a.Control.Cooldown < 0 || a.Control.Settle < 0 {
		return errors.New("control durations must not be negative")
	}
	if a.Heartbeat.Interval < 0 {
		return errors.New("heartbeat.interval must not be negative")
	}
	for i, e := range a.Schedules {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("schedules[%d]: %w", i, err)
		}
	}
	return nil
}
