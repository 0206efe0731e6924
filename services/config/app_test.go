package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchcontrol/types"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "switchcontrol.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.HTTP.Listen)
	assert.Equal(t, "periph", cfg.Hardware.Backend)
	assert.Equal(t, 20*time.Millisecond, cfg.Control.TickInterval)
	assert.Equal(t, 2*time.Second, cfg.Control.Cooldown)
	assert.Equal(t, time.Millisecond, cfg.Control.Settle)
	assert.Equal(t, 10.0, cfg.Heartbeat.Interval)
	assert.False(t, cfg.Bridge.Enabled)
	assert.Empty(t, cfg.Schedules)
}

func TestLoad_SimProfile(t *testing.T) {
	cfg, err := Load("sim", "")
	require.NoError(t, err)
	assert.Equal(t, "fake", cfg.Hardware.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched sections keep the defaults
	assert.Equal(t, ":8080", cfg.HTTP.Listen)
}

func TestLoad_UnknownProfile(t *testing.T) {
	_, err := Load("nope", "")
	assert.Error(t, err)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	p := writeFile(t, `
http:
  listen: "127.0.0.1:9000"
control:
  cooldown: 500ms
bridge:
  enabled: true
  broker: tcp://broker:1883
schedules:
  - name: morning
    spec: "0 7 * * *"
    actions:
      - channel: A1
        direction: Right
`)
	cfg, err := Load(DefaultProfile, p)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Listen)
	assert.Equal(t, 500*time.Millisecond, cfg.Control.Cooldown)
	assert.Equal(t, 20*time.Millisecond, cfg.Control.TickInterval)
	assert.True(t, cfg.Bridge.Enabled)
	assert.Equal(t, "tcp://broker:1883", cfg.Bridge.Broker)
	assert.Equal(t, "switchcontrol", cfg.Bridge.Prefix)

	require.Len(t, cfg.Schedules, 1)
	acts, err := cfg.Schedules[0].SwitchActions()
	require.NoError(t, err)
	assert.Equal(t, []types.SwitchAction{{Channel: "A1", Direction: types.DirRight}}, acts)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad yaml":      "http: [",
		"zero tick":     "control:\n  tick_interval: 0s\n",
		"no backend":    "hardware:\n  backend: \"\"\n",
		"bad schedule":  "schedules:\n  - name: x\n    spec: \"* * * * *\"\n    actions:\n      - {channel: B3, direction: Left}\n",
		"bad direction": "schedules:\n  - name: x\n    spec: \"* * * * *\"\n    actions:\n      - {channel: A1, direction: Sideways}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(DefaultProfile, writeFile(t, body))
			assert.Error(t, err)
		})
	}
}

func TestEmbeddedConfigLookup_Override(t *testing.T) {
	old := EmbeddedConfigLookup
	t.Cleanup(func() { EmbeddedConfigLookup = old })
	EmbeddedConfigLookup = func(profile string) ([]byte, bool) {
		if profile != DefaultProfile {
			return nil, false
		}
		doc := strings.Replace(DefaultYAML, `listen: ":8080"`, `listen: ":1"`, 1)
		return []byte(doc), true
	}

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, ":1", cfg.HTTP.Listen)
}
