package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/flowlab-core/internal/experiment"
	"github.com/nerrad567/flowlab-core/internal/infrastructure/logging"
	"github.com/nerrad567/flowlab-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/flowlab-core/internal/protocol"
)

const testConfig = `
lab:
  id: test-lab
database:
  path: %DB%
logging:
  level: error
  format: text
  output: stderr
execution:
  strict: true
devices:
  - name: valve
    kind: switch
  - name: pumpA
    kind: pump
  - name: faulty
    kind: broken_switch
`

// writeFixture writes content to name under dir and returns the path.
func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func setupConfig(t *testing.T) (dir, configPath string) {
	t.Helper()
	dir = t.TempDir()
	cfg := strings.ReplaceAll(testConfig, "%DB%", filepath.Join(dir, "flowlab.db"))
	return dir, writeFixture(t, dir, "config.yaml", cfg)
}

// execute runs the CLI with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "flowlab", cmd.Use)

	for _, name := range []string{"run", "validate", "runs"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	cfgFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfgFlag)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	tests := []struct {
		flag string
		def  string
	}{
		{"dry-run", "0"},
		{"strict", "true"},
		{"serve", "false"},
	}
	for _, tt := range tests {
		f := runCmd.Flags().Lookup(tt.flag)
		require.NotNil(t, f, tt.flag)
		assert.Equal(t, tt.def, f.DefValue, tt.flag)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("FLOWLAB_CONFIG", "")
	assert.Equal(t, defaultConfigPath, getConfigPath())

	t.Setenv("FLOWLAB_CONFIG", "/etc/flowlab.yaml")
	assert.Equal(t, "/etc/flowlab.yaml", getConfigPath())
}

func TestValidate(t *testing.T) {
	dir, cfgPath := setupConfig(t)

	tests := []struct {
		name     string
		protocol string
		wantOut  string
		wantErr  error
	}{
		{
			name: "valid",
			protocol: `name: priming
components:
  pumpA:
    - time: 0
      params: {rate: 1.5}
    - time: 30
      params: {rate: 0}
  valve:
    - time: 5
      params: {active: true}
`,
			wantOut: `protocol "priming" is valid`,
		},
		{
			name: "unknown device",
			protocol: `name: bad
components:
  ghost:
    - time: 0
      params: {rate: 1}
`,
			wantErr: protocol.ErrUnknownComponent,
		},
		{
			name: "out of order",
			protocol: `name: bad
components:
  pumpA:
    - time: 10
      params: {rate: 1}
    - time: 5
      params: {rate: 0}
`,
			wantErr: protocol.ErrOutOfOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFixture(t, dir, "protocol.yaml", tt.protocol)
			out, err := execute(t, "--config", cfgPath, "validate", path)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, tt.wantOut)
			assert.Contains(t, out, "procedures: 3")
			assert.Contains(t, out, "duration:   30s")
		})
	}
}

func TestValidate_BridgedDevicesNeedNoBroker(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFixture(t, dir, "config.yaml", `
lab: {id: test-lab}
database: {path: `+filepath.Join(dir, "flowlab.db")+`}
mqtt: {enabled: true}
devices:
  - {name: feed, kind: mqtt_pump, protocol: modbus}
`)
	path := writeFixture(t, dir, "protocol.yaml", `name: feed
components:
  feed:
    - time: 0
      params: {rate: 2}
`)

	out, err := execute(t, "--config", cfgPath, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, `protocol "feed" is valid`)
}

func TestRun_MissingExplicitConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "validate", "p.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_DryRunIsArchived(t *testing.T) {
	dir, cfgPath := setupConfig(t)
	path := writeFixture(t, dir, "protocol.yaml", `name: priming
components:
  pumpA:
    - time: 0
      params: {rate: 1.5}
    - time: 0.5
      params: {rate: 0}
  valve:
    - time: 0.25
      params: {active: true}
`)

	out, err := execute(t, "--config", cfgPath, "run", "--dry-run", "50", path)
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "records:  3")

	out, err = execute(t, "--config", cfgPath, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "priming")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "50x")
}

func TestRun_StrictFailure(t *testing.T) {
	dir, cfgPath := setupConfig(t)
	path := writeFixture(t, dir, "protocol.yaml", `name: faulty
components:
  faulty:
    - time: 0
      params: {active: true}
`)

	out, err := execute(t, "--config", cfgPath, "run", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
	assert.Contains(t, out, "stopped_by_failure")

	out, err = execute(t, "--config", cfgPath, "runs", "--status", "stopped_by_failure")
	require.NoError(t, err)
	assert.Contains(t, out, "faulty")

	out, err = execute(t, "--config", cfgPath, "runs", "--status", "completed")
	require.NoError(t, err)
	assert.Contains(t, out, "no runs archived")
}

func TestRun_LenientFailureCompletes(t *testing.T) {
	dir, cfgPath := setupConfig(t)
	path := writeFixture(t, dir, "protocol.yaml", `name: faulty
components:
  faulty:
    - time: 0
      params: {active: true}
`)

	out, err := execute(t, "--config", cfgPath, "run", "--strict=false", path)
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
}

func TestRuns_ShowOne(t *testing.T) {
	dir, cfgPath := setupConfig(t)
	path := writeFixture(t, dir, "protocol.yaml", `name: short
components:
  valve:
    - time: 0
      params: {active: true}
`)
	out, err := execute(t, "--config", cfgPath, "run", "--dry-run", "10", path)
	require.NoError(t, err)

	id := strings.TrimSuffix(strings.Fields(out)[1], ":")
	out, err = execute(t, "--config", cfgPath, "runs", id)
	require.NoError(t, err)

	var run struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Records []any  `json:"records"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, id, run.ID)
	assert.Equal(t, "completed", run.Status)
	assert.Len(t, run.Records, 1)
}

// ─── Control bridge ────────────────────────────────────────────────

type fakeControlBus struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	published map[string][]byte
	failSub   bool
}

func newFakeControlBus() *fakeControlBus {
	return &fakeControlBus{
		handlers:  make(map[string]mqtt.MessageHandler),
		published: make(map[string][]byte),
	}
}

func (f *fakeControlBus) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	if f.failSub {
		return mqtt.ErrNotConnected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = h
	return nil
}

func (f *fakeControlBus) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeControlBus) PublishRetained(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = payload
	return nil
}

func (f *fakeControlBus) QoS() byte { return 1 }

func (f *fakeControlBus) send(t *testing.T, topic, payload string) error {
	t.Helper()
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	require.True(t, ok, "no handler for %s", topic)
	return h(topic, []byte(payload))
}

func TestControlBridge(t *testing.T) {
	bus := newFakeControlBus()
	exp := experiment.New(&protocol.Compiled{Name: "remote"})
	bridge := newControlBridge(bus, exp, logging.Discard())
	require.NoError(t, bridge.Start())

	topic := mqtt.Topics{}.ExperimentControl(exp.ID())

	// Pausing before the run starts is ignored, not an error.
	require.NoError(t, bus.send(t, topic, `{"action":"pause"}`))
	assert.False(t, exp.Paused())

	require.NoError(t, exp.Begin(0))
	statusTopic := mqtt.Topics{}.ExperimentStatus(exp.ID())
	var st experiment.Status
	require.NoError(t, json.Unmarshal(bus.published[statusTopic], &st))
	assert.True(t, st.IsExecuting)

	require.NoError(t, bus.send(t, topic, `{"action":"pause"}`))
	assert.True(t, exp.Paused())
	require.NoError(t, bus.send(t, topic, `{"action":"resume"}`))
	assert.False(t, exp.Paused())

	err := bus.send(t, topic, `{"action":"explode"}`)
	require.ErrorIs(t, err, mqtt.ErrInvalidPayload)

	require.NoError(t, bus.send(t, topic, `{"action":"cancel"}`))
	assert.True(t, exp.Cancelled())
	require.NoError(t, json.Unmarshal(bus.published[statusTopic], &st))
	assert.True(t, st.Cancelled)

	// Resume after cancel is ignored.
	require.NoError(t, bus.send(t, topic, `{"action":"resume"}`))

	bridge.Stop()
	assert.Empty(t, bus.handlers)
}

func TestControlBridge_SubscribeFailure(t *testing.T) {
	bus := newFakeControlBus()
	bus.failSub = true
	exp := experiment.New(&protocol.Compiled{Name: "remote"})

	err := newControlBridge(bus, exp, logging.Discard()).Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, mqtt.ErrNotConnected))
}
