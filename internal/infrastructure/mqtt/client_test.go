package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/flowlab-core/internal/infrastructure/config"
)

// These tests run without a broker. Broker round-trips live in
// integration_test.go behind the integration build tag.

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "flowlab-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// disconnected returns a Client that never dialled a broker.
func disconnected() *Client {
	return &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	if disconnected().IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	err := disconnected().HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := disconnected().HealthCheck(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{name: "empty topic", topic: "", payload: []byte("x"), qos: 1, wantErr: ErrInvalidTopic},
		{name: "invalid qos", topic: "flowlab/x", payload: []byte("x"), qos: 3, wantErr: ErrInvalidQoS},
		{name: "payload too large", topic: "flowlab/x", payload: make([]byte, maxPayloadSize+1), qos: 1, wantErr: ErrPublishFailed},
		{name: "not connected", topic: "flowlab/x", payload: []byte("x"), qos: 1, wantErr: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := disconnected().Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishJSON_EncodeError(t *testing.T) {
	err := disconnected().PublishJSON("flowlab/x", make(chan int))
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{name: "empty topic", topic: "", qos: 1, handler: noop, wantErr: ErrInvalidTopic},
		{name: "invalid qos", topic: "flowlab/x", qos: 5, handler: noop, wantErr: ErrInvalidQoS},
		{name: "nil handler", topic: "flowlab/x", qos: 1, handler: nil, wantErr: ErrSubscribeFailed},
		{name: "not connected", topic: "flowlab/x", qos: 1, handler: noop, wantErr: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := disconnected()
			err := c.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
			if c.SubscriptionCount() != 0 {
				t.Errorf("SubscriptionCount() = %d after failed subscribe, want 0", c.SubscriptionCount())
			}
		})
	}
}

func TestUnsubscribe_Validation(t *testing.T) {
	c := disconnected()
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Unsubscribe("flowlab/x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
	if c.HasSubscription("flowlab/x") {
		t.Error("HasSubscription() = true, want false")
	}
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestDispatch_RecoversPanic(t *testing.T) {
	c := disconnected()
	logger := &mockLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "flowlab/x", nil)

	if len(logger.errors) != 1 {
		t.Fatalf("logged %d errors, want 1", len(logger.errors))
	}
}

func TestDispatch_LogsHandlerError(t *testing.T) {
	c := disconnected()
	logger := &mockLogger{}
	c.SetLogger(logger)

	var got []byte
	c.dispatch(func(_ string, p []byte) error {
		got = p
		return errors.New("bad reading")
	}, "flowlab/state/modbus/t1", []byte("42"))

	if string(got) != "42" {
		t.Errorf("handler payload = %q, want 42", got)
	}
	if len(logger.warns) != 1 {
		t.Errorf("logged %d warnings, want 1", len(logger.warns))
	}
}

func TestDispatch_NoLogger(t *testing.T) {
	c := disconnected()
	c.dispatch(func(string, []byte) error { panic("boom") }, "flowlab/x", nil)
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DeviceCommand", topics.DeviceCommand("modbus", "pump-a"), "flowlab/command/modbus/pump-a"},
		{"DeviceState", topics.DeviceState("modbus", "thermo-1"), "flowlab/state/modbus/thermo-1"},
		{"ExperimentControl", topics.ExperimentControl("exp-1"), "flowlab/experiment/exp-1/control"},
		{"ExperimentStatus", topics.ExperimentStatus("exp-1"), "flowlab/experiment/exp-1/status"},
		{"SystemStatus", topics.SystemStatus(), "flowlab/system/status"},
		{"AllDeviceStates", topics.AllDeviceStates(), "flowlab/state/+/+"},
		{"AllExperimentControls", topics.AllExperimentControls(), "flowlab/experiment/+/control"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestParseDeviceTopic(t *testing.T) {
	tests := []struct {
		topic        string
		wantCategory string
		wantProtocol string
		wantDevice   string
		wantOK       bool
	}{
		{"flowlab/state/modbus/thermo-1", "state", "modbus", "thermo-1", true},
		{"flowlab/command/serial/pump-a", "command", "serial", "pump-a", true},
		{"flowlab/experiment/x/control", "", "", "", false},
		{"otherapp/state/knx/a", "", "", "", false},
		{"flowlab/state/modbus", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			category, protocol, device, ok := ParseDeviceTopic(tt.topic)
			if ok != tt.wantOK || category != tt.wantCategory || protocol != tt.wantProtocol || device != tt.wantDevice {
				t.Errorf("ParseDeviceTopic(%q) = (%q, %q, %q, %v), want (%q, %q, %q, %v)",
					tt.topic, category, protocol, device, ok,
					tt.wantCategory, tt.wantProtocol, tt.wantDevice, tt.wantOK)
			}
		})
	}
}

func TestParseControlMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{name: "pause", payload: `{"action":"pause"}`, want: ActionPause},
		{name: "resume", payload: `{"action":"resume"}`, want: ActionResume},
		{name: "cancel", payload: `{"action":"cancel"}`, want: ActionCancel},
		{name: "unknown action", payload: `{"action":"explode"}`, wantErr: true},
		{name: "not json", payload: `pause`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseControlMessage([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Errorf("ParseControlMessage() error = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseControlMessage() error = %v", err)
			}
			if msg.Action != tt.want {
				t.Errorf("Action = %q, want %q", msg.Action, tt.want)
			}
		})
	}
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantStatus string
		wantReason string
	}{
		{"online", buildOnlinePayload("core-1"), "online", ""},
		{"offline", buildOfflinePayload("core-1"), "offline", "graceful_shutdown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p statusPayload
			if err := json.Unmarshal([]byte(tt.payload), &p); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}
			if p.Status != tt.wantStatus || p.ClientID != "core-1" || p.Reason != tt.wantReason {
				t.Errorf("payload = %+v", p)
			}
			if p.Timestamp == "" {
				t.Error("payload missing timestamp")
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "lab"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || !strings.HasPrefix(opts.Servers[0].String(), "ssl://127.0.0.1:1883") {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "flowlab-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "lab" {
		t.Errorf("Username = %q", opts.Username)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig = nil with TLS enabled")
	}
}
