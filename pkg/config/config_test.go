package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseKeyIntMap(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]int
		ok   bool
	}{
		{"", map[string]int{}, true},
		{"console=1000,mqtt=5000", map[string]int{"console": 1000, "mqtt": 5000}, true},
		{" influx = 60000 , http=500", map[string]int{"influx": 60000, "http": 500}, true},
		{"bad", nil, false},
		{"mqtt=fast", nil, false},
	}
	for _, tt := range tests {
		got, err := parseKeyIntMap(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("parseKeyIntMap(%q) ok=%v err=%v", tt.in, tt.ok, err)
		}
		if tt.ok && !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("parseKeyIntMap(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseKeyStringMap(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]string
		ok   bool
	}{
		{"", map[string]string{}, true},
		{"room=kitchen,floor=1", map[string]string{"room": "kitchen", "floor": "1"}, true},
		{"room = attic", map[string]string{"room": "attic"}, true},
		{"=x", nil, false},
		{"bad", nil, false},
	}
	for _, tt := range tests {
		got, err := parseKeyStringMap(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("parseKeyStringMap(%q) ok=%v err=%v", tt.in, tt.ok, err)
		}
		if tt.ok && !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("parseKeyStringMap(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseIntOrHex(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"72", 72, true},
		{"0x48", 0x48, true},
		{"0X4d", 0x4d, true},
		{"0xzz", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, err := parseIntOrHex(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("parseIntOrHex(%q) ok=%v err=%v", tt.in, tt.ok, err)
		}
		if tt.ok && got != tt.want {
			t.Fatalf("parseIntOrHex(%q) = %d; want %d", tt.in, got, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("Load(nil) = %+v; want defaults", cfg)
	}
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	js := `{
		"i2c": {"bus": "1", "address_bits": 2},
		"device": {"resolution": 10, "fault_queue": 2},
		"interval_ms": 2000,
		"outputs": [{"type": "mqtt", "mqtt": {"server": "tcp://broker:1883", "client_id": "file"}}]
	}`
	if err := os.WriteFile(path, []byte(js), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load([]string{
		"-config", path,
		"-i2c-bus", "2",
		"-resolution", "12",
		"-limit", "30.5",
		"-alert-high",
		"-mqtt-client-id", "flag",
		"-registers", "ambient,limitset",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.I2C.Bus != "2" || cfg.I2C.AddressBits != 2 {
		t.Fatalf("i2c: %+v", cfg.I2C)
	}
	if cfg.Device.Resolution != 12 || cfg.Device.FaultQueue != 2 || !cfg.Device.AlertPolarityHigh {
		t.Fatalf("device: %+v", cfg.Device)
	}
	if cfg.Device.LimitC == nil || *cfg.Device.LimitC != 30.5 || cfg.Device.HysteresisC != nil {
		t.Fatalf("thresholds: %v %v", cfg.Device.HysteresisC, cfg.Device.LimitC)
	}
	if !reflect.DeepEqual(cfg.Registers, []string{"ambient", "limitset"}) {
		t.Fatalf("registers: %v", cfg.Registers)
	}
	if len(cfg.Outputs) != 1 || cfg.Outputs[0].MQTT == nil {
		t.Fatalf("outputs: %+v", cfg.Outputs)
	}
	if cfg.Outputs[0].MQTT.Server != "tcp://broker:1883" || cfg.Outputs[0].MQTT.ClientID != "flag" {
		t.Fatalf("mqtt: %+v", cfg.Outputs[0].MQTT)
	}
	if cfg.Outputs[0].IntervalMs != 2000 {
		t.Fatalf("output interval: %d", cfg.Outputs[0].IntervalMs)
	}
}

func TestLoadOutputs(t *testing.T) {
	cfg, err := Load([]string{
		"-outputs", "console,influx,http",
		"-interval-ms", "500",
		"-output-intervals", "influx=60000",
		"-influx-url", "http://influx:8086",
		"-influx-tags", "room=kitchen",
		"-http-listen", ":8080",
		"-i2c-address", "0x4d",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.I2C.Address != 0x4d {
		t.Fatalf("address: %#x", cfg.I2C.Address)
	}
	if len(cfg.Outputs) != 3 {
		t.Fatalf("outputs: %+v", cfg.Outputs)
	}
	if cfg.Outputs[0].IntervalMs != 500 || cfg.Outputs[1].IntervalMs != 60000 || cfg.Outputs[2].IntervalMs != 500 {
		t.Fatalf("intervals: %d %d %d", cfg.Outputs[0].IntervalMs, cfg.Outputs[1].IntervalMs, cfg.Outputs[2].IntervalMs)
	}
	in := cfg.Outputs[1].Influx
	if in == nil || in.URL != "http://influx:8086" || in.Tags["room"] != "kitchen" {
		t.Fatalf("influx: %+v", in)
	}
	if cfg.Outputs[2].HTTP == nil || cfg.Outputs[2].HTTP.Listen != ":8080" {
		t.Fatalf("http: %+v", cfg.Outputs[2].HTTP)
	}
}

func TestValidate(t *testing.T) {
	lo, hi := 30.0, 25.0
	hot, cold := 200.0, -60.0
	fixedTopic := &MQTTConfig{StateTopic: "home/mcp9800"}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"resolution", func(c *Config) { c.Device.Resolution = 13 }},
		{"fault queue", func(c *Config) { c.Device.FaultQueue = 3 }},
		{"thresholds", func(c *Config) { c.Device.HysteresisC, c.Device.LimitC = &lo, &hi }},
		{"no registers", func(c *Config) { c.Registers = nil }},
		{"unknown register", func(c *Config) { c.Registers = []string{"config"} }},
		{"sensor type", func(c *Config) { c.SensorType = "mock" }},
		{"interval", func(c *Config) { c.IntervalMs = 0 }},
		{"output", func(c *Config) { c.Outputs = []OutputConfig{{Type: "kafka"}} }},
		{"limit above range", func(c *Config) { c.Device.LimitC = &hot }},
		{"hysteresis below range", func(c *Config) { c.Device.HysteresisC = &cold }},
		{"shared state topic", func(c *Config) {
			c.Registers = []string{"ambient", "limitset"}
			c.Outputs = []OutputConfig{{Type: OutputMQTT, MQTT: fixedTopic}}
		}},
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tt.name)
		}
	}
}

func TestValidateAccepts(t *testing.T) {
	lo, hi := MinThresholdC, MaxThresholdC
	cfg := DefaultConfig()
	cfg.Device.HysteresisC, cfg.Device.LimitC = &lo, &hi
	cfg.Registers = []string{"ambient", "hysteresis"}
	cfg.Outputs = []OutputConfig{{Type: OutputMQTT, MQTT: &MQTTConfig{StateTopic: "home/mcp9800/%s"}}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("range bounds and per-register topic: %v", err)
	}
	cfg.Registers = []string{"ambient"}
	cfg.Outputs[0].MQTT.StateTopic = "home/mcp9800"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("fixed topic with one register: %v", err)
	}
}

func TestLoadRejectsOutOfRangeThresholds(t *testing.T) {
	if _, err := Load([]string{"-limit", "200", "-hysteresis", "150"}); err == nil {
		t.Fatal("expected error for thresholds above 125°C")
	}
}
