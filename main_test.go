package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ericogr/mcp9800-to-mqtt/pkg/config"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/sensor"
)

func TestComputeSensorInterval(t *testing.T) {
	// no outputs -> global interval
	cfg := config.Config{IntervalMs: 1000, Device: config.DeviceConfig{Resolution: 9}}
	if got := computeSensorInterval(cfg); got != 1000 {
		t.Fatalf("global interval: got %d want 1000", got)
	}

	// fastest output wins
	cfg.Outputs = []config.OutputConfig{{Type: "console", IntervalMs: 500}, {Type: "mqtt", IntervalMs: 5000}}
	if got := computeSensorInterval(cfg); got != 500 {
		t.Fatalf("fastest output: got %d want 500", got)
	}

	// never faster than a 12-bit conversion
	cfg.Device.Resolution = 12
	cfg.Outputs = []config.OutputConfig{{Type: "http", IntervalMs: 100}}
	if got := computeSensorInterval(cfg); got != 240 {
		t.Fatalf("12-bit floor: got %d want 240", got)
	}

	// 9-bit conversion allows 30ms
	cfg.Device.Resolution = 9
	cfg.Outputs = []config.OutputConfig{{Type: "http", IntervalMs: 10}}
	if got := computeSensorInterval(cfg); got != 30 {
		t.Fatalf("9-bit floor: got %d want 30", got)
	}
}

func TestInitOutputsSetsInterval(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}}}
	entries, err := initOutputs(&cfg, 123)
	if err != nil {
		t.Fatalf("initOutputs: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries len: %d", len(entries))
	}
	if cfg.Outputs[0].IntervalMs != 123 {
		t.Fatalf("cfg output interval not set, got %d", cfg.Outputs[0].IntervalMs)
	}
	if entries[0].IntervalMs != 123 {
		t.Fatalf("entry interval not set, got %d", entries[0].IntervalMs)
	}
}

func TestInitOutputsErrors(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}, {Type: "influx"}}}
	if _, err := initOutputs(&cfg, 1000); err == nil {
		t.Fatal("expected error for influx output without settings")
	}
	cfg = config.Config{Outputs: []config.OutputConfig{{Type: "kafka"}}}
	if _, err := initOutputs(&cfg, 1000); err == nil {
		t.Fatal("expected error for unknown output")
	}
}

func TestNewSensorSimulation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SensorType = config.SensorSimulation
	s, err := newSensor(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := newSensor(config.Config{SensorType: "mock"}); err == nil {
		t.Fatal("expected error for unknown sensor type")
	}
}

type failingSensor struct{ calls int }

func (f *failingSensor) Read() ([]sensor.Reading, error) {
	f.calls++
	if f.calls > 1 {
		return nil, errors.New("nack")
	}
	return []sensor.Reading{{Register: "ambient", Raw: 400}}, nil
}

func (f *failingSensor) Close() error { return nil }

func TestReadOnceKeepsLastGoodReading(t *testing.T) {
	var store latest
	s := &failingSensor{}
	readOnce(s, &store)
	readOnce(s, &store)
	got := store.get()
	if len(got) != 1 || got[0].Raw != 400 {
		t.Fatalf("latest = %+v", got)
	}
}

type recordingOutput struct {
	published chan []sensor.Reading
}

func (r *recordingOutput) Publish(readings []sensor.Reading) error {
	select {
	case r.published <- readings:
	default:
	}
	return nil
}

func (r *recordingOutput) Close() error { return nil }

func TestPublishLoop(t *testing.T) {
	var store latest
	store.set([]sensor.Reading{{Register: "ambient", Raw: 400}})
	out := &recordingOutput{published: make(chan []sensor.Reading, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		publishLoop(ctx, outputEntry{Type: "test", IntervalMs: 10, Out: out}, &store)
		close(done)
	}()
	select {
	case got := <-out.published:
		if len(got) != 1 || got[0].Raw != 400 {
			t.Fatalf("published %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
	}
	cancel()
	<-done
}
