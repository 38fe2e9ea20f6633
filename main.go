package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ericogr/mcp9800-to-mqtt/pkg/config"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/mcp9800"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/output"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/output/console"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/output/httpstatus"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/output/influx"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/output/mqtt"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/sensor"
)

type outputEntry struct {
	Type       string
	IntervalMs int
	Out        output.Output
}

// latest holds the most recent successful sensor read.
type latest struct {
	mu       sync.Mutex
	readings []sensor.Reading
}

func (l *latest) set(r []sensor.Reading) {
	l.mu.Lock()
	l.readings = r
	l.mu.Unlock()
}

func (l *latest) get() []sensor.Reading {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readings
}

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatal("config", "err", err)
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal("log level", "err", err)
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	s, err := newSensor(cfg)
	if err != nil {
		log.Fatal("sensor init", "err", err)
	}
	defer s.Close()
	log.Info("sensor ready", "type", cfg.SensorType, "registers", cfg.Registers)

	entries, err := initOutputs(&cfg, cfg.IntervalMs)
	if err != nil {
		log.Fatal("outputs init", "err", err)
	}
	defer func() {
		for _, e := range entries {
			if err := e.Out.Close(); err != nil {
				log.Warn("output close", "type", e.Type, "err", err)
			}
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store latest
	sensorInterval := time.Duration(computeSensorInterval(cfg)) * time.Millisecond
	log.Debug("polling", "interval", sensorInterval)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poll(ctx, s, sensorInterval, &store)
	}()
	for _, e := range entries {
		wg.Add(1)
		go func(e outputEntry) {
			defer wg.Done()
			publishLoop(ctx, e, &store)
		}(e)
	}
	wg.Wait()
	log.Info("shutting down")
}

func newSensor(cfg config.Config) (sensor.Sensor, error) {
	switch cfg.SensorType {
	case config.SensorSimulation:
		return sensor.NewFakeSensor(cfg)
	case config.SensorReal:
		return sensor.NewMCP9800Sensor(cfg)
	}
	return nil, fmt.Errorf("unknown sensor type %q", cfg.SensorType)
}

// readOnce reads the sensor and stores the result. Failed reads keep the
// previous readings.
func readOnce(s sensor.Sensor, store *latest) {
	readings, err := s.Read()
	if err != nil {
		log.Warn("sensor read", "err", err)
		return
	}
	store.set(readings)
}

func poll(ctx context.Context, s sensor.Sensor, interval time.Duration, store *latest) {
	readOnce(s, store)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			readOnce(s, store)
		}
	}
}

func publishLoop(ctx context.Context, e outputEntry, store *latest) {
	ticker := time.NewTicker(time.Duration(e.IntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			readings := store.get()
			if len(readings) == 0 {
				continue
			}
			if err := e.Out.Publish(readings); err != nil {
				log.Error("publish", "type", e.Type, "err", err)
			}
		}
	}
}

// computeSensorInterval returns the sensor polling interval in ms: as fast
// as the fastest output, but never faster than one conversion.
func computeSensorInterval(cfg config.Config) int {
	interval := cfg.IntervalMs
	for _, o := range cfg.Outputs {
		if o.IntervalMs > 0 && (interval <= 0 || o.IntervalMs < interval) {
			interval = o.IntervalMs
		}
	}
	conv := int(mcp9800.ConversionTime(cfg.Device.Resolution) / time.Millisecond)
	if interval < conv {
		interval = conv
	}
	return interval
}

// initOutputs creates every configured output. Outputs without an interval
// get defaultInterval, written back into cfg.
func initOutputs(cfg *config.Config, defaultInterval int) ([]outputEntry, error) {
	entries := make([]outputEntry, 0, len(cfg.Outputs))
	for i := range cfg.Outputs {
		o := &cfg.Outputs[i]
		if o.IntervalMs <= 0 {
			o.IntervalMs = defaultInterval
		}
		out, err := newOutput(*o, cfg.Registers)
		if err != nil {
			for _, e := range entries {
				_ = e.Out.Close()
			}
			return nil, fmt.Errorf("output %s: %w", o.Type, err)
		}
		entries = append(entries, outputEntry{Type: o.Type, IntervalMs: o.IntervalMs, Out: out})
	}
	return entries, nil
}

func newOutput(o config.OutputConfig, registers []string) (output.Output, error) {
	switch o.Type {
	case config.OutputConsole:
		return console.NewConsole(), nil
	case config.OutputMQTT:
		var mc config.MQTTConfig
		if o.MQTT != nil {
			mc = *o.MQTT
		}
		return mqtt.NewMQTT(mc, registers)
	case config.OutputInflux:
		if o.Influx == nil {
			return nil, fmt.Errorf("missing influx settings")
		}
		return influx.NewInflux(*o.Influx)
	case config.OutputHTTP:
		var hc config.HTTPConfig
		if o.HTTP != nil {
			hc = *o.HTTP
		}
		return httpstatus.NewHTTP(hc)
	}
	return nil, fmt.Errorf("unknown output type %q", o.Type)
}
