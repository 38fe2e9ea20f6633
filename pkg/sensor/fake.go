package sensor

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ericogr/mcp9800-to-mqtt/pkg/config"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/mcp9800"
)

// FakeSensor simulates a device: the ambient temperature drifts around
// 22°C and the thresholds hold whatever was configured.
type FakeSensor struct {
	registers []mcp9800.Register
	ambient   int
	hyst      int
	limit     int
	rnd       *rand.Rand
	mu        sync.Mutex
}

func NewFakeSensor(cfg config.Config) (Sensor, error) {
	regs, err := buildRegisters(cfg)
	if err != nil {
		return nil, err
	}
	f := &FakeSensor{
		registers: regs,
		ambient:   22 * 16,
		hyst:      75 * 16,
		limit:     80 * 16,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	// thresholds are stored with 0.5°C steps, as on the device
	if cfg.Device.HysteresisC != nil {
		f.hyst = celsiusToC2(*cfg.Device.HysteresisC) * 8
	}
	if cfg.Device.LimitC != nil {
		f.limit = celsiusToC2(*cfg.Device.LimitC) * 8
	}
	return f, nil
}

func (f *FakeSensor) Read() ([]Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	// random walk of at most 1/4 °C, kept within 15..30°C
	f.ambient += f.rnd.Intn(9) - 4
	if f.ambient < 15*16 {
		f.ambient = 15 * 16
	}
	if f.ambient > 30*16 {
		f.ambient = 30 * 16
	}
	out := make([]Reading, 0, len(f.registers))
	for _, reg := range f.registers {
		var c16 int
		switch reg {
		case mcp9800.Hysteresis:
			c16 = f.hyst
		case mcp9800.LimitSet:
			c16 = f.limit
		default:
			c16 = f.ambient
		}
		out = append(out, NewReading(reg, c16, now))
	}
	return out, nil
}

func (f *FakeSensor) Close() error { return nil }
