package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/mcp9800-to-mqtt/pkg/config"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/mcp9800"
	"periph.io/x/conn/v3/physic"
)

// ParseRegister maps a register name to its selector.
func ParseRegister(name string) (mcp9800.Register, error) {
	for _, r := range []mcp9800.Register{mcp9800.Ambient, mcp9800.Hysteresis, mcp9800.LimitSet} {
		if r.String() == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown register %q", name)
}

// buildRegisters resolves the configured register names, ambient when none
// are configured.
func buildRegisters(cfg config.Config) ([]mcp9800.Register, error) {
	if len(cfg.Registers) == 0 {
		return []mcp9800.Register{mcp9800.Ambient}, nil
	}
	regs := make([]mcp9800.Register, 0, len(cfg.Registers))
	for _, name := range cfg.Registers {
		r, err := ParseRegister(name)
		if err != nil {
			return nil, err
		}
		regs = append(regs, r)
	}
	return regs, nil
}

// deviceConfig converts the config file view of the config register.
func deviceConfig(d config.DeviceConfig) mcp9800.Config {
	return mcp9800.Config{
		Resolution:        d.Resolution,
		FaultQueue:        d.FaultQueue,
		AlertPolarityHigh: d.AlertPolarityHigh,
		InterruptMode:     d.InterruptMode,
	}
}

// celsiusToC2 converts degrees to the threshold register unit, truncating
// toward zero like the device does.
func celsiusToC2(c float64) int {
	return int(c * 2)
}

func celsiusToTemperature(c float64) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(c*float64(physic.Kelvin))
}

// NewReading derives every unit from a raw °C * 16 value.
func NewReading(reg mcp9800.Register, c16 int, ts time.Time) Reading {
	f10 := mcp9800.C16ToF10(c16)
	return Reading{
		Register:   reg.String(),
		Raw:        c16,
		F10:        f10,
		Celsius:    float64(c16) / 16,
		Fahrenheit: float64(f10) / 10,
		Timestamp:  ts,
	}
}
