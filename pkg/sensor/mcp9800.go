package sensor

import (
	"fmt"
	"io"
	"time"

	"github.com/ericogr/mcp9800-to-mqtt/pkg/config"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/mcp9800"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
)

type MCP9800Sensor struct {
	dev       *mcp9800.Dev
	bus       io.Closer
	registers []mcp9800.Register
}

func NewMCP9800Sensor(cfg config.Config) (Sensor, error) {
	if err := mcp9800.Begin(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(cfg.I2C.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	s, err := newMCP9800Sensor(bus, cfg)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	s.bus = bus
	return s, nil
}

func newMCP9800Sensor(bus i2c.Bus, cfg config.Config) (*MCP9800Sensor, error) {
	regs, err := buildRegisters(cfg)
	if err != nil {
		return nil, err
	}
	var dev *mcp9800.Dev
	if cfg.I2C.Address != 0 {
		dev = mcp9800.NewAddr(bus, uint16(cfg.I2C.Address))
	} else {
		dev = mcp9800.New(bus, uint8(cfg.I2C.AddressBits))
	}
	s := &MCP9800Sensor{dev: dev, registers: regs}
	if err := s.apply(cfg.Device); err != nil {
		return nil, err
	}
	return s, nil
}

// apply writes the configured config register and thresholds. Thresholds
// outside the device range are rejected before anything is written.
func (s *MCP9800Sensor) apply(d config.DeviceConfig) error {
	if err := s.dev.Configure(deviceConfig(d)); err != nil {
		return err
	}
	switch {
	case d.HysteresisC != nil && d.LimitC != nil:
		return s.dev.SetLimits(celsiusToTemperature(*d.HysteresisC), celsiusToTemperature(*d.LimitC))
	case d.HysteresisC != nil:
		return s.dev.SetLimit(mcp9800.Hysteresis, celsiusToTemperature(*d.HysteresisC))
	case d.LimitC != nil:
		return s.dev.SetLimit(mcp9800.LimitSet, celsiusToTemperature(*d.LimitC))
	}
	return nil
}

func (s *MCP9800Sensor) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

func (s *MCP9800Sensor) Read() ([]Reading, error) {
	out := make([]Reading, 0, len(s.registers))
	now := time.Now()
	for _, reg := range s.registers {
		c16, err := s.dev.ReadTempC16(reg)
		if err != nil {
			return nil, err
		}
		out = append(out, NewReading(reg, c16, now))
	}
	return out, nil
}

func (s *MCP9800Sensor) String() string {
	return s.dev.String()
}
