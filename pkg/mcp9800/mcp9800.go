// Package mcp9800 drives the Microchip MCP9800/1/2/3 two-wire temperature
// sensors.
//
// Temperatures are returned as integers: C16 is degrees Celsius times 16 and
// F10 is degrees Fahrenheit times 10. The threshold registers are written in
// C2 units (degrees Celsius times 2).
//
// Range: -55°C - 125°C
//
// Resolution: 0.5°C (9 bits) to 0.0625°C (12 bits)
package mcp9800

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Register selects one of the temperature registers.
type Register byte

const (
	// Ambient holds the live measurement. It is read only.
	Ambient Register = 0
	// Hysteresis is the alert release threshold.
	Hysteresis Register = 2
	// LimitSet is the alert trigger threshold.
	LimitSet Register = 3
)

func (r Register) String() string {
	switch r {
	case Ambient:
		return "ambient"
	case Hysteresis:
		return "hysteresis"
	case LimitSet:
		return "limitset"
	}
	return fmt.Sprintf("register(%d)", byte(r))
}

const (
	// BaseAddr is the device address with A2:A0 strapped low.
	BaseAddr uint16 = 0x48

	configReg byte = 1
)

// Config register bits.
const (
	OneShot           byte = 0x80
	Res9Bits          byte = 0x00
	Res10Bits         byte = 0x20
	Res11Bits         byte = 0x40
	Res12Bits         byte = 0x60
	FaultQueue1       byte = 0x00
	FaultQueue2       byte = 0x08
	FaultQueue4       byte = 0x10
	FaultQueue6       byte = 0x18
	AlertPolarityHigh byte = 0x04
	InterruptMode     byte = 0x02
	Shutdown          byte = 0x01

	resolutionMask byte = 0x60
	faultQueueMask byte = 0x18
)

const (
	// Resolution of the C16 unit.
	c16Resolution physic.Temperature = 62_500 * physic.MicroKelvin
	// Resolution of the C2 unit.
	c2Resolution physic.Temperature = 500 * physic.MilliKelvin

	// MinimumTemperature is the lowest temperature the device can read.
	MinimumTemperature physic.Temperature = physic.ZeroCelsius - 55*physic.Kelvin
	// MaximumTemperature is the highest temperature the device can read.
	MaximumTemperature physic.Temperature = physic.ZeroCelsius + 125*physic.Kelvin
)

// Dev is a handle to one MCP9800 on an I2C bus.
type Dev struct {
	d *i2c.Dev

	mu   sync.Mutex
	stop chan struct{}
}

// New returns a Dev at BaseAddr plus the low three address bits. Bits above
// the third are discarded.
func New(b i2c.Bus, lsAddrBits uint8) *Dev {
	return NewAddr(b, BaseAddr+uint16(lsAddrBits&0x07))
}

// NewAddr returns a Dev at an arbitrary address, for parts ordered with a
// non-default address.
func NewAddr(b i2c.Bus, addr uint16) *Dev {
	return &Dev{d: &i2c.Dev{Bus: b, Addr: addr}}
}

// Addr returns the 7-bit device address.
func (dev *Dev) Addr() uint16 {
	return dev.d.Addr
}

// Begin initializes the host bus drivers. It must be called once before the
// bus is opened; calling it again is harmless.
func Begin() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("mcp9800: host init: %w", err)
	}
	return nil
}

// Begin is the package level Begin, for callers holding a Dev.
func (dev *Dev) Begin() error {
	return Begin()
}

// ReadTempC16 reads a temperature register and returns °C * 16.
//
// Bits below the configured resolution read as zero.
func (dev *Dev) ReadTempC16(reg Register) (int, error) {
	r := make([]byte, 2)
	if err := dev.d.Tx([]byte{byte(reg)}, r); err != nil {
		return 0, fmt.Errorf("mcp9800: read %s: %w", reg, err)
	}
	return countToC16(r[0], r[1]), nil
}

// ReadTempF10 reads a temperature register and returns °F * 10, rounded half
// up.
func (dev *Dev) ReadTempF10(reg Register) (int, error) {
	c16, err := dev.ReadTempC16(reg)
	if err != nil {
		return 0, err
	}
	return C16ToF10(c16), nil
}

// WriteTempC2 writes value, in °C * 2, to the Hysteresis or LimitSet
// register. Writing Ambient is ignored.
func (dev *Dev) WriteTempC2(reg Register, value int) error {
	if reg <= Ambient {
		return nil
	}
	msb, lsb := c2ToCount(value)
	if err := dev.d.Tx([]byte{byte(reg), msb, lsb}, nil); err != nil {
		return fmt.Errorf("mcp9800: write %s: %w", reg, err)
	}
	return nil
}

// ReadConfig returns the raw config register.
func (dev *Dev) ReadConfig() (byte, error) {
	r := make([]byte, 1)
	if err := dev.d.Tx([]byte{configReg}, r); err != nil {
		return 0, fmt.Errorf("mcp9800: read config: %w", err)
	}
	return r[0], nil
}

// WriteConfig writes the raw config register. The value is not checked; build
// it from the config bit constants or Config.Byte.
func (dev *Dev) WriteConfig(value byte) error {
	if err := dev.d.Tx([]byte{configReg, value}, nil); err != nil {
		return fmt.Errorf("mcp9800: write config: %w", err)
	}
	return nil
}

// Configure writes c to the config register.
func (dev *Dev) Configure(c Config) error {
	return dev.WriteConfig(c.Byte())
}

// OneShot starts a single conversion. The device must be in shutdown; the
// bit is ignored otherwise.
func (dev *Dev) OneShot() error {
	cfg, err := dev.ReadConfig()
	if err != nil {
		return err
	}
	if cfg&Shutdown == 0 {
		return errors.New("mcp9800: one-shot requires shutdown mode")
	}
	return dev.WriteConfig(cfg | OneShot)
}

// ReadTemperature reads a temperature register as a physic.Temperature.
func (dev *Dev) ReadTemperature(reg Register) (physic.Temperature, error) {
	c16, err := dev.ReadTempC16(reg)
	if err != nil {
		return MinimumTemperature, err
	}
	return C16ToTemperature(c16), nil
}

// SetLimits writes the Hysteresis and LimitSet registers. The values are
// truncated to 0.5°C steps. Nothing is written unless both are valid.
func (dev *Dev) SetLimits(hysteresis, limit physic.Temperature) error {
	if hysteresis > limit {
		return errors.New("mcp9800: invalid temperature range")
	}
	if err := checkLimit(Hysteresis, hysteresis); err != nil {
		return err
	}
	if err := checkLimit(LimitSet, limit); err != nil {
		return err
	}
	if err := dev.WriteTempC2(Hysteresis, TemperatureToC2(hysteresis)); err != nil {
		return err
	}
	return dev.WriteTempC2(LimitSet, TemperatureToC2(limit))
}

// SetLimit writes a single threshold register.
func (dev *Dev) SetLimit(reg Register, t physic.Temperature) error {
	if err := checkLimit(reg, t); err != nil {
		return err
	}
	return dev.WriteTempC2(reg, TemperatureToC2(t))
}

func checkLimit(reg Register, t physic.Temperature) error {
	if t < MinimumTemperature || t > MaximumTemperature {
		return fmt.Errorf("mcp9800: %s %s out of range", reg, t)
	}
	return nil
}

// Sense reads the ambient temperature into env. Implements physic.SenseEnv.
func (dev *Dev) Sense(env *physic.Env) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	t, err := dev.ReadTemperature(Ambient)
	if err == nil {
		env.Temperature = t
	}
	return err
}

// SenseContinuous reads the ambient temperature every interval until Halt is
// called. Implements physic.SenseEnv.
func (dev *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < 30*time.Millisecond {
		return nil, errors.New("mcp9800: invalid duration, minimum 30ms")
	}
	dev.mu.Lock()
	if dev.stop != nil {
		dev.mu.Unlock()
		return nil, errors.New("mcp9800: already sensing continuously")
	}
	stop := make(chan struct{})
	dev.stop = stop
	dev.mu.Unlock()

	const channelSize = 16
	ch := make(chan physic.Env, channelSize)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(ch)
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e := physic.Env{}
				if err := dev.Sense(&e); err != nil {
					continue
				}
				select {
				case ch <- e:
				default:
				}
			}
		}
	}()
	return ch, nil
}

// Precision returns 0.0625°C, the 12-bit resolution of the device.
func (dev *Dev) Precision(env *physic.Env) {
	env.Temperature = c16Resolution
	env.Pressure = 0
	env.Humidity = 0
}

// Halt stops a running SenseContinuous. Implements conn.Resource.
func (dev *Dev) Halt() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.stop != nil {
		close(dev.stop)
		dev.stop = nil
	}
	return nil
}

func (dev *Dev) String() string {
	return fmt.Sprintf("mcp9800: %s", dev.d.String())
}

// countToC16 combines the register bytes. The MSB carries the sign and the
// integer degrees, the upper nibble of the LSB the fraction.
func countToC16(msb, lsb byte) int {
	return int(int8(msb))<<4 + int(lsb>>4)
}

// C16ToF10 converts °C * 16 to °F * 10, rounding half up. The rounding test
// is made on the low nibble of the °F * 160 intermediate.
func C16ToF10(c16 int) int {
	tF160 := int64(c16) * 18
	tF10 := tF160 / 16
	if tF160&15 >= 8 {
		tF10++
	}
	return int(tF10 + 320)
}

// c2ToCount aligns a °C * 2 value on the register and splits it, MSB first.
func c2ToCount(value int) (msb, lsb byte) {
	v := uint16(value << 7)
	return byte(v >> 8), byte(v & 0xff)
}

// C16ToTemperature converts °C * 16 to a physic.Temperature.
func C16ToTemperature(c16 int) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(c16)*c16Resolution
}

// TemperatureToC2 converts t to °C * 2, truncating toward zero.
func TemperatureToC2(t physic.Temperature) int {
	return int((t - physic.ZeroCelsius) / c2Resolution)
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
