package mcp9800

import (
	"fmt"
	"strings"
	"time"
)

// Config is the decoded config register.
type Config struct {
	// Resolution is the ADC resolution in bits, 9 to 12.
	Resolution int
	// FaultQueue is the number of consecutive faults before the alert pin
	// asserts: 1, 2, 4 or 6.
	FaultQueue        int
	AlertPolarityHigh bool
	InterruptMode     bool
	Shutdown          bool
	OneShot           bool
}

// DefaultConfig is the power-on state of the device.
var DefaultConfig = Config{Resolution: 9, FaultQueue: 1}

// Byte encodes c as a config register value. Out of range Resolution and
// FaultQueue values fall back to the power-on defaults.
func (c Config) Byte() byte {
	var v byte
	switch c.Resolution {
	case 10:
		v |= Res10Bits
	case 11:
		v |= Res11Bits
	case 12:
		v |= Res12Bits
	default:
		v |= Res9Bits
	}
	switch c.FaultQueue {
	case 2:
		v |= FaultQueue2
	case 4:
		v |= FaultQueue4
	case 6:
		v |= FaultQueue6
	default:
		v |= FaultQueue1
	}
	if c.AlertPolarityHigh {
		v |= AlertPolarityHigh
	}
	if c.InterruptMode {
		v |= InterruptMode
	}
	if c.Shutdown {
		v |= Shutdown
	}
	if c.OneShot {
		v |= OneShot
	}
	return v
}

// ParseConfig decodes a config register value.
func ParseConfig(v byte) Config {
	c := Config{
		Resolution:        9 + int((v&resolutionMask)>>5),
		AlertPolarityHigh: v&AlertPolarityHigh != 0,
		InterruptMode:     v&InterruptMode != 0,
		Shutdown:          v&Shutdown != 0,
		OneShot:           v&OneShot != 0,
	}
	switch v & faultQueueMask {
	case FaultQueue2:
		c.FaultQueue = 2
	case FaultQueue4:
		c.FaultQueue = 4
	case FaultQueue6:
		c.FaultQueue = 6
	default:
		c.FaultQueue = 1
	}
	return c
}

func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resolution=%dbit fault_queue=%d", c.Resolution, c.FaultQueue)
	if c.AlertPolarityHigh {
		b.WriteString(" alert=high")
	} else {
		b.WriteString(" alert=low")
	}
	if c.InterruptMode {
		b.WriteString(" mode=interrupt")
	} else {
		b.WriteString(" mode=comparator")
	}
	if c.Shutdown {
		b.WriteString(" shutdown")
	}
	return b.String()
}

// ConversionTime returns the typical time of one conversion at the given
// resolution in bits.
func ConversionTime(resolution int) time.Duration {
	switch resolution {
	case 10:
		return 60 * time.Millisecond
	case 11:
		return 120 * time.Millisecond
	case 12:
		return 240 * time.Millisecond
	}
	return 30 * time.Millisecond
}
