package console

import (
	"fmt"
	"time"

	"github.com/ericogr/mcp9800-to-mqtt/pkg/output"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/sensor"
)

type ConsoleOutput struct{}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) Publish(readings []sensor.Reading) error {
	for _, r := range readings {
		fmt.Printf("%s register=%s raw=%d celsius=%.4f fahrenheit=%.1f\n", r.Timestamp.Format(time.RFC3339), r.Register, r.Raw, r.Celsius, r.Fahrenheit)
	}
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
