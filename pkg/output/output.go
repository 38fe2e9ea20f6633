// Package output defines where readings go. Implementations live in the
// subpackages, one per output type of the config file.
package output

import "github.com/ericogr/mcp9800-to-mqtt/pkg/sensor"

// Output receives the latest readings on every tick of its interval.
type Output interface {
	Publish([]sensor.Reading) error
	Close() error
}
