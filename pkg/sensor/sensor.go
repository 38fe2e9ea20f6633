package sensor

import "time"

// Reading is one temperature register sampled at Timestamp.
type Reading struct {
	Register   string    `json:"register"`
	Raw        int       `json:"raw"`
	F10        int       `json:"f10"`
	Celsius    float64   `json:"celsius"`
	Fahrenheit float64   `json:"fahrenheit"`
	Timestamp  time.Time `json:"timestamp"`
}

type Sensor interface {
	Read() ([]Reading, error)
	Close() error
}
