package influx

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"

	"github.com/ericogr/mcp9800-to-mqtt/pkg/config"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/output"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/sensor"
)

const (
	DefaultMeasurement = "temperature"
	writeTimeout       = 5 * time.Second

	tagRegister     = "register"
	fieldCelsius    = "celsius"
	fieldFahrenheit = "fahrenheit"
	fieldRaw        = "raw"
)

type InfluxOutput struct {
	writer      api.WriteAPIBlocking
	close       func()
	measurement string
	tags        map[string]string
}

func NewInflux(cfg config.InfluxConfig) (output.Output, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, errors.New("influx output needs url and bucket")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return newInfluxOutput(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), client.Close, cfg), nil
}

func newInfluxOutput(writer api.WriteAPIBlocking, closeFn func(), cfg config.InfluxConfig) *InfluxOutput {
	measurement := cfg.Measurement
	if measurement == "" {
		measurement = DefaultMeasurement
	}
	return &InfluxOutput{writer: writer, close: closeFn, measurement: measurement, tags: cfg.Tags}
}

func (o *InfluxOutput) Publish(readings []sensor.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := o.writer.WritePoint(ctx, o.points(readings)...); err != nil {
		return errors.Wrapf(err, "failed to write %d points to influx", len(readings))
	}
	return nil
}

func (o *InfluxOutput) points(readings []sensor.Reading) []*write.Point {
	points := make([]*write.Point, 0, len(readings))
	for _, r := range readings {
		tags := make(map[string]string, len(o.tags)+1)
		for k, v := range o.tags {
			tags[k] = v
		}
		tags[tagRegister] = r.Register
		fields := map[string]interface{}{
			fieldCelsius:    r.Celsius,
			fieldFahrenheit: r.Fahrenheit,
			fieldRaw:        r.Raw,
		}
		points = append(points, write.NewPoint(o.measurement, tags, fields, r.Timestamp))
	}
	return points
}

func (o *InfluxOutput) Close() error {
	if o.close != nil {
		o.close()
	}
	return nil
}
