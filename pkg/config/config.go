package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	SensorReal       = "real"
	SensorSimulation = "simulation"

	OutputConsole = "console"
	OutputMQTT    = "mqtt"
	OutputInflux  = "influx"
	OutputHTTP    = "http"
)

// Range of the threshold registers, in °C.
const (
	MinThresholdC = -55.0
	MaxThresholdC = 125.0
)

// KnownRegisters lists the temperature registers that can be reported.
var KnownRegisters = []string{"ambient", "hysteresis", "limitset"}

type I2CConfig struct {
	Bus string `json:"bus"`
	// Address overrides AddressBits when non zero.
	Address     int `json:"address,omitempty"`
	AddressBits int `json:"address_bits"`
}

type DeviceConfig struct {
	Resolution        int      `json:"resolution"`
	FaultQueue        int      `json:"fault_queue"`
	AlertPolarityHigh bool     `json:"alert_polarity_high"`
	InterruptMode     bool     `json:"interrupt_mode"`
	HysteresisC       *float64 `json:"hysteresis_c,omitempty"`
	LimitC            *float64 `json:"limit_c,omitempty"`
}

type MQTTConfig struct {
	Server            string `json:"server"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	ClientID          string `json:"client_id"`
	StateTopic        string `json:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic,omitempty"`
	DiscoveryName     string `json:"discovery_name,omitempty"`
	DiscoveryUniqueID string `json:"discovery_unique_id,omitempty"`
}

type InfluxConfig struct {
	URL         string            `json:"url"`
	Token       string            `json:"token"`
	Org         string            `json:"org"`
	Bucket      string            `json:"bucket"`
	Measurement string            `json:"measurement,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

type HTTPConfig struct {
	Listen string `json:"listen"`
}

type OutputConfig struct {
	Type       string        `json:"type"`
	IntervalMs int           `json:"interval_ms,omitempty"`
	MQTT       *MQTTConfig   `json:"mqtt,omitempty"`
	Influx     *InfluxConfig `json:"influx,omitempty"`
	HTTP       *HTTPConfig   `json:"http,omitempty"`
}

type Config struct {
	I2C        I2CConfig      `json:"i2c"`
	Device     DeviceConfig   `json:"device"`
	Registers  []string       `json:"registers"`
	SensorType string         `json:"sensor_type"`
	IntervalMs int            `json:"interval_ms"`
	Outputs    []OutputConfig `json:"outputs"`
	LogLevel   string         `json:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		I2C:        I2CConfig{Bus: ""},
		Device:     DeviceConfig{Resolution: 12, FaultQueue: 1},
		Registers:  []string{"ambient"},
		SensorType: SensorReal,
		IntervalMs: 1000,
		Outputs:    []OutputConfig{{Type: OutputConsole, IntervalMs: 1000}},
		LogLevel:   "info",
	}
}

// LoadFromFlags loads configuration from a JSON file (optional) and the
// process command line. Flags override values present in the JSON file.
func LoadFromFlags() (Config, error) {
	return Load(os.Args[1:])
}

// Load is LoadFromFlags over an explicit argument list.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("mcp9800-to-mqtt", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON config file")
	flagI2CBus := fs.String("i2c-bus", "", "I2C bus name or number (empty: first bus)")
	flagI2CAddr := fs.String("i2c-address", "", "I2C address (decimal or 0x hex), overrides -i2c-address-bits")
	flagAddrBits := fs.Int("i2c-address-bits", 0, "A2:A0 address pins (0-7)")
	flagResolution := fs.Int("resolution", 0, "ADC resolution in bits (9-12)")
	flagFaultQueue := fs.Int("fault-queue", 0, "Fault queue length (1,2,4,6)")
	flagAlertHigh := fs.Bool("alert-high", false, "Alert output active high")
	flagInterrupt := fs.Bool("interrupt-mode", false, "Alert in interrupt mode instead of comparator")
	flagHysteresis := fs.Float64("hysteresis", 0, "Hysteresis threshold in °C")
	flagLimit := fs.Float64("limit", 0, "Limit threshold in °C")
	flagRegisters := fs.String("registers", "", "Comma-separated registers to report (ambient,hysteresis,limitset)")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,mqtt,influx,http)")
	flagOutputIntervals := fs.String("output-intervals", "", "Comma-separated output intervals e.g. console=1000,mqtt=5000")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT state topic (%s is replaced by the register)")
	flagInfluxURL := fs.String("influx-url", "", "InfluxDB URL")
	flagInfluxToken := fs.String("influx-token", "", "InfluxDB token")
	flagInfluxOrg := fs.String("influx-org", "", "InfluxDB organization")
	flagInfluxBucket := fs.String("influx-bucket", "", "InfluxDB bucket")
	flagInfluxTags := fs.String("influx-tags", "", "Extra tags e.g. room=kitchen,floor=1")
	flagHTTPListen := fs.String("http-listen", "", "HTTP status listen address e.g. :8080")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|simulation")
	flagInterval := fs.Int("interval-ms", 0, "Publish interval in ms")
	flagLogLevel := fs.String("log-level", "", "Log level: debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := DefaultConfig()

	if *cfgPath != "" {
		b, err := os.ReadFile(*cfgPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		// slices are decoded in place, so start them empty
		cfg.Outputs, cfg.Registers = nil, nil
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
		def := DefaultConfig()
		if cfg.Outputs == nil {
			cfg.Outputs = def.Outputs
		}
		if cfg.Registers == nil {
			cfg.Registers = def.Registers
		}
	}

	if set["i2c-bus"] {
		cfg.I2C.Bus = *flagI2CBus
	}
	if *flagI2CAddr != "" {
		v, err := parseIntOrHex(*flagI2CAddr)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.I2C.Address = v
	}
	if set["i2c-address-bits"] {
		cfg.I2C.AddressBits = *flagAddrBits
	}
	if set["resolution"] {
		cfg.Device.Resolution = *flagResolution
	}
	if set["fault-queue"] {
		cfg.Device.FaultQueue = *flagFaultQueue
	}
	if set["alert-high"] {
		cfg.Device.AlertPolarityHigh = *flagAlertHigh
	}
	if set["interrupt-mode"] {
		cfg.Device.InterruptMode = *flagInterrupt
	}
	if set["hysteresis"] {
		v := *flagHysteresis
		cfg.Device.HysteresisC = &v
	}
	if set["limit"] {
		v := *flagLimit
		cfg.Device.LimitC = &v
	}
	if *flagRegisters != "" {
		cfg.Registers = parseCSV(*flagRegisters)
	}
	if set["interval-ms"] {
		cfg.IntervalMs = *flagInterval
	}
	if *flagOutputs != "" {
		// convert simple CSV of types into structured OutputConfig entries
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p), IntervalMs: cfg.IntervalMs})
		}
		cfg.Outputs = outs
	}
	if *flagOutputIntervals != "" {
		outIntervals, err := parseKeyIntMap(*flagOutputIntervals)
		if err != nil {
			return cfg, fmt.Errorf("output-intervals: %w", err)
		}
		for i := range cfg.Outputs {
			if v, ok := outIntervals[cfg.Outputs[i].Type]; ok {
				cfg.Outputs[i].IntervalMs = v
			}
		}
	}
	if set["mqtt-server"] || set["mqtt-user"] || set["mqtt-pass"] || set["mqtt-client-id"] || set["mqtt-topic"] {
		for _, out := range outputsOfType(&cfg, OutputMQTT) {
			if out.MQTT == nil {
				out.MQTT = &MQTTConfig{}
			}
			if set["mqtt-server"] {
				out.MQTT.Server = *flagMQTTServer
			}
			if set["mqtt-user"] {
				out.MQTT.Username = *flagMQTTUser
			}
			if set["mqtt-pass"] {
				out.MQTT.Password = *flagMQTTPass
			}
			if set["mqtt-client-id"] {
				out.MQTT.ClientID = *flagClientID
			}
			if set["mqtt-topic"] {
				out.MQTT.StateTopic = *flagTopic
			}
		}
	}
	if set["influx-url"] || set["influx-token"] || set["influx-org"] || set["influx-bucket"] || set["influx-tags"] {
		tags, err := parseKeyStringMap(*flagInfluxTags)
		if err != nil {
			return cfg, fmt.Errorf("influx-tags: %w", err)
		}
		for _, out := range outputsOfType(&cfg, OutputInflux) {
			if out.Influx == nil {
				out.Influx = &InfluxConfig{}
			}
			if set["influx-url"] {
				out.Influx.URL = *flagInfluxURL
			}
			if set["influx-token"] {
				out.Influx.Token = *flagInfluxToken
			}
			if set["influx-org"] {
				out.Influx.Org = *flagInfluxOrg
			}
			if set["influx-bucket"] {
				out.Influx.Bucket = *flagInfluxBucket
			}
			if set["influx-tags"] {
				out.Influx.Tags = tags
			}
		}
	}
	if set["http-listen"] {
		for _, out := range outputsOfType(&cfg, OutputHTTP) {
			out.HTTP = &HTTPConfig{Listen: *flagHTTPListen}
		}
	}
	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	// ensure outputs have interval default
	for i := range cfg.Outputs {
		if cfg.Outputs[i].IntervalMs == 0 {
			cfg.Outputs[i].IntervalMs = cfg.IntervalMs
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks value ranges. Address bits are not checked: the driver
// keeps the low three bits.
func (c Config) Validate() error {
	if c.Device.Resolution < 9 || c.Device.Resolution > 12 {
		return fmt.Errorf("resolution must be 9-12 bits, got %d", c.Device.Resolution)
	}
	switch c.Device.FaultQueue {
	case 1, 2, 4, 6:
	default:
		return fmt.Errorf("fault-queue must be 1, 2, 4 or 6, got %d", c.Device.FaultQueue)
	}
	for name, v := range map[string]*float64{"hysteresis": c.Device.HysteresisC, "limit": c.Device.LimitC} {
		if v != nil && (*v < MinThresholdC || *v > MaxThresholdC) {
			return fmt.Errorf("%s must be within %g..%g °C, got %g", name, MinThresholdC, MaxThresholdC, *v)
		}
	}
	if c.Device.HysteresisC != nil && c.Device.LimitC != nil && *c.Device.HysteresisC > *c.Device.LimitC {
		return errors.New("hysteresis must not be above limit")
	}
	if len(c.Registers) == 0 {
		return errors.New("at least one register must be reported")
	}
	for _, r := range c.Registers {
		if !isKnownRegister(r) {
			return fmt.Errorf("unknown register %q", r)
		}
	}
	switch c.SensorType {
	case SensorReal, SensorSimulation:
	default:
		return fmt.Errorf("unknown sensor type %q", c.SensorType)
	}
	if c.IntervalMs <= 0 {
		return errors.New("interval-ms must be > 0")
	}
	for _, o := range c.Outputs {
		switch o.Type {
		case OutputConsole, OutputInflux, OutputHTTP:
		case OutputMQTT:
			// a fixed state topic would carry every register in turn
			if o.MQTT != nil && o.MQTT.StateTopic != "" && !strings.Contains(o.MQTT.StateTopic, "%s") && len(c.Registers) > 1 {
				return fmt.Errorf("mqtt state topic %q needs a %%s placeholder to report %d registers", o.MQTT.StateTopic, len(c.Registers))
			}
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	return nil
}

func outputsOfType(cfg *Config, typ string) []*OutputConfig {
	var outs []*OutputConfig
	for i := range cfg.Outputs {
		if strings.ToLower(cfg.Outputs[i].Type) == typ {
			outs = append(outs, &cfg.Outputs[i])
		}
	}
	if len(outs) == 0 {
		cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: typ, IntervalMs: cfg.IntervalMs})
		outs = append(outs, &cfg.Outputs[len(cfg.Outputs)-1])
	}
	return outs
}

func isKnownRegister(name string) bool {
	for _, r := range KnownRegisters {
		if r == name {
			return true
		}
	}
	return false
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseKeyIntMap(s string) (map[string]int, error) {
	out := map[string]int{}
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid entry '%s'", p)
		}
		v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid value in '%s': %w", p, err)
		}
		out[strings.TrimSpace(kv[0])] = v
	}
	return out, nil
}

func parseKeyStringMap(s string) (map[string]string, error) {
	out := map[string]string{}
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			return nil, fmt.Errorf("invalid entry '%s'", p)
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out, nil
}
