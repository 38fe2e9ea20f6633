package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/config"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/output"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/sensor"
)

const (
	// defaults
	DefaultServer       = "tcp://localhost:1883"
	DefaultClientID     = "mcp9800-client"
	perRegisterTopicFmt = "mcp9800/%s"
	disconnectQuiesceMs = 250
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	unitCelsius            = "°C"
	deviceClassTemperature = "temperature"
	stateClassMeasurement  = "measurement"
	valueTemplateCelsius   = "{{ value_json.temperature }}"
)

type MQTTOutput struct {
	client         mqtt.Client
	stateTopic     string
	discoveryTopic string
}

func NewMQTT(cfg config.MQTTConfig, registers []string) (output.Output, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	log.Info("mqtt connected", "server", cfg.Server, "client_id", cfg.ClientID)
	return newMQTTOutput(client, cfg, registers), nil
}

// newMQTTOutput wraps a connected client and publishes the Home Assistant
// discovery payload(s) if a discovery topic is configured.
func newMQTTOutput(client mqtt.Client, cfg config.MQTTConfig, registers []string) *MQTTOutput {
	m := &MQTTOutput{client: client, stateTopic: cfg.StateTopic, discoveryTopic: cfg.DiscoveryTopic}
	if m.discoveryTopic == "" {
		return m
	}
	// per-register discovery when discoveryTopic contains a formatter
	if strings.Contains(m.discoveryTopic, "%s") {
		for _, reg := range registers {
			dTopic := fmt.Sprintf(m.discoveryTopic, reg)
			payload := baseDiscoveryPayload(discoveryName(cfg, reg), formatStateTopic(cfg.StateTopic, reg), discoveryUniqueID(cfg, reg))
			if err := publishJSON(client, dTopic, true, payload); err != nil {
				log.Error("mqtt discovery publish", "topic", dTopic, "err", err)
			}
		}
		return m
	}
	reg := "ambient"
	if len(registers) > 0 {
		reg = registers[0]
	}
	payload := baseDiscoveryPayload(discoveryName(cfg, ""), formatStateTopic(cfg.StateTopic, reg), discoveryUniqueID(cfg, ""))
	if err := publishJSON(client, m.discoveryTopic, true, payload); err != nil {
		log.Error("mqtt discovery publish", "topic", m.discoveryTopic, "err", err)
	}
	return m
}

func (m *MQTTOutput) Publish(readings []sensor.Reading) error {
	for _, r := range readings {
		topic := formatStateTopic(m.stateTopic, r.Register)
		payload := map[string]interface{}{"temperature": r.Celsius, "fahrenheit": r.Fahrenheit, "raw": r.Raw}
		if err := publishJSON(m.client, topic, false, payload); err != nil {
			return fmt.Errorf("mqtt publish %s: %w", topic, err)
		}
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesceMs)
	}
	return nil
}

// formatStateTopic picks the topic for a register. A base with a %s
// formatter is expanded; an empty base falls back to mcp9800/<register>.
func formatStateTopic(base string, reg string) string {
	if base != "" {
		if strings.Contains(base, "%s") {
			return fmt.Sprintf(base, reg)
		}
		return base
	}
	return fmt.Sprintf(perRegisterTopicFmt, reg)
}

func discoveryName(cfg config.MQTTConfig, reg string) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("MCP9800 %s", cfg.ClientID)
	}
	if reg != "" {
		name = fmt.Sprintf("%s %s", name, reg)
	}
	return name
}

func discoveryUniqueID(cfg config.MQTTConfig, reg string) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	if uid != "" && reg != "" {
		uid = fmt.Sprintf("%s_%s", uid, reg)
	}
	return uid
}

func baseDiscoveryPayload(name, stateTopic, uniqueID string) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyUnitOfMeasurement:   unitCelsius,
		keyDeviceClass:         deviceClassTemperature,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplateCelsius,
		keyJSONAttributesTopic: stateTopic,
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

func publishJSON(client mqtt.Client, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
