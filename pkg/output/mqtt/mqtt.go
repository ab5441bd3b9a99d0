package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/ericogr/adclogger/pkg/adc"
	"github.com/ericogr/adclogger/pkg/config"
	"github.com/ericogr/adclogger/pkg/output"
)

const (
	// defaults
	DefaultServer      = "tcp://localhost:1883"
	DefaultClientID    = "adclogger"
	perChannelTopicFmt = "adclogger/%s"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	deviceClassTemperature = "temperature"
	stateClassMeasurement  = "measurement"
	valueTemplateValue     = "{{ value_json.value }}"
)

// Channel describes a logged channel for discovery.
type Channel struct {
	Name string
	Unit string
}

type MQTTOutput struct {
	client         mqtt.Client
	stateTopic     string
	discoveryTopic string
	log            zerolog.Logger
}

func NewMQTT(cfg config.MQTTConfig, channels []Channel, logger zerolog.Logger) (output.Output, error) {
	server := cfg.Server
	if server == "" {
		server = DefaultServer
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(server).SetClientID(clientID)
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
	cfg.ClientID = clientID
	return newWithClient(client, cfg, channels, logger), nil
}

func newWithClient(client mqtt.Client, cfg config.MQTTConfig, channels []Channel, logger zerolog.Logger) *MQTTOutput {
	m := &MQTTOutput{client: client, stateTopic: cfg.StateTopic, discoveryTopic: cfg.DiscoveryTopic, log: logger}

	// Publish Home Assistant discovery payload(s) if requested
	if m.discoveryTopic != "" {
		for _, ch := range channels {
			dTopic := m.discoveryTopic
			if strings.Contains(dTopic, "%s") {
				dTopic = fmt.Sprintf(dTopic, ch.Name)
			}
			payload := baseDiscoveryPayload(discoveryName(cfg, ch), formatStateTopic(cfg.StateTopic, ch.Name), discoveryUniqueID(cfg, ch), ch.Unit)
			if err := publishJSON(client, dTopic, true, payload); err != nil {
				m.log.Warn().Err(err).Str("topic", dTopic).Msg("mqtt discovery publish error")
			}
		}
	}
	return m
}

func (m *MQTTOutput) Publish(readings []adc.Reading) error {
	for _, r := range readings {
		topic := formatStateTopic(m.stateTopic, r.Name)
		payload := map[string]interface{}{"index": r.Index, "raw": r.Raw, "value": r.Value}
		if r.Unit != "" {
			payload["unit"] = r.Unit
		}
		if err := publishJSON(m.client, topic, false, payload); err != nil {
			return err
		}
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

// helper: format a state topic for a channel using an optional formatter
func formatStateTopic(base, name string) string {
	if base != "" {
		if strings.Contains(base, "%s") {
			return fmt.Sprintf(base, name)
		}
		return base
	}
	return fmt.Sprintf(perChannelTopicFmt, name)
}

func discoveryName(cfg config.MQTTConfig, ch Channel) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("ADC logger %s", cfg.ClientID)
	}
	return fmt.Sprintf("%s %s", name, ch.Name)
}

func discoveryUniqueID(cfg config.MQTTConfig, ch Channel) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	if uid != "" {
		uid = fmt.Sprintf("%s_%s", uid, ch.Name)
	}
	return uid
}

// helper: base discovery payload map common to all entries
func baseDiscoveryPayload(name, stateTopic, uniqueID, unit string) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplateValue,
		keyJSONAttributesTopic: stateTopic,
	}
	if unit != "" {
		payload[keyUnitOfMeasurement] = unit
		if unit == "°C" {
			payload[keyDeviceClass] = deviceClassTemperature
		}
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

// helper: marshal and publish JSON payload
func publishJSON(client mqtt.Client, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
