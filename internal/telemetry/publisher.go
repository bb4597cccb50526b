package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	simplejson "github.com/bitly/go-simplejson"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/mqtt"
)

// configReadWait bounds each retained-message fetch during the
// configuration update check.
const configReadWait = 3 * time.Second

// Publisher turns sensor readings into the node's MQTT traffic.
type Publisher struct {
	client   *mqtt.Client
	topics   Topics
	room     string
	qos      byte
	readWait time.Duration
}

// NewPublisher builds a publisher for the given node identity.
func NewPublisher(client *mqtt.Client, topics Topics, room string, qos byte) *Publisher {
	return &Publisher{
		client:   client,
		topics:   topics,
		room:     room,
		qos:      qos,
		readWait: configReadWait,
	}
}

// readingsDoc is the JSON shape the Core ingests from node data topics.
type readingsDoc struct {
	NodeID    string             `json:"node_id"`
	Room      string             `json:"room"`
	Timestamp string             `json:"timestamp"`
	Readings  map[string]float64 `json:"readings"`
}

// PublishReadings sends one cycle's readings to the node's data topic.
func (p *Publisher) PublishReadings(readings map[string]float64, ts time.Time) bool {
	payload, err := json.Marshal(readingsDoc{
		NodeID:    p.topics.NodeID,
		Room:      p.room,
		Timestamp: ts.UTC().Format(time.RFC3339),
		Readings:  readings,
	})
	if err != nil {
		return false
	}
	return p.client.Publish(p.topics.Data(), payload, p.qos, false)
}

// statusDoc is the retained presence message shape.
type statusDoc struct {
	Status    string `json:"status"`
	NodeID    string `json:"node_id"`
	Timestamp string `json:"timestamp"`
}

// PublishStatus publishes the node's retained presence message. The Core
// and dashboards read this to tell a sleeping node from a dead one: a
// sleeping node's last status is "sleeping" with a timestamp, a dead one's
// goes stale.
func (p *Publisher) PublishStatus(status string) bool {
	payload, err := json.Marshal(statusDoc{
		Status:    status,
		NodeID:    p.topics.NodeID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return false
	}
	return p.client.Publish(p.topics.Status(), payload, p.qos, true)
}

// CheckConfigUpdate fetches the retained configuration version for this
// node and, when it is newer than the running configuration, pulls the full
// document and merges it in.
//
// Returns whether the configuration changed. A missing version topic is
// not an error: nodes commissioned before the Core knows them simply run
// on local configuration.
func (p *Publisher) CheckConfigUpdate(cfg *config.Config) (bool, error) {
	payload, ok := p.client.ReadTopic(p.topics.ConfigVersion(), p.readWait)
	if !ok {
		return false, nil
	}

	doc, err := simplejson.NewJson(payload)
	if err != nil {
		return false, fmt.Errorf("parsing config version message: %w", err)
	}
	version := doc.Get("version").MustInt()
	if version <= cfg.Version {
		return false, nil
	}

	body, ok := p.client.ReadTopic(p.topics.Config(), p.readWait)
	if !ok {
		return false, fmt.Errorf("config version %d announced but document not retained", version)
	}

	update, err := parseConfigUpdate(body)
	if err != nil {
		return false, err
	}
	update.Version = version

	if err := cfg.Apply(update); err != nil {
		return false, err
	}
	return true, nil
}

// parseConfigUpdate extracts the remotely steerable fields from a pushed
// configuration document. Unknown fields are ignored; absent fields are
// left at values Apply treats as "leave unchanged".
func parseConfigUpdate(payload []byte) (*config.Config, error) {
	doc, err := simplejson.NewJson(payload)
	if err != nil {
		return nil, fmt.Errorf("parsing config document: %w", err)
	}

	update := &config.Config{}
	update.Node.WakeInterval = doc.Get("node").Get("wake_interval").MustInt()

	// QoS 0 is a valid push, so presence is checked explicitly.
	update.MQTT.QoS = -1
	if qos, ok := doc.Get("mqtt").CheckGet("qos"); ok {
		update.MQTT.QoS = qos.MustInt()
	}
	if enabled, err := doc.Get("sensors").Get("enabled").StringArray(); err == nil {
		update.Sensors.Enabled = enabled
	}

	if rec := doc.Get("mqtt").Get("reconnect"); len(rec.MustMap()) > 0 {
		update.MQTT.Reconnect = config.ReconnectConfig{
			Enabled:       rec.Get("enabled").MustBool(),
			MaxAttempts:   rec.Get("max_attempts").MustInt(),
			BackoffFactor: rec.Get("backoff_factor").MustFloat64(),
			MinInterval:   rec.Get("min_interval").MustInt(),
			MaxInterval:   rec.Get("max_interval").MustInt(),
		}
	}

	return update, nil
}
