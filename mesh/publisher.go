package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes solved frames to MQTT.
//
// Topics:
//
//	<prefix>/frame          frame summary
//	<prefix>/scanners/<id>  one scanner's global position
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	mu            sync.RWMutex
}

// NewPublisher creates a frame publisher. MQTT_PUBLISH_PREFIX overrides prefix;
// an empty result falls back to DefaultPublishPrefix.
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true, // late subscribers see the latest frame
	}
}

// NewPublisherFromConfig creates a publisher using the prefix, QoS and
// retain settings of the mqtt config section.
func NewPublisherFromConfig(client mqtt.Client, config MQTTConfig) *Publisher {
	p := NewPublisher(client, config.PublishPrefix)
	p.SetQoS(byte(config.QoS))
	if config.Retain != nil {
		p.SetRetain(*config.Retain)
	}
	return p
}

// Prefix returns the topic prefix
func (p *Publisher) Prefix() string {
	return p.publishPrefix
}

// PublishFrame publishes the frame summary followed by every scanner position
func (p *Publisher) PublishFrame(frame *GlobalFrame) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	summary := frame.Summary()

	if err := p.publishJSON(p.FrameTopic(), summary); err != nil {
		log.Printf("[MQTT] error publishing frame %s: %v", summary.RunID, err)
		return err
	}

	for _, pos := range summary.Positions {
		if err := p.publishJSON(p.ScannerTopic(pos.ScannerID), pos); err != nil {
			log.Printf("[MQTT] error publishing scanner %d: %v", pos.ScannerID, err)
			return err
		}
	}

	log.Printf("[MQTT] published frame %s: %d scanners, %d landmarks, max distance %d",
		summary.RunID, summary.ScannerCount, summary.LandmarkCount, summary.MaxScannerDistance)
	return nil
}

// FrameTopic returns the topic carrying frame summaries
func (p *Publisher) FrameTopic() string {
	return fmt.Sprintf("%s/frame", p.publishPrefix)
}

// ScannerTopic returns the topic carrying one scanner's position
func (p *Publisher) ScannerTopic(id int) string {
	return fmt.Sprintf("%s/scanners/%d", p.publishPrefix, id)
}

func (p *Publisher) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", topic, err)
	}

	p.mu.RLock()
	qos, retain := p.qos, p.retain
	p.mu.RUnlock()

	token := p.client.Publish(topic, qos, retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos > 2 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.qos = qos
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retain = retain
}
