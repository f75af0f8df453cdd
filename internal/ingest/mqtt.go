package ingest

import (
	"encoding/json"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/fleetops/fleet-maintenance/internal/maintenance"
)

// UsageMessage is the counter-update payload published by field telemetry
// or the simulator. Deltas are cumulative-counter increments, never
// absolute readings.
type UsageMessage struct {
	EquipmentID string  `json:"equipment_id"`
	HoursDelta  float64 `json:"hours_delta"`
	KmDelta     float64 `json:"km_delta"`
}

// Consumer applies usage-counter updates from an MQTT topic to the fleet.
type Consumer struct {
	scheduler *maintenance.Scheduler
	persist   func()
}

// NewConsumer creates a consumer over the scheduler. The persist hook runs
// after every applied update and may be nil.
func NewConsumer(scheduler *maintenance.Scheduler, persist func()) *Consumer {
	return &Consumer{scheduler: scheduler, persist: persist}
}

// Handle is the MQTT message callback. Malformed payloads and updates for
// unknown equipment are logged and dropped; telemetry is best-effort input.
func (c *Consumer) Handle(_ mqtt.Client, msg mqtt.Message) {
	var usage UsageMessage
	if err := json.Unmarshal(msg.Payload(), &usage); err != nil {
		log.WithError(err).Warn("Dropping malformed usage message")
		return
	}
	if err := c.scheduler.AddUsage(usage.EquipmentID, usage.HoursDelta, usage.KmDelta); err != nil {
		log.WithFields(log.Fields{
			"equipment_id": usage.EquipmentID,
		}).WithError(err).Warn("Dropping usage message")
		return
	}
	log.WithFields(log.Fields{
		"equipment_id": usage.EquipmentID,
		"hours_delta":  usage.HoursDelta,
		"km_delta":     usage.KmDelta,
	}).Debug("Applied usage update")
	if c.persist != nil {
		c.persist()
	}
}

// Subscribe attaches the consumer to the topic at QoS 1.
func (c *Consumer) Subscribe(client mqtt.Client, topic string) error {
	token := client.Subscribe(topic, 1, c.Handle)
	token.Wait()
	return token.Error()
}
