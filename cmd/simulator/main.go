package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// UsageMessage mirrors the ingest payload: cumulative-counter increments
// for one fleet unit.
type UsageMessage struct {
	EquipmentID string  `json:"equipment_id"`
	HoursDelta  float64 `json:"hours_delta"`
	KmDelta     float64 `json:"km_delta"`
}

// truckState tracks the simulated duty cycle of one unit. A truck that is
// parked accrues neither hours nor kilometres for a few ticks.
type truckState struct {
	EquipmentID string
	AvgSpeedKmh float64
	parkedTicks int
}

func newFleet(count int) []*truckState {
	fleet := make([]*truckState, 0, count)
	for i := 1; i <= count; i++ {
		fleet = append(fleet, &truckState{
			EquipmentID: fmt.Sprintf("TR-%03d", i),
			AvgSpeedKmh: 25 + rand.Float64()*35, // yard tractors vs. line haul
		})
	}
	return fleet
}

// nextUsage produces the counter deltas for one tick of simulated time.
func nextUsage(t *truckState, tickHours float64) UsageMessage {
	if t.parkedTicks > 0 {
		t.parkedTicks--
		return UsageMessage{EquipmentID: t.EquipmentID}
	}
	if rand.Float64() < 0.1 {
		t.parkedTicks = 1 + rand.Intn(4)
		return UsageMessage{EquipmentID: t.EquipmentID}
	}
	// Engine hours run slightly longer than driving time (idling).
	hours := tickHours * (1 + rand.Float64()*0.2)
	km := tickHours * t.AvgSpeedKmh * (0.8 + rand.Float64()*0.4)
	return UsageMessage{EquipmentID: t.EquipmentID, HoursDelta: hours, KmDelta: km}
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func main() {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = "tcp://localhost:1883"
	}
	topic := os.Getenv("MQTT_TOPIC")
	if topic == "" {
		topic = "fleet/usage"
	}
	fleetSize := envInt("FLEET_SIZE", 5)
	tickSeconds := envInt("TICK_SECONDS", 10)
	// Each tick advances this much simulated operating time.
	tickHours := 1.0

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("fleet-usage-simulator").
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.WithError(token.Error()).Fatal("Failed to connect to MQTT broker")
	}
	log.WithFields(log.Fields{
		"broker":     broker,
		"topic":      topic,
		"fleet_size": fleetSize,
	}).Info("Usage simulator started")

	fleet := newFleet(fleetSize)
	ticker := time.NewTicker(time.Duration(tickSeconds) * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		for _, truck := range fleet {
			usage := nextUsage(truck, tickHours)
			if usage.HoursDelta == 0 && usage.KmDelta == 0 {
				continue
			}
			payload, err := json.Marshal(usage)
			if err != nil {
				log.WithError(err).Error("Failed to marshal usage message")
				continue
			}
			token := client.Publish(topic, 1, false, payload)
			token.Wait()
			if token.Error() != nil {
				log.WithError(token.Error()).Warn("Failed to publish usage message")
				continue
			}
			log.WithFields(log.Fields{
				"equipment_id": usage.EquipmentID,
				"hours_delta":  usage.HoursDelta,
				"km_delta":     usage.KmDelta,
			}).Info("Published usage update")
		}
	}
}
