package main

import (
	"context"
	"net/http"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/fleetops/fleet-maintenance/internal/db"
	"github.com/fleetops/fleet-maintenance/internal/handlers"
	"github.com/fleetops/fleet-maintenance/internal/ingest"
	"github.com/fleetops/fleet-maintenance/internal/maintenance"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	client, err := db.ConnectMongo()
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	store := db.NewMongoStateStore(client.Database(db.DatabaseName()))

	clock := maintenance.SystemClock()
	scheduler := maintenance.NewScheduler(clock, maintenance.UUIDGenerator())
	inventory := maintenance.NewInventory()
	failures := maintenance.NewFailureLog(clock)

	restoreState(store, scheduler, inventory, failures)

	handler := handlers.NewMaintenanceHandler(scheduler, inventory, failures, store, clock)

	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		persist := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			snap := db.Snapshot{
				Equipment: scheduler.Fleet(),
				Parts:     inventory.Parts(),
				Orders:    scheduler.Orders(),
				Requests:  scheduler.Requests(),
				Failures:  failures.Events(),
			}
			if err := store.Save(ctx, snap); err != nil {
				log.WithError(err).Warn("Failed to persist state after usage update")
			}
		}
		startUsageIngest(broker, scheduler, persist)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.WithFields(log.Fields{"port": port}).Info("Maintenance API listening")
	log.Fatal(http.ListenAndServe(":"+port, handler.Routes()))
}

// restoreState reloads the persisted engine state. A load failure starts
// the engine empty rather than refusing to boot.
func restoreState(store db.StateStore, scheduler *maintenance.Scheduler, inventory *maintenance.Inventory, failures *maintenance.FailureLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	snap, err := store.Load(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to load persisted state; starting empty")
		return
	}
	for _, eq := range snap.Equipment {
		scheduler.RestoreEquipment(eq)
	}
	for _, part := range snap.Parts {
		inventory.AddPart(part.Name, part.Stock, part.Minimum, part.FitsComponents)
	}
	for _, order := range snap.Orders {
		scheduler.RestoreOrder(order)
	}
	for _, req := range snap.Requests {
		scheduler.RestoreRequest(req)
	}
	for _, event := range snap.Failures {
		failures.RestoreEvent(event)
	}
	log.WithFields(log.Fields{
		"equipment": len(snap.Equipment),
		"orders":    len(snap.Orders),
		"failures":  len(snap.Failures),
	}).Info("Restored maintenance state")
}

func startUsageIngest(broker string, scheduler *maintenance.Scheduler, persist func()) {
	topic := os.Getenv("MQTT_TOPIC")
	if topic == "" {
		topic = "fleet/usage"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("fleet-maintenance-api").
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.WithError(token.Error()).Warn("MQTT connect failed; usage ingest disabled")
		return
	}
	consumer := ingest.NewConsumer(scheduler, persist)
	if err := consumer.Subscribe(client, topic); err != nil {
		log.WithError(err).Warn("MQTT subscribe failed; usage ingest disabled")
		return
	}
	log.WithFields(log.Fields{"broker": broker, "topic": topic}).Info("Usage ingest subscribed")
}
