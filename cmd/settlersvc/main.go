package main

import (
	"os"
	"os/signal"

	config "github.com/versusgg/versus-services/configs"
	"github.com/versusgg/versus-services/internal/matchsvc/broker"
	"github.com/versusgg/versus-services/internal/matchsvc/db"
	"github.com/versusgg/versus-services/internal/matchsvc/service"
	"github.com/versusgg/versus-services/internal/matchsvc/store"
	nats "github.com/versusgg/versus-services/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "settler"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {

	// pg connection
	dbpool, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	settlementStore := store.NewSettlementStore(dbpool)
	settlerService := service.NewSettlerService(settlementStore)

	// Connect to NATS
	n, err := nats.Connect()
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(0)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	b := broker.NewBroker(n.Conn, settlerService)

	sub, err := b.SubscribeMatchCompleted("settler")
	if err != nil {
		log.Errorf("Error: unable to subscribe to queue %v", err)
		os.Exit(0)
	}

	log.Infof("%s service consuming match.completed", SERVICE_NAME)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	sub.Unsubscribe()
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
