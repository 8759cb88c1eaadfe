package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	config "github.com/versusgg/versus-services/configs"
	"github.com/versusgg/versus-services/internal/matchsvc/broker"
	"github.com/versusgg/versus-services/internal/matchsvc/db"
	handlers "github.com/versusgg/versus-services/internal/matchsvc/handlers"
	"github.com/versusgg/versus-services/internal/matchsvc/service"
	"github.com/versusgg/versus-services/internal/matchsvc/session"
	"github.com/versusgg/versus-services/internal/matchsvc/store"
	"github.com/versusgg/versus-services/internal/matchsvc/ws"
	nats "github.com/versusgg/versus-services/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "match"

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

	matchStore := store.NewMatchStore(dbpool)
	statsStore := store.NewStatsStore(dbpool)
	achievementStore := store.NewAchievementStore(dbpool)
	settlementStore := store.NewSettlementStore(dbpool)

	// Connect to NATS
	n, err := nats.Connect()
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(0)
	}

	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	settlerService := service.NewSettlerService(settlementStore)
	b := broker.NewBroker(n.Conn, settlerService)

	// single-node deployments settle in-process instead of running settlersvc
	if os.Getenv("SETTLER_INLINE") == "1" {
		sub, err := b.SubscribeMatchCompleted("settler")
		if err != nil {
			log.Errorf("Error: unable to subscribe to queue %v", err)
			os.Exit(0)
		}
		defer sub.Unsubscribe()
		log.Infof("inline settler subscribed")
	}

	// session actor runtime
	idleTimeout := config.DurationEnv("ROOM_IDLE_TIMEOUT", 5*time.Minute)
	graceWindow := config.DurationEnv("ROOM_GRACE_WINDOW", 90*time.Second)
	sessions := session.NewManager(idleTimeout, graceWindow)

	ratingService := service.NewRatingService()
	matchService := service.NewMatchService(matchStore, statsStore, sessions, ratingService, b)

	sessions.SetAbandonHandler(matchService.SettleAbandoned)
	sessions.Start(15 * time.Second)
	defer sessions.Stop()

	socket := ws.NewWs(matchService, sessions)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	rateLimitStr := os.Getenv("RATE_LIMIT")
	rateLimit, err := strconv.Atoi(rateLimitStr)
	if err != nil {
		log.Fatalf("Invalid RATE_LIMIT value: %v", err)
	}
	r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(matchService, statsStore, achievementStore, socket, sessions)
	h.InitAuth()
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + os.Getenv("MATCH_SERVICE_PORT"),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
