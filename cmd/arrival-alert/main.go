package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-arrival-alert/internal/alert"
	"github.com/mr1hm/go-arrival-alert/internal/api"
	"github.com/mr1hm/go-arrival-alert/internal/config"
	"github.com/mr1hm/go-arrival-alert/internal/engine"
	"github.com/mr1hm/go-arrival-alert/internal/geocode"
	"github.com/mr1hm/go-arrival-alert/internal/location"
	"github.com/mr1hm/go-arrival-alert/internal/logging"
	"github.com/mr1hm/go-arrival-alert/internal/stream"
	"github.com/mr1hm/go-arrival-alert/internal/tracker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	eng, err := engine.New(engine.Options{
		AlertRadiusKm:  cfg.Engine.AlertRadiusKm,
		ClearRadiusKm:  cfg.Engine.ClearRadiusKm,
		VibratePattern: cfg.Engine.VibratePattern,
	})
	if err != nil {
		logging.Fatalf("Failed to build alert engine: %v", err)
	}

	events := stream.NewBroadcaster()

	// Location samples arrive over MQTT when enabled; without it the
	// map surface can still push samples through the HTTP API.
	var (
		provider     location.Provider
		mqttProvider *location.MQTTProvider
		mqttClient   mqtt.Client
	)
	if cfg.MQTT.Enabled {
		opts := mqtt.NewClientOptions().
			AddBroker(cfg.MQTT.BrokerURL).
			SetClientID(cfg.MQTT.ClientID)

		mqttClient = mqtt.NewClient(opts)
		if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
			logging.Fatalf("Failed to connect to MQTT broker: %v", token.Error())
		}

		mqttProvider, err = location.NewMQTTProvider(mqttClient, cfg.MQTT.Topic)
		if err != nil {
			logging.Fatalf("Failed to subscribe to location topic: %v", err)
		}
		provider = mqttProvider
		slog.Info("location provider ready", "broker", cfg.MQTT.BrokerURL, "topic", cfg.MQTT.Topic)
	}

	resolver := geocode.NewResolver(geocode.NewNominatimClient(geocode.NominatimOptions{
		BaseURL:   cfg.Geocoder.BaseURL,
		UserAgent: cfg.Geocoder.UserAgent,
		Timeout:   cfg.Geocoder.Timeout,
	}))

	tr := tracker.New(tracker.Config{
		Engine:   eng,
		Provider: provider,
		Resolver: resolver,
		Sink:     alert.LogSink{},
		Events:   events,
		TrackOpts: location.SubscribeOptions{
			MinInterval:  cfg.Tracking.MinInterval,
			MinDistanceM: cfg.Tracking.MinDistanceM,
		},
	})

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(10))

	handler := api.NewHandler(tr, events)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	tr.StopTracking()
	if mqttProvider != nil {
		if err := mqttProvider.Close(); err != nil {
			slog.Error("error releasing location subscription", "error", err)
		}
		mqttClient.Disconnect(250)
	}
	events.Close() // Close all streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
