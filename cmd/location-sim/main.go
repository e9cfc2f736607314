// location-sim publishes synthetic GPS samples to the MQTT topic the
// daemon listens on, walking from a start point toward a target and a
// bit past it, so the whole approach/alert/re-arm cycle can be
// exercised without a device.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mr1hm/go-arrival-alert/internal/geo"
)

type sampleMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	topic := flag.String("topic", "device/location", "topic to publish samples to")
	startLat := flag.Float64("start-lat", 9.9312, "start latitude")
	startLon := flag.Float64("start-lon", 76.2673, "start longitude")
	targetLat := flag.Float64("target-lat", 10.0558, "target latitude")
	targetLon := flag.Float64("target-lon", 76.6183, "target longitude")
	speedKmh := flag.Float64("speed", 60, "simulated speed in km/h")
	interval := flag.Duration("interval", 2*time.Second, "publish interval")
	flag.Parse()

	if v := os.Getenv("MQTT_BROKER_URL"); v != "" && *broker == "tcp://localhost:1883" {
		*broker = v
	}

	opts := mqtt.NewClientOptions().
		AddBroker(*broker).
		SetClientID("location-sim")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("mqtt connect: %v", token.Error())
	}
	defer client.Disconnect(250)

	pos := geo.Coordinate{Lat: *startLat, Lon: *startLon}
	target := geo.Coordinate{Lat: *targetLat, Lon: *targetLon}
	stepKm := *speedKmh / 3600 * interval.Seconds()

	log.Printf("connected to %s, walking from (%.4f, %.4f) toward (%.4f, %.4f) at %.0f km/h",
		*broker, pos.Lat, pos.Lon, target.Lat, target.Lon, *speedKmh)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			log.Println("stopping")
			return
		case <-ticker.C:
			pos = stepToward(pos, target, stepKm)

			payload, _ := json.Marshal(sampleMessage{
				Latitude:  pos.Lat,
				Longitude: pos.Lon,
				Timestamp: time.Now().Unix(),
			})

			token := client.Publish(*topic, 1, false, payload)
			token.Wait()

			log.Printf("published %s (%.2f km to target)", payload, geo.DistanceKm(pos, target))
		}
	}
}

// stepToward moves pos stepKm kilometers along the straight line to
// target, overshooting once it arrives so the clear band gets exercised
// on the far side.
func stepToward(pos, target geo.Coordinate, stepKm float64) geo.Coordinate {
	remaining := geo.DistanceKm(pos, target)
	if remaining == 0 {
		return geo.Coordinate{Lat: pos.Lat + stepKm/111.19, Lon: pos.Lon}
	}

	frac := stepKm / remaining
	return geo.Coordinate{
		Lat: pos.Lat + (target.Lat-pos.Lat)*frac,
		Lon: pos.Lon + (target.Lon-pos.Lon)*frac,
	}
}
