package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var (
	rps         = flag.Int("rps", 1, "Messages per second to publish")
	nodeID      = flag.String("node", "BEE001", "Node ID to publish as")
	anomaly     = flag.Float64("anomaly", 0.1, "Probability of an out-of-range value (0.0-1.0)")
	legacy      = flag.Float64("legacy", 0.3, "Probability of legacy (Spanish) field names")
	mqttBroker  = flag.String("broker", "localhost:1883", "MQTT broker address (host:port)")
	mqttUser    = flag.String("user", "", "MQTT username")
	mqttPass    = flag.String("pass", "", "MQTT password")
	topicPrefix = flag.String("prefix", "smartbee", "Topic namespace, messages go to <prefix>/<node>/data")
)

// MockNodeGenerator produces beehive sensor payloads, mixing current and
// legacy firmware field naming the way a real fleet does.
type MockNodeGenerator struct {
	nodeID      string
	anomalyProb float64
	legacyProb  float64
	baseTemp    float64
	baseWeight  float64
}

func NewMockNodeGenerator(nodeID string, anomalyProb, legacyProb float64) *MockNodeGenerator {
	return &MockNodeGenerator{
		nodeID:      nodeID,
		anomalyProb: anomalyProb,
		legacyProb:  legacyProb,
		baseTemp:    32.0, // brood nest sits around 32-35°C
		baseWeight:  45.0,
	}
}

// Generate builds one payload. Legacy payloads use the Spanish field names
// older firmware emits.
func (g *MockNodeGenerator) Generate() map[string]any {
	isAnomaly := rand.Float64() < g.anomalyProb

	temperature := g.baseTemp + rand.Float64()*4.0 - 2.0
	if isAnomaly {
		if rand.Float64() < 0.5 {
			temperature = 38.0 + rand.Float64()*4.0 // above threshold
		} else {
			temperature = 8.0 + rand.Float64()*6.0 // below threshold
		}
	}

	humidity := 55.0 + rand.Float64()*10.0 - 5.0
	if isAnomaly && rand.Float64() < 0.3 {
		humidity = 85.0 + rand.Float64()*10.0
	}

	weight := g.baseWeight + rand.Float64()*2.0 - 1.0
	if isAnomaly && rand.Float64() < 0.2 {
		weight = 20.0 + rand.Float64()*8.0
	}

	battery := 60.0 + rand.Float64()*40.0
	signal := -60.0 - rand.Float64()*30.0

	round := func(v float64) float64 { return math.Round(v*10) / 10 }

	payload := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if rand.Float64() < g.legacyProb {
		payload["temperatura"] = round(temperature)
		payload["humedad"] = round(humidity)
		payload["peso"] = round(weight)
		payload["nivel_bateria"] = round(battery)
		payload["fuerza_senal"] = round(signal)
	} else {
		payload["temperature"] = round(temperature)
		payload["humidity"] = round(humidity)
		payload["weight"] = round(weight)
		payload["battery"] = round(battery)
		payload["signal"] = round(signal)
	}
	return payload
}

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	topic := fmt.Sprintf("%s/%s/data", *topicPrefix, *nodeID)

	logger.Info("SmartBee mock node started",
		zap.String("node_id", *nodeID),
		zap.Int("rps", *rps),
		zap.Float64("anomaly_probability", *anomaly),
		zap.String("broker", *mqttBroker),
		zap.String("topic", topic),
	)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", *mqttBroker))
	opts.SetClientID(fmt.Sprintf("%s-generator", *nodeID))
	opts.SetUsername(*mqttUser)
	opts.SetPassword(*mqttPass)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", *mqttBroker))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	mqttClient := mqtt.NewClient(opts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatal("Failed to connect to MQTT broker", zap.Error(token.Error()))
	}
	defer mqttClient.Disconnect(250)

	gen := NewMockNodeGenerator(*nodeID, *anomaly, *legacy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping generator")
		cancel()
	}()

	interval := time.Second / time.Duration(*rps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	messageCount := 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			elapsed := time.Since(startTime)
			logger.Info("Generator stopped",
				zap.Int("total_messages", messageCount),
				zap.Duration("uptime", elapsed),
				zap.Float64("avg_rate", float64(messageCount)/elapsed.Seconds()),
			)
			mqttClient.Disconnect(250)
			return

		case <-ticker.C:
			payload := gen.Generate()
			jsonData, err := json.Marshal(payload)
			if err != nil {
				logger.Error("Failed to marshal payload", zap.Error(err))
				continue
			}

			token := mqttClient.Publish(topic, 1, false, jsonData)
			if token.Wait() && token.Error() != nil {
				logger.Error("Failed to publish MQTT message", zap.Error(token.Error()))
				continue
			}
			messageCount++

			if messageCount%100 == 0 {
				logger.Info("Messages published",
					zap.Int("count", messageCount),
					zap.Float64("rate", float64(messageCount)/time.Since(startTime).Seconds()),
				)
			}
		}
	}
}
