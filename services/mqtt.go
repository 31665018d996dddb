package services

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"smartbee/config"
)

// MQTTListener keeps a persistent wildcard subscription on the sensor data
// topic and feeds every message into the pipeline. The paho handler runs on
// the client's internal goroutine and must not block, so all it does is copy
// the payload and enqueue.
type MQTTListener struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger
}

// NewMQTTListener connects to the broker and subscribes. The subscription is
// installed from OnConnect so it survives reconnects.
func NewMQTTListener(cfg *config.Config, pipeline *Pipeline, logger *zap.Logger) (*MQTTListener, error) {
	l := &MQTTListener{topic: cfg.MQTTTopic, logger: logger}
	handler := l.handler(pipeline)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBrokerURL).
		SetClientID(cfg.MQTTClientID).
		SetUsername(cfg.MQTTUsername).
		SetPassword(cfg.MQTTPassword).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Info("Connected to MQTT broker", zap.String("broker", cfg.MQTTBrokerURL))
			tok := c.Subscribe(cfg.MQTTTopic, 1, handler)
			if ok := tok.WaitTimeout(10 * time.Second); !ok {
				logger.Warn("MQTT subscribe timed out", zap.String("topic", cfg.MQTTTopic))
				return
			}
			if err := tok.Error(); err != nil {
				logger.Error("MQTT subscribe failed", zap.String("topic", cfg.MQTTTopic), zap.Error(err))
				return
			}
			logger.Info("Subscribed to sensor data topic", zap.String("topic", cfg.MQTTTopic))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT connection lost, will reconnect", zap.Error(err))
		})

	l.client = mqtt.NewClient(opts)
	tok := l.client.Connect()
	if ok := tok.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("MQTT connect timed out")
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connect: %w", err)
	}
	return l, nil
}

// handler extracts the node ID from the topic and enqueues the payload. The
// payload is copied because paho reuses the underlying buffer.
func (l *MQTTListener) handler(pipeline *Pipeline) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		nodeID := nodeIDFromTopic(msg.Topic())
		if nodeID == "" {
			messagesInvalid.Inc()
			l.logger.Warn("Message on unexpected topic dropped", zap.String("topic", msg.Topic()))
			return
		}

		payload := msg.Payload()
		data := make([]byte, len(payload))
		copy(data, payload)

		pipeline.Enqueue(nodeID, data)
	}
}

// Close disconnects from the broker, allowing a short quiesce for in-flight
// QoS-1 deliveries.
func (l *MQTTListener) Close() {
	l.client.Disconnect(250)
}

// nodeIDFromTopic extracts the node identifier from a data topic of the form
// "<namespace>/<nodeId>/data". Anything else yields "".
func nodeIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[1] == "" || parts[2] != "data" {
		return ""
	}
	return parts[1]
}

// nodeIDFromRoutingKey extracts the node identifier from an AMQP routing key
// of the form "<namespace>.<nodeId>.data", the shape the broker's MQTT plugin
// produces for the same topic.
func nodeIDFromRoutingKey(key string) string {
	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[1] == "" || parts[2] != "data" {
		return ""
	}
	return parts[1]
}
