package services

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"smartbee/config"
)

// AMQPListener is the alternative transport for deployments where sensors
// publish through the broker's MQTT plugin and the service consumes from a
// bound queue instead of subscribing directly. It declares a durable queue
// bound both to its own exchange and to amq.topic, and reconnects on
// connection loss.
type AMQPListener struct {
	cfg       *config.Config
	conn      *amqp.Connection
	channel   *amqp.Channel
	logger    *zap.Logger
	reconnect chan bool
	isClosing bool
}

// NewAMQPListener connects to the broker and declares the queue topology.
func NewAMQPListener(cfg *config.Config, logger *zap.Logger) (*AMQPListener, error) {
	l := &AMQPListener{
		cfg:       cfg,
		logger:    logger,
		reconnect: make(chan bool),
	}
	if err := l.connect(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *AMQPListener) connect() error {
	var err error

	l.logger.Info("Connecting to AMQP broker", zap.String("url", l.cfg.AMQPURL))

	maxRetries := 5
	for attempt := 1; attempt <= maxRetries; attempt++ {
		l.conn, err = amqp.Dial(l.cfg.AMQPURL)
		if err == nil {
			break
		}

		l.logger.Warn("Failed to connect to AMQP broker",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP broker after %d attempts: %w", maxRetries, err)
	}

	l.channel, err = l.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := l.channel.Qos(10, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := l.channel.ExchangeDeclare(
		l.cfg.AMQPExchange, "topic", true, false, false, false, nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := l.channel.QueueDeclare(l.cfg.AMQPQueue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := l.channel.QueueBind(
		queue.Name, l.cfg.AMQPBindingKey, l.cfg.AMQPExchange, false, nil,
	); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	// amq.topic carries messages routed in by the MQTT plugin; topic slashes
	// become dots in the routing key.
	if err := l.channel.QueueBind(
		queue.Name, l.cfg.AMQPBindingKey, "amq.topic", false, nil,
	); err != nil {
		return fmt.Errorf("failed to bind queue to MQTT exchange: %w", err)
	}

	l.logger.Info("AMQP queue bound",
		zap.String("queue", queue.Name),
		zap.String("exchange", l.cfg.AMQPExchange),
		zap.String("binding_key", l.cfg.AMQPBindingKey))

	go l.handleReconnect()

	return nil
}

// handleReconnect re-dials after a lost connection until it succeeds or the
// listener is closing.
func (l *AMQPListener) handleReconnect() {
	closeErr := <-l.conn.NotifyClose(make(chan *amqp.Error))
	if l.isClosing {
		l.logger.Info("AMQP connection closed gracefully")
		return
	}

	l.logger.Error("AMQP connection lost", zap.Error(closeErr))

	for {
		l.logger.Info("Attempting to reconnect to AMQP broker")
		if err := l.connect(); err == nil {
			l.logger.Info("Reconnected to AMQP broker")
			l.reconnect <- true
			return
		} else {
			l.logger.Error("Failed to reconnect", zap.Error(err))
			time.Sleep(5 * time.Second)
		}
	}
}

// Consume drains deliveries into the pipeline until the context is
// cancelled. Deliveries are always acked: decode failures are handled (and
// dropped) downstream, and requeueing a malformed payload would only loop it.
func (l *AMQPListener) Consume(ctx context.Context, pipeline *Pipeline) error {
	for {
		msgs, err := l.channel.Consume(l.cfg.AMQPQueue, "smartbee-ingest", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to register consumer: %w", err)
		}

		l.logger.Info("Consuming sensor messages from AMQP queue",
			zap.String("queue", l.cfg.AMQPQueue))

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				l.logger.Info("Stopping AMQP consumer")
				return nil

			case <-l.reconnect:
				l.logger.Info("Reconnection detected, restarting consumer")
				break consumeLoop

			case msg, ok := <-msgs:
				if !ok {
					// Broker outage: the channel is stale until handleReconnect
					// has re-dialed, so wait for its signal before consuming.
					l.logger.Warn("AMQP delivery channel closed, waiting for reconnect")
					if !l.waitReconnect(ctx) {
						return nil
					}
					break consumeLoop
				}

				nodeID := nodeIDFromRoutingKey(msg.RoutingKey)
				if nodeID == "" {
					messagesInvalid.Inc()
					l.logger.Warn("Message with unexpected routing key dropped",
						zap.String("routing_key", msg.RoutingKey))
				} else {
					data := make([]byte, len(msg.Body))
					copy(data, msg.Body)
					pipeline.Enqueue(nodeID, data)
				}
				msg.Ack(false)
			}
		}
	}
}

// waitReconnect blocks until the connection has been re-established or the
// context is cancelled. It reports whether consuming should resume.
func (l *AMQPListener) waitReconnect(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-l.reconnect:
		return true
	}
}

// Close gracefully closes the AMQP connection.
func (l *AMQPListener) Close() error {
	l.isClosing = true

	if l.channel != nil {
		if err := l.channel.Close(); err != nil {
			l.logger.Error("Error closing AMQP channel", zap.Error(err))
		}
	}
	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			l.logger.Error("Error closing AMQP connection", zap.Error(err))
			return err
		}
	}

	l.logger.Info("AMQP connection closed")
	return nil
}
