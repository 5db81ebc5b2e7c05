// Package messaging publishes staging commit notifications to Kafka
// for external catalog tooling. stockbench only produces; there is no
// consumer side.
package messaging

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"stockbench/config"
)

type Client struct {
	mu     sync.RWMutex
	cfg    *config.MessagingConfig
	writer *kafka.Writer
}

func NewClient(cfg *config.MessagingConfig) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	// Verify at least one broker is reachable
	var conn *kafka.Conn
	var connErr error
	for _, broker := range c.cfg.Kafka.Brokers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, connErr = kafka.DialContext(ctx, "tcp", broker)
		cancel()
		if connErr == nil {
			log.Printf("messaging: kafka connected to %s", broker)
			break
		}
	}
	if connErr != nil {
		return fmt.Errorf("kafka connect: %w", connErr)
	}

	c.ensureTopics(conn, c.cfg.CommitsTopic)
	conn.Close()

	c.writer = &kafka.Writer{
		Addr:     kafka.TCP(c.cfg.Kafka.Brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return nil
}

func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.writer == nil {
		return fmt.Errorf("kafka not connected")
	}
	return c.writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Value: payload,
	})
}

// ensureTopics creates Kafka topics if they don't already exist.
// Errors are logged but not fatal since the broker may have
// auto.create.topics.enable=true anyway.
func (c *Client) ensureTopics(conn *kafka.Conn, topics ...string) {
	if len(topics) == 0 {
		return
	}

	controller, err := conn.Controller()
	if err != nil {
		log.Printf("messaging: cannot find controller for topic creation: %v", err)
		return
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := kafka.Dial("tcp", controllerAddr)
	if err != nil {
		log.Printf("messaging: cannot connect to controller: %v", err)
		return
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, len(topics))
	for i, t := range topics {
		configs[i] = kafka.TopicConfig{
			Topic:             t,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}

	if err := controllerConn.CreateTopics(configs...); err != nil {
		log.Printf("messaging: topic auto-create: %v", err)
	} else {
		log.Printf("messaging: ensured topics exist: %v", topics)
	}
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writer != nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writer != nil {
		c.writer.Close()
		c.writer = nil
	}
}
