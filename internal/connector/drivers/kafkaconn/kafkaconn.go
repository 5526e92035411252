// Package kafkaconn implements the Kafka verification driver.
package kafkaconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/probeflow/probeflow/internal/cmn/stringutil"
	"github.com/probeflow/probeflow/internal/connector"
	"github.com/probeflow/probeflow/internal/core"
)

// kafkaDriver consumes one message from a topic. The query is line
// based:
//
//	topic=order-events
//	key=order-123
//
// The key line is optional; when present only messages with that exact
// key match. Consumption starts at the end of the topic under an
// ephemeral group, so only messages produced after the listener opened
// are seen. JSON message values pass through untouched; anything else
// is wrapped as {"value": ...}.
type kafkaDriver struct{}

func (kafkaDriver) Type() core.ConnectorType { return core.ConnectorKafka }

func (kafkaDriver) Execute(ctx context.Context, config map[string]string, query string) (string, error) {
	topic, key, err := parseQuery(query)
	if err != nil {
		return "", err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokerList(config),
		Topic:       topic,
		GroupID:     "probeflow-" + uuid.NewString(),
		StartOffset: kafka.LastOffset,
	})
	defer func() {
		_ = reader.Close()
	}()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return "", fmt.Errorf("no matching message on topic %q before timeout", topic)
			}
			return "", fmt.Errorf("kafka read failed: %w", err)
		}
		if key != "" && string(msg.Key) != key {
			continue
		}
		return encodeMessage(msg)
	}
}

func (kafkaDriver) Ping(ctx context.Context, config map[string]string) error {
	brokers := brokerList(config)
	if len(brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("kafka broker unreachable: %w", err)
	}
	return conn.Close()
}

func brokerList(config map[string]string) []string {
	if raw := config["brokers"]; raw != "" {
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	host := config["host"]
	if host == "" {
		return nil
	}
	port := config["port"]
	if port == "" {
		port = "9092"
	}
	return []string{net.JoinHostPort(host, port)}
}

func parseQuery(query string) (topic, key string, err error) {
	for _, line := range strings.Split(query, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, "=")
		if !found {
			return "", "", fmt.Errorf("invalid kafka query line %q, want name=value", line)
		}
		switch strings.TrimSpace(name) {
		case "topic":
			topic = strings.TrimSpace(value)
		case "key":
			key = strings.TrimSpace(value)
		default:
			return "", "", fmt.Errorf("unknown kafka query option %q", strings.TrimSpace(name))
		}
	}
	if topic == "" {
		return "", "", fmt.Errorf("kafka query must name a topic")
	}
	return topic, key, nil
}

func encodeMessage(msg kafka.Message) (string, error) {
	value := string(msg.Value)
	if stringutil.IsJSON(value) {
		return value, nil
	}
	encoded, err := json.Marshal(map[string]string{"value": value})
	if err != nil {
		return "", fmt.Errorf("failed to encode kafka message: %w", err)
	}
	return string(encoded), nil
}

func init() {
	connector.Register(kafkaDriver{})
}
