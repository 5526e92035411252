// Package rabbitconn implements the RabbitMQ verification driver.
package rabbitconn

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/probeflow/probeflow/internal/cmn/stringutil"
	"github.com/probeflow/probeflow/internal/connector"
	"github.com/probeflow/probeflow/internal/core"
)

// rabbitDriver consumes one message from a queue. The query is line
// based:
//
//	queue=order-events
//
// JSON message bodies pass through untouched; anything else is wrapped
// as {"value": ...}.
type rabbitDriver struct{}

func (rabbitDriver) Type() core.ConnectorType { return core.ConnectorRabbitMQ }

func (rabbitDriver) Execute(ctx context.Context, config map[string]string, query string) (string, error) {
	queue, err := parseQuery(query)
	if err != nil {
		return "", err
	}

	conn, ch, err := open(config)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = ch.Close()
		_ = conn.Close()
	}()

	deliveries, err := ch.Consume(queue, "", true, false, false, false, nil)
	if err != nil {
		return "", fmt.Errorf("failed to consume from queue %q: %w", queue, err)
	}

	select {
	case d, ok := <-deliveries:
		if !ok {
			return "", fmt.Errorf("queue %q consumer closed", queue)
		}
		return encodeBody(d.Body)
	case <-ctx.Done():
		return "", fmt.Errorf("no message on queue %q before timeout", queue)
	}
}

func (rabbitDriver) Ping(ctx context.Context, config map[string]string) error {
	done := make(chan error, 1)
	go func() {
		conn, ch, err := open(config)
		if err != nil {
			done <- err
			return
		}
		_ = ch.Close()
		_ = conn.Close()
		done <- nil
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("rabbitmq dial timed out: %w", ctx.Err())
	}
}

func open(config map[string]string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(amqpURL(config))
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq unreachable: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	return conn, ch, nil
}

func amqpURL(config map[string]string) string {
	if u := config["url"]; u != "" {
		return u
	}
	port := config["port"]
	if port == "" {
		port = "5672"
	}
	user := config["username"]
	if user == "" {
		user = "guest"
	}
	pass := config["password"]
	if pass == "" {
		pass = "guest"
	}
	vhost := config["vhost"]
	if vhost == "" {
		vhost = "/"
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s%s", user, pass, config["host"], port, vhostPath(vhost))
}

func vhostPath(vhost string) string {
	if vhost == "/" {
		return "/"
	}
	return "/" + strings.TrimPrefix(vhost, "/")
}

func parseQuery(query string) (string, error) {
	var queue string
	for _, line := range strings.Split(query, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, "=")
		if !found {
			return "", fmt.Errorf("invalid rabbitmq query line %q, want name=value", line)
		}
		switch strings.TrimSpace(name) {
		case "queue":
			queue = strings.TrimSpace(value)
		default:
			return "", fmt.Errorf("unknown rabbitmq query option %q", strings.TrimSpace(name))
		}
	}
	if queue == "" {
		return "", fmt.Errorf("rabbitmq query must name a queue")
	}
	return queue, nil
}

func encodeBody(body []byte) (string, error) {
	value := string(body)
	if stringutil.IsJSON(value) {
		return value, nil
	}
	encoded, err := json.Marshal(map[string]string{"value": value})
	if err != nil {
		return "", fmt.Errorf("failed to encode rabbitmq message: %w", err)
	}
	return string(encoded), nil
}

func init() {
	connector.Register(rabbitDriver{})
}
