// Package redisconn implements the Redis verification driver.
package redisconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/probeflow/probeflow/internal/cmn/stringutil"
	"github.com/probeflow/probeflow/internal/connector"
	"github.com/probeflow/probeflow/internal/core"
)

// redisDriver executes whitespace-separated Redis commands, e.g.
// "GET session:42" or "HGET order:7 status". Replies that are already
// JSON pass through untouched; anything else is wrapped as
// {"result": ...} so assertions always walk JSON.
type redisDriver struct{}

func (redisDriver) Type() core.ConnectorType { return core.ConnectorRedis }

func (redisDriver) Execute(ctx context.Context, config map[string]string, query string) (string, error) {
	client := newClient(config)
	defer func() {
		_ = client.Close()
	}()

	parts := strings.Fields(query)
	if len(parts) == 0 {
		return "", fmt.Errorf("empty redis command")
	}
	args := make([]any, len(parts))
	for i, p := range parts {
		args[i] = p
	}

	reply, err := client.Do(ctx, args...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return `{"result":null}`, nil
		}
		return "", fmt.Errorf("redis command failed: %w", err)
	}
	return encodeReply(reply)
}

func (redisDriver) Ping(ctx context.Context, config map[string]string) error {
	client := newClient(config)
	defer func() {
		_ = client.Close()
	}()
	return client.Ping(ctx).Err()
}

func newClient(config map[string]string) *redis.Client {
	host := config["host"]
	port := config["port"]
	if port == "" {
		port = "6379"
	}
	db := 0
	if raw := config["db"]; raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			db = parsed
		}
	}
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Username: config["username"],
		Password: config["password"],
		DB:       db,
	})
}

func encodeReply(reply any) (string, error) {
	if s, ok := reply.(string); ok && stringutil.IsJSON(s) {
		return s, nil
	}
	encoded, err := json.Marshal(map[string]any{"result": reply})
	if err != nil {
		return "", fmt.Errorf("failed to encode redis reply: %w", err)
	}
	return string(encoded), nil
}

func init() {
	connector.Register(redisDriver{})
}
