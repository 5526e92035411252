// Package mongoconn implements the MongoDB verification driver.
package mongoconn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/probeflow/probeflow/internal/connector"
	"github.com/probeflow/probeflow/internal/core"
)

// mongoDriver runs find queries. The query is a JSON document:
//
//	{"collection":"orders","filter":{"status":"PAID"},"limit":10}
//
// The result is a JSON array of matching documents in relaxed extended
// JSON, so ObjectIds appear as {"$oid": "..."}.
type mongoDriver struct{}

type mongoQuery struct {
	Collection string          `json:"collection"`
	Filter     json.RawMessage `json:"filter,omitempty"`
	Limit      int64           `json:"limit,omitempty"`
}

func (mongoDriver) Type() core.ConnectorType { return core.ConnectorMongoDB }

func (mongoDriver) Execute(ctx context.Context, config map[string]string, query string) (string, error) {
	var q mongoQuery
	if err := json.Unmarshal([]byte(query), &q); err != nil {
		return "", fmt.Errorf("mongodb query must be JSON with a collection field: %w", err)
	}
	if q.Collection == "" {
		return "", fmt.Errorf("mongodb query must name a collection")
	}
	database := config["database"]
	if database == "" {
		return "", fmt.Errorf("mongodb connector config must name a database")
	}

	filter := bson.D{}
	if len(q.Filter) > 0 {
		if err := bson.UnmarshalExtJSON(q.Filter, false, &filter); err != nil {
			return "", fmt.Errorf("invalid mongodb filter: %w", err)
		}
	}

	client, err := mongo.Connect(options.Client().ApplyURI(mongoURI(config)))
	if err != nil {
		return "", fmt.Errorf("mongodb unreachable: %w", err)
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()

	findOpts := options.Find()
	if q.Limit > 0 {
		findOpts.SetLimit(q.Limit)
	}
	cursor, err := client.Database(database).Collection(q.Collection).Find(ctx, filter, findOpts)
	if err != nil {
		return "", fmt.Errorf("mongodb find failed: %w", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var docs []string
	for cursor.Next(ctx) {
		encoded, err := bson.MarshalExtJSON(cursor.Current, false, false)
		if err != nil {
			return "", fmt.Errorf("failed to encode mongodb document: %w", err)
		}
		docs = append(docs, string(encoded))
	}
	if err := cursor.Err(); err != nil {
		return "", fmt.Errorf("mongodb cursor failed: %w", err)
	}
	return "[" + strings.Join(docs, ",") + "]", nil
}

func (mongoDriver) Ping(ctx context.Context, config map[string]string) error {
	client, err := mongo.Connect(options.Client().ApplyURI(mongoURI(config)))
	if err != nil {
		return fmt.Errorf("mongodb unreachable: %w", err)
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()
	return client.Ping(ctx, nil)
}

func mongoURI(config map[string]string) string {
	if uri := config["uri"]; uri != "" {
		return uri
	}
	port := config["port"]
	if port == "" {
		port = "27017"
	}
	u := url.URL{
		Scheme: "mongodb",
		Host:   fmt.Sprintf("%s:%s", config["host"], port),
	}
	if config["username"] != "" {
		u.User = url.UserPassword(config["username"], config["password"])
	}
	return u.String()
}

func init() {
	connector.Register(mongoDriver{})
}
