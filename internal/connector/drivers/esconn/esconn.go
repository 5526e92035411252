// Package esconn implements the Elasticsearch verification driver.
package esconn

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/probeflow/probeflow/internal/connector"
	"github.com/probeflow/probeflow/internal/core"
)

// esDriver speaks the Elasticsearch REST API. The query's first line is
// "METHOD /path"; any following lines form the JSON request body, e.g.
//
//	GET /orders/_search
//	{"query":{"term":{"status":"PAID"}}}
type esDriver struct{}

func (esDriver) Type() core.ConnectorType { return core.ConnectorElasticsearch }

func (esDriver) Execute(ctx context.Context, config map[string]string, query string) (string, error) {
	method, path, body, err := parseQuery(query)
	if err != nil {
		return "", err
	}

	req := newClient(config).R().SetContext(ctx)
	if body != "" {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return "", fmt.Errorf("elasticsearch request failed: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return "", fmt.Errorf("elasticsearch returned %d: %s", resp.StatusCode(), resp.String())
	}
	return resp.String(), nil
}

func (esDriver) Ping(ctx context.Context, config map[string]string) error {
	resp, err := newClient(config).R().SetContext(ctx).Get("/")
	if err != nil {
		return fmt.Errorf("elasticsearch unreachable: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("elasticsearch returned %d", resp.StatusCode())
	}
	return nil
}

func newClient(config map[string]string) *resty.Client {
	baseURL := config["url"]
	if baseURL == "" {
		port := config["port"]
		if port == "" {
			port = "9200"
		}
		baseURL = fmt.Sprintf("http://%s:%s", config["host"], port)
	}
	client := resty.New().SetBaseURL(baseURL)
	if config["username"] != "" {
		client.SetBasicAuth(config["username"], config["password"])
	}
	return client
}

func parseQuery(query string) (method, path, body string, err error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", "", "", fmt.Errorf("empty elasticsearch query")
	}
	firstLine, rest, _ := strings.Cut(trimmed, "\n")
	fields := strings.Fields(firstLine)
	if len(fields) != 2 {
		return "", "", "", fmt.Errorf("elasticsearch query must start with \"METHOD /path\", got %q", firstLine)
	}
	return strings.ToUpper(fields[0]), fields[1], strings.TrimSpace(rest), nil
}

func init() {
	connector.Register(esDriver{})
}
