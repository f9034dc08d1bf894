package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"mcot/experiments/metrics"
	"mcot/tree"
)

// Client reads progress from a stats server.
type Client struct {
	serverURL string
	http      *http.Client
}

func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		http:      http.DefaultClient,
	}
}

func (c *Client) Stats(ctx context.Context) (tree.Stats, error) {
	var stats tree.Stats
	err := c.get(ctx, "/stats", &stats)
	return stats, err
}

func (c *Client) Rounds(ctx context.Context) ([]metrics.RoundMetric, error) {
	var rounds []metrics.RoundMetric
	err := c.get(ctx, "/rounds", &rounds)
	return rounds, err
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
