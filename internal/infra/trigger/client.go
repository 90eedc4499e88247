// Package trigger invokes an agent's external execution entry point.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/enrichops/overseer/internal/core/domain"
	"github.com/enrichops/overseer/internal/metrics"
	"github.com/enrichops/overseer/internal/resilience"
)

// Endpoint describes where one agent's execution is triggered.
type Endpoint struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Request is the trigger payload handed to the executing agent.
type Request struct {
	RunID       string             `json:"runId"`
	Adjustments domain.Adjustments `json:"adjustments"`
}

// Client triggers agent executions over HTTP. Any non-2xx response or
// transport error is an orchestration failure; success carries no payload
// contract beyond the status code.
type Client struct {
	endpoints  map[domain.Agent]Endpoint
	httpClient *http.Client
	breakers   *resilience.Registry
}

// NewClient creates a trigger client.
func NewClient(endpoints map[domain.Agent]Endpoint, timeout time.Duration, breakers *resilience.Registry) *Client {
	return &Client{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breakers: breakers,
	}
}

// Trigger fires the agent's execution endpoint with the run id and
// adjustments.
func (c *Client) Trigger(ctx context.Context, agent domain.Agent, req Request) error {
	ep, ok := c.endpoints[agent]
	if !ok || ep.URL == "" {
		return fmt.Errorf("no execution endpoint configured for agent %s", agent)
	}

	breaker := c.breakers.Get(string(agent))
	if !breaker.Allow() {
		return fmt.Errorf("agent %s endpoint: %w", agent, resilience.ErrOpen)
	}

	err := c.post(ctx, agent, ep, req)
	breaker.Record(err)
	return err
}

func (c *Client) post(ctx context.Context, agent domain.Agent, ep Endpoint, req Request) error {
	start := time.Now()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal trigger request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create trigger request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if ep.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+ep.Token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("trigger call: %w", err)
	}
	defer resp.Body.Close()

	metrics.TriggerLatency.WithLabelValues(string(agent)).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("trigger returned http %d: %s", resp.StatusCode, string(excerpt))
	}
	return nil
}
