// Package almanac fetches capability snapshots from the almanac agent, the
// swarm's owner of individual state. Cyrano never caches these: eligibility
// must see the insight writes from earlier in the same conversation.
package almanac

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MikeSquared-Agency/cyrano/internal/engine"
	"github.com/google/uuid"
)

// Client talks to the almanac HTTP API. Implements engine.SnapshotProvider.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Snapshot fetches the current capability snapshot for one individual.
func (c *Client) Snapshot(ctx context.Context, individualID uuid.UUID) (*engine.Snapshot, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("ALMANAC_URL not configured")
	}

	url := fmt.Sprintf("%s/api/v1/almanac/individuals/%s/snapshot", c.baseURL, individualID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build almanac request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("almanac request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("individual %s not known to almanac", individualID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("almanac returned %d for individual %s", resp.StatusCode, individualID)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read almanac response: %w", err)
	}

	var snap engine.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("parse almanac snapshot: %w", err)
	}
	if snap.IndividualID == uuid.Nil {
		snap.IndividualID = individualID
	}
	return &snap, nil
}
