// Package hawksoft is a client for the HawkSoft partner API, the system of
// record for policy, vehicle, driver and coverage data.
package hawksoft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	apiKey     string
	agencyID   string
	httpClient *http.Client
}

func New(baseURL, apiKey, agencyID string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		agencyID: agencyID,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// GetClients fetches full client records for a batch of client numbers.
// Callers are expected to keep batches within the vendor's payload limits.
func (c *Client) GetClients(ctx context.Context, clientNumbers []string, expandGroups, expandFields []string) ([]ClientRecord, error) {
	body, err := json.Marshal(map[string]any{
		"clientNumbers": clientNumbers,
		"expandGroups":  expandGroups,
		"expandFields":  expandFields,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal client batch request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/agencies/%s/clients/batch", c.baseURL, c.agencyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build client batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client batch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client batch request: %s", responseError(resp))
	}

	var payload struct {
		Clients []ClientRecord `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode client batch response: %w", err)
	}
	return payload.Clients, nil
}

// GetChangedClients returns the client numbers changed since the cursor. The
// cursor is the opaque timestamp string handed back by a previous sync run.
func (c *Client) GetChangedClients(ctx context.Context, since string, includeDeleted bool) ([]string, error) {
	endpoint := fmt.Sprintf("%s/agencies/%s/clients/changes", c.baseURL, c.agencyID)
	query := url.Values{}
	query.Set("since", since)
	if includeDeleted {
		query.Set("deleted", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build changed clients request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("changed clients request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("changed clients request: %s", responseError(resp))
	}

	var payload struct {
		ClientNumbers []string `json:"clientNumbers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode changed clients response: %w", err)
	}
	return payload.ClientNumbers, nil
}

func responseError(resp *http.Response) string {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	trimmed := strings.TrimSpace(string(snippet))
	if trimmed == "" {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, trimmed)
}
