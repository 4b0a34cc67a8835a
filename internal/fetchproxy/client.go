package fetchproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kozaktomas/facecloak/internal/constants"
)

// MessagesPath is where the proxy service accepts messages.
const MessagesPath = "/api/v1/messages"

// Client talks to a proxy running in another process.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the proxy service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

// FetchImage sends a fetchImage message and returns the data URL.
func (c *Client) FetchImage(ctx context.Context, rawURL string) (string, error) {
	reqBody, err := json.Marshal(Message{Type: TypeFetchImage, URL: rawURL})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+MessagesPath, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// A base64 data URL is a third larger than the resource it carries.
	body, err := readLimited(resp.Body, 2*constants.MaxFetchSize)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("proxy error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var dataURL string
	if err := json.Unmarshal(body, &dataURL); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return dataURL, nil
}
