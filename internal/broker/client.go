package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls the media join broker, which mints short-lived tokens scoped to
// one (channel, uid) pair.
//
// The broker performs no retries; retry policy belongs to the caller. The token
// is expected to stay valid for the remainder of the call.

var ErrInvalidResponse = errors.New("broker: invalid response")

type Client struct {
	endpoint string
	httpc    *http.Client
}

func NewClient(endpoint string, timeout time.Duration) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("broker: endpoint is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: timeout},
	}, nil
}

type tokenRequest struct {
	ChannelName string `json:"channelName"`
	UID         uint32 `json:"uid"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// FetchToken requests a media token for (channelID, uid).
// Any non-success status or a missing/empty token is a fetch failure.
func (c *Client) FetchToken(ctx context.Context, channelID string, uid uint32) (string, error) {
	if channelID == "" {
		return "", fmt.Errorf("%w: channel id is required", ErrInvalidResponse)
	}

	body, err := json.Marshal(tokenRequest{ChannelName: channelID, UID: uid})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("broker: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// Drain a little of the body for the log line; do not trust it.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, string(snippet))
	}

	var out tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidResponse)
	}
	return out.Token, nil
}
