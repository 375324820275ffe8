package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MoltbookClient talks to the Moltbook agent API. Outbound only; Moltbook has
// no inbound feed in this pipeline.
type MoltbookClient struct {
	baseURL string
	appKey  string
	http    *HTTPClient
}

// NewMoltbookClient creates a client for the given base URL and app key.
func NewMoltbookClient(baseURL, appKey string, http *HTTPClient) (*MoltbookClient, error) {
	if strings.TrimSpace(appKey) == "" {
		return nil, fmt.Errorf("moltbook app key is required")
	}
	if baseURL == "" {
		baseURL = "https://moltbook.com"
	}
	if http == nil {
		http = NewHTTPClient(0, 0, 0)
	}
	return &MoltbookClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		appKey:  appKey,
		http:    http,
	}, nil
}

func (c *MoltbookClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.appKey}
}

// Post creates a standalone Moltbook post.
func (c *MoltbookClient) Post(ctx context.Context, text string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.http.DoJSON(ctx, "POST", c.baseURL+"/api/agent/posts", c.headers(),
		map[string]any{"text": text}, &out)
	if err != nil {
		return nil, fmt.Errorf("moltbook post: %w", err)
	}
	return out, nil
}

// Reply creates a reply to an existing Moltbook post.
func (c *MoltbookClient) Reply(ctx context.Context, inReplyTo, text string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.http.DoJSON(ctx, "POST", c.baseURL+"/api/agent/replies", c.headers(),
		map[string]any{"in_reply_to": inReplyTo, "text": text}, &out)
	if err != nil {
		return nil, fmt.Errorf("moltbook reply: %w", err)
	}
	return out, nil
}
