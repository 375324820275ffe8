package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pytrel-systems/dragon/internal/planner"
)

// XClient talks to the X v2 API. It implements Sender for outbound posts and
// replies, and additionally serves the inbound mention/search fetch.
type XClient struct {
	baseURL     string
	accessToken string
	http        *HTTPClient
}

// NewXClient creates a client for the given base URL and user access token.
func NewXClient(baseURL, accessToken string, http *HTTPClient) (*XClient, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("x access token is required")
	}
	if baseURL == "" {
		baseURL = "https://api.x.com"
	}
	if http == nil {
		http = NewHTTPClient(0, 0, 0)
	}
	return &XClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		http:        http,
	}, nil
}

func (c *XClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.accessToken}
}

// Post publishes a standalone tweet.
func (c *XClient) Post(ctx context.Context, text string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.http.DoJSON(ctx, "POST", c.baseURL+"/2/tweets", c.headers(),
		map[string]any{"text": text}, &out)
	if err != nil {
		return nil, fmt.Errorf("x post: %w", err)
	}
	return out, nil
}

// Reply publishes a reply to the given tweet.
func (c *XClient) Reply(ctx context.Context, inReplyTo, text string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.http.DoJSON(ctx, "POST", c.baseURL+"/2/tweets", c.headers(),
		map[string]any{
			"text":  text,
			"reply": map[string]any{"in_reply_to_tweet_id": inReplyTo},
		}, &out)
	if err != nil {
		return nil, fmt.Errorf("x reply: %w", err)
	}
	return out, nil
}

// Me resolves the authenticated user's id. The agent caches it in state so
// this is called once per runtime, not per tick.
func (c *XClient) Me(ctx context.Context) (string, error) {
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.http.DoJSON(ctx, "GET", c.baseURL+"/2/users/me", c.headers(), nil, &out); err != nil {
		return "", fmt.Errorf("x me: %w", err)
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("x me: empty user id")
	}
	return out.Data.ID, nil
}

type feedResponse struct {
	Data []struct {
		ID             string `json:"id"`
		Text           string `json:"text"`
		AuthorID       string `json:"author_id"`
		ConversationID string `json:"conversation_id"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID            string `json:"id"`
			Username      string `json:"username"`
			PublicMetrics struct {
				FollowersCount int `json:"followers_count"`
			} `json:"public_metrics"`
		} `json:"users"`
	} `json:"includes"`
}

func (r feedResponse) toBatch() planner.Batch {
	batch := planner.Batch{Authors: map[string]planner.Author{}}
	for _, d := range r.Data {
		batch.Items = append(batch.Items, planner.Tweet{
			ID:             d.ID,
			AuthorID:       d.AuthorID,
			Text:           d.Text,
			ConversationID: d.ConversationID,
		})
	}
	for _, u := range r.Includes.Users {
		batch.Authors[u.ID] = planner.Author{
			Username:      u.Username,
			FollowerCount: u.PublicMetrics.FollowersCount,
		}
	}
	return batch
}

// Mentions fetches mentions of userID newer than sinceID.
func (c *XClient) Mentions(ctx context.Context, userID, sinceID string, maxResults int) (planner.Batch, error) {
	qs := url.Values{}
	qs.Set("max_results", strconv.Itoa(clampResults(maxResults)))
	qs.Set("tweet.fields", "author_id,created_at,conversation_id,lang")
	qs.Set("expansions", "author_id")
	qs.Set("user.fields", "username,name,public_metrics")
	if sinceID != "" {
		qs.Set("since_id", sinceID)
	}
	var out feedResponse
	u := fmt.Sprintf("%s/2/users/%s/mentions?%s", c.baseURL, userID, qs.Encode())
	if err := c.http.DoJSON(ctx, "GET", u, c.headers(), nil, &out); err != nil {
		return planner.Batch{}, fmt.Errorf("x mentions: %w", err)
	}
	return out.toBatch(), nil
}

// SearchRecent fetches recent tweets matching query, newer than sinceID.
func (c *XClient) SearchRecent(ctx context.Context, query, sinceID string, maxResults int) (planner.Batch, error) {
	qs := url.Values{}
	qs.Set("query", query)
	qs.Set("max_results", strconv.Itoa(clampResults(maxResults)))
	qs.Set("tweet.fields", "author_id,created_at,conversation_id,lang")
	qs.Set("expansions", "author_id")
	qs.Set("user.fields", "username,name,public_metrics")
	if sinceID != "" {
		qs.Set("since_id", sinceID)
	}
	var out feedResponse
	u := c.baseURL + "/2/tweets/search/recent?" + qs.Encode()
	if err := c.http.DoJSON(ctx, "GET", u, c.headers(), nil, &out); err != nil {
		return planner.Batch{}, fmt.Errorf("x search: %w", err)
	}
	return out.toBatch(), nil
}

func clampResults(n int) int {
	if n < 5 {
		return 5
	}
	if n > 100 {
		return 100
	}
	return n
}
