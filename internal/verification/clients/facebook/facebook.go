// Package facebook queries the Facebook Graph API for token introspection and
// friend counts.
package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"stampgate/internal/verification/providers"
	"stampgate/internal/verification/providers/adapters"
)

// System is the external system id used for errors, metrics and the exchange cache.
const System = "facebook"

// TokenDebug is the introspection result for a user access token.
type TokenDebug struct {
	AppID     string
	UserID    string
	IsValid   bool
	ExpiresAt time.Time
}

// FriendsSummary carries only the friend count; the friend list itself is never read.
type FriendsSummary struct {
	TotalCount int
}

type debugTokenResponse struct {
	Data *struct {
		AppID     string `json:"app_id"`
		UserID    string `json:"user_id"`
		IsValid   bool   `json:"is_valid"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"data"`
}

type friendsResponse struct {
	Summary *struct {
		TotalCount *int `json:"total_count"`
	} `json:"summary"`
}

// Client is a Graph API client authenticated as the application.
type Client struct {
	graph     *adapters.HTTPAdapter
	appID     string
	appSecret string
}

func New(graph *adapters.HTTPAdapter, appID, appSecret string) *Client {
	return &Client{graph: graph, appID: appID, appSecret: appSecret}
}

// AppID returns the application id tokens must have been issued to.
func (c *Client) AppID() string {
	return c.appID
}

// DebugToken introspects token using the app access token.
func (c *Client) DebugToken(ctx context.Context, token string) (TokenDebug, error) {
	var out debugTokenResponse
	err := c.graph.DoJSON(ctx, adapters.Request{
		Method: http.MethodGet,
		Path:   "/debug_token",
		Query: url.Values{
			"input_token":  {token},
			"access_token": {c.appID + "|" + c.appSecret},
		},
	}, &out)
	if err != nil {
		return TokenDebug{}, err
	}
	if out.Data == nil {
		return TokenDebug{}, providers.NewProviderError(providers.ErrorBadData, System, "debug_token response without data", nil)
	}
	return TokenDebug{
		AppID:     out.Data.AppID,
		UserID:    out.Data.UserID,
		IsValid:   out.Data.IsValid,
		ExpiresAt: time.Unix(out.Data.ExpiresAt, 0),
	}, nil
}

// FriendsSummary fetches the friend count visible to token.
func (c *Client) FriendsSummary(ctx context.Context, token string) (FriendsSummary, error) {
	var out friendsResponse
	err := c.graph.DoJSON(ctx, adapters.Request{
		Method: http.MethodGet,
		Path:   "/me/friends",
		Query:  url.Values{"access_token": {token}},
	}, &out)
	if err != nil {
		return FriendsSummary{}, err
	}
	if out.Summary == nil || out.Summary.TotalCount == nil {
		return FriendsSummary{}, providers.NewProviderError(providers.ErrorBadData, System, "friends response without summary.total_count", nil)
	}
	return FriendsSummary{TotalCount: *out.Summary.TotalCount}, nil
}

// Graph error codes from the Graph API error reference.
const (
	graphCodeTooManyCalls    = 4
	graphCodeUserRateLimit   = 17
	graphCodePageRateLimit   = 32
	graphCodeActionRateLimit = 613
	graphCodeAccessToken     = 190
	graphSubcodeTokenFirst   = 458
	graphSubcodeTokenLast    = 467
)

type graphErrorResponse struct {
	Error *struct {
		Type    string `json:"type"`
		Code    int    `json:"code"`
		Subcode int    `json:"error_subcode"`
	} `json:"error"`
}

// ClassifyGraphError reads the Graph error envelope. Graph reports rejected
// tokens and throttling as 400 or 403 with the cause in error.code. Graph's
// message text is never copied into the error.
func ClassifyGraphError(status int, body []byte) *providers.ProviderError {
	var out graphErrorResponse
	if err := json.Unmarshal(body, &out); err != nil || out.Error == nil {
		return nil
	}
	e := out.Error
	switch {
	case e.Code == graphCodeAccessToken,
		e.Subcode >= graphSubcodeTokenFirst && e.Subcode <= graphSubcodeTokenLast:
		return &providers.ProviderError{
			Category:   providers.ErrorUnauthorized,
			System:     System,
			Message:    fmt.Sprintf("access token rejected (code %d, subcode %d)", e.Code, e.Subcode),
			StatusCode: status,
		}
	case e.Code == graphCodeTooManyCalls, e.Code == graphCodeUserRateLimit,
		e.Code == graphCodePageRateLimit, e.Code == graphCodeActionRateLimit:
		return &providers.ProviderError{
			Category:   providers.ErrorRateLimited,
			System:     System,
			Message:    fmt.Sprintf("graph rate limit (code %d)", e.Code),
			StatusCode: status,
		}
	}
	return nil
}
