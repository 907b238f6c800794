// Package github talks to GitHub's OAuth token endpoint and REST API.
package github

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"stampgate/internal/verification/providers"
	"stampgate/internal/verification/providers/adapters"
)

// System is the external system id used for errors, metrics and the exchange cache.
const System = "github"

const apiVersion = "2022-11-28"

// Commit is one entry of the commits listing. Only the SHA is kept.
type Commit struct {
	SHA string `json:"sha"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error"`
}

// Client wraps the two GitHub hosts: the OAuth host for code exchange and the API host.
type Client struct {
	oauth        *adapters.HTTPAdapter
	api          *adapters.HTTPAdapter
	clientID     string
	clientSecret string
}

// New creates a GitHub client. oauth is rooted at https://github.com and api at
// https://api.github.com in production.
func New(oauth, api *adapters.HTTPAdapter, clientID, clientSecret string) *Client {
	return &Client{
		oauth:        oauth,
		api:          api,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// ExchangeCode trades a one-time OAuth code for an access token.
//
// GitHub answers a rejected code with 200 and an "error" field, which is
// classified as unauthorized.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	var out tokenResponse
	err := c.oauth.DoJSON(ctx, adapters.Request{
		Method: http.MethodPost,
		Path:   "/login/oauth/access_token",
		Form: url.Values{
			"client_id":     {c.clientID},
			"client_secret": {c.clientSecret},
			"code":          {code},
		},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", providers.NewProviderError(providers.ErrorUnauthorized, System, "code exchange rejected: "+out.Error, nil)
	}
	if out.AccessToken == "" {
		return "", providers.NewProviderError(providers.ErrorBadData, System, "token response without access_token", nil)
	}
	return out.AccessToken, nil
}

// ListCommits returns up to perPage commits on owner/repo authored by author.
func (c *Client) ListCommits(ctx context.Context, token, owner, repo, author string, perPage int) ([]Commit, error) {
	var commits []Commit
	err := c.api.DoJSON(ctx, adapters.Request{
		Method: http.MethodGet,
		Path:   "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/commits",
		Query: url.Values{
			"author":   {author},
			"per_page": {strconv.Itoa(perPage)},
		},
		Header: http.Header{
			"Authorization":        {"Bearer " + token},
			"X-GitHub-Api-Version": {apiVersion},
		},
	}, &commits)
	if err != nil {
		return nil, err
	}
	return commits, nil
}
