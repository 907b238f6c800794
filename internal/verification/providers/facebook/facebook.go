// Package facebook implements the Facebook account and friend-count providers.
package facebook

import (
	"context"
	"log/slog"
	"time"

	"stampgate/internal/platform/privacy"
	fbclient "stampgate/internal/verification/clients/facebook"
	"stampgate/internal/verification/models"
	"stampgate/internal/verification/providers"
)

const (
	proofAccessToken = "accessToken"

	// RecordFriendsKey is the record field attesting the friend threshold. The
	// name is part of the credential format and stays fixed when MinFriends changes.
	RecordFriendsKey = "facebookFriendsGTE100"

	DefaultMinFriends = 100
)

// Client is the subset of the Graph client the providers need.
type Client interface {
	AppID() string
	DebugToken(ctx context.Context, token string) (fbclient.TokenDebug, error)
	FriendsSummary(ctx context.Context, token string) (fbclient.FriendsSummary, error)
}

// Config is immutable provider configuration.
type Config struct {
	MinFriends int

	// Now is the clock used for token expiry. Defaults to time.Now.
	Now func() time.Time
}

// Option configures a provider.
type Option func(*tokenChecker)

func WithLogger(logger *slog.Logger) Option {
	return func(c *tokenChecker) {
		c.logger = logger
	}
}

// tokenChecker decides whether an access token is usable, sharing the
// introspection result through the batch context.
type tokenChecker struct {
	client Client
	now    func() time.Time
	logger *slog.Logger
}

func newTokenChecker(client Client, now func() time.Time, opts []Option) tokenChecker {
	c := tokenChecker{client: client, now: now, logger: slog.Default()}
	if c.now == nil {
		c.now = time.Now
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// check reports the introspection result and whether the token is valid for
// this application right now. All four conditions must hold.
func (c tokenChecker) check(ctx context.Context, pc *providers.Context, token string) (fbclient.TokenDebug, bool, error) {
	debug, err := providers.ExchangeOrFetch(ctx, pc, fbclient.System, providers.HashKey("debug_token", token),
		func(ctx context.Context) (fbclient.TokenDebug, error) {
			return c.client.DebugToken(ctx, token)
		})
	if err != nil {
		return fbclient.TokenDebug{}, false, err
	}

	notExpired := c.now().Before(debug.ExpiresAt)
	valid := notExpired &&
		debug.AppID == c.client.AppID() &&
		debug.IsValid &&
		debug.UserID != ""
	if !valid {
		c.logger.InfoContext(ctx, "facebook token rejected",
			"not_expired", notExpired,
			"app_match", debug.AppID == c.client.AppID(),
			"is_valid", debug.IsValid,
			"token_fp", privacy.Fingerprint(token),
		)
	}
	return debug, valid, nil
}

const errTokenInvalid = "facebook: access token is not valid for this application"

// AccountProvider attests that the user holds a live Facebook login for this app.
type AccountProvider struct {
	tokens tokenChecker
}

func NewAccountProvider(client Client, cfg Config, opts ...Option) *AccountProvider {
	return &AccountProvider{tokens: newTokenChecker(client, cfg.Now, opts)}
}

func (p *AccountProvider) Type() providers.ConditionType {
	return providers.TypeFacebook
}

func (p *AccountProvider) RequiredProofs() []string {
	return []string{proofAccessToken}
}

func (p *AccountProvider) Verify(ctx context.Context, payload models.RequestPayload, pc *providers.Context) models.VerifiedPayload {
	debug, ok, err := p.tokens.check(ctx, pc, payload.Proof(proofAccessToken))
	if err != nil {
		return providers.Fail(err)
	}
	if !ok {
		return models.Invalid(errTokenInvalid)
	}
	return models.Valid(map[string]string{"user_id": debug.UserID})
}

// FriendsProvider attests that the user has at least MinFriends friends.
type FriendsProvider struct {
	tokens     tokenChecker
	client     Client
	minFriends int
}

func NewFriendsProvider(client Client, cfg Config, opts ...Option) *FriendsProvider {
	minFriends := cfg.MinFriends
	if minFriends <= 0 {
		minFriends = DefaultMinFriends
	}
	return &FriendsProvider{
		tokens:     newTokenChecker(client, cfg.Now, opts),
		client:     client,
		minFriends: minFriends,
	}
}

func (p *FriendsProvider) Type() providers.ConditionType {
	return providers.TypeFacebookFriends
}

func (p *FriendsProvider) RequiredProofs() []string {
	return []string{proofAccessToken}
}

func (p *FriendsProvider) Verify(ctx context.Context, payload models.RequestPayload, pc *providers.Context) models.VerifiedPayload {
	token := payload.Proof(proofAccessToken)

	debug, ok, err := p.tokens.check(ctx, pc, token)
	if err != nil {
		return providers.Fail(err)
	}
	if !ok {
		return models.Invalid(errTokenInvalid)
	}

	summary, err := p.client.FriendsSummary(ctx, token)
	if err != nil {
		return providers.Fail(err)
	}
	if summary.TotalCount < p.minFriends {
		return models.Invalid()
	}

	return models.Valid(map[string]string{
		"user_id":        debug.UserID,
		RecordFriendsKey: "true",
	})
}
