// Package github implements the repository-activity provider.
package github

import (
	"context"
	"log/slog"

	ghclient "stampgate/internal/verification/clients/github"
	"stampgate/internal/verification/models"
	"stampgate/internal/verification/providers"
)

const (
	proofCode           = "code"
	proofOwnerUsername  = "ownerUsername"
	proofRepoName       = "repoName"
	proofAuthorUsername = "authorUsername"

	// RecordSuffix is appended to the first commit SHA to form the record id.
	// The id is guessable and collision-prone; the signer depends on its shape.
	RecordSuffix = "gte5commits"

	DefaultMinCommits = 5
)

// Client is the subset of the GitHub client the provider needs.
type Client interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
	ListCommits(ctx context.Context, token, owner, repo, author string, perPage int) ([]ghclient.Commit, error)
}

// Config is immutable provider configuration.
type Config struct {
	MinCommits int
}

// Option configures a CommitsProvider.
type Option func(*CommitsProvider)

func WithLogger(logger *slog.Logger) Option {
	return func(p *CommitsProvider) {
		p.logger = logger
	}
}

// CommitsProvider attests that an author has at least MinCommits commits on a repository.
type CommitsProvider struct {
	client     Client
	minCommits int
	logger     *slog.Logger
}

func NewCommitsProvider(client Client, cfg Config, opts ...Option) *CommitsProvider {
	p := &CommitsProvider{
		client:     client,
		minCommits: cfg.MinCommits,
		logger:     slog.Default(),
	}
	if p.minCommits <= 0 {
		p.minCommits = DefaultMinCommits
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *CommitsProvider) Type() providers.ConditionType {
	return providers.TypeFiveOrMoreCommitsOnRepo
}

func (p *CommitsProvider) RequiredProofs() []string {
	return []string{proofCode, proofOwnerUsername, proofRepoName, proofAuthorUsername}
}

func (p *CommitsProvider) Verify(ctx context.Context, payload models.RequestPayload, pc *providers.Context) models.VerifiedPayload {
	token, err := AccessToken(ctx, pc, p.client, payload.Proof(proofCode))
	if err != nil {
		return providers.Fail(err)
	}

	owner, repo := payload.Proof(proofOwnerUsername), payload.Proof(proofRepoName)
	commits, err := p.client.ListCommits(ctx, token, owner, repo, payload.Proof(proofAuthorUsername), p.minCommits)
	if err != nil {
		return providers.Fail(err)
	}

	if len(commits) < p.minCommits {
		p.logger.DebugContext(ctx, "commit threshold not met",
			"owner", owner,
			"repo", repo,
			"commits", len(commits),
			"required", p.minCommits,
		)
		return models.Invalid()
	}

	if commits[0].SHA == "" {
		return providers.Fail(providers.NewProviderError(providers.ErrorBadData, ghclient.System, "commit without sha", nil))
	}
	return models.Valid(map[string]string{"id": commits[0].SHA + RecordSuffix})
}

// AccessToken exchanges code once per batch. Codes are single use, so every
// provider needing a GitHub token for the same code must go through here.
func AccessToken(ctx context.Context, pc *providers.Context, client Client, code string) (string, error) {
	return providers.ExchangeOrFetch(ctx, pc, ghclient.System, providers.HashKey(code),
		func(ctx context.Context) (string, error) {
			return client.ExchangeCode(ctx, code)
		})
}
