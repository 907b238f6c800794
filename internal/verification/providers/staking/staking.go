// Package staking implements the tiered self and community staking providers.
package staking

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"

	stclient "stampgate/internal/verification/clients/staking"
	"stampgate/internal/verification/models"
	"stampgate/internal/verification/providers"
)

const (
	proofSignature = "signature"
	proofMessage   = "message"

	signatureLen = 65
)

// Client is the subset of the staking client the providers need.
type Client interface {
	Stake(ctx context.Context, req stclient.StakeRequest) (stclient.Stake, error)
}

// Tier binds a condition type to a pool and its minimum staked amount.
type Tier struct {
	Type      providers.ConditionType
	Pool      stclient.Pool
	Threshold *big.Rat
}

// Tiers builds the bronze, silver and gold tiers of pool.
func Tiers(pool stclient.Pool, bronze, silver, gold *big.Rat) []Tier {
	types := map[stclient.Pool][3]providers.ConditionType{
		stclient.PoolSelf: {
			providers.TypeSelfStakingBronze, providers.TypeSelfStakingSilver, providers.TypeSelfStakingGold,
		},
		stclient.PoolCommunity: {
			providers.TypeCommunityStakingBronze, providers.TypeCommunityStakingSilver, providers.TypeCommunityStakingGold,
		},
	}[pool]
	return []Tier{
		{Type: types[0], Pool: pool, Threshold: bronze},
		{Type: types[1], Pool: pool, Threshold: silver},
		{Type: types[2], Pool: pool, Threshold: gold},
	}
}

// DefaultTiers returns all six tiers with the stock thresholds.
func DefaultTiers() []Tier {
	n := func(v int64) *big.Rat { return big.NewRat(v, 1) }
	return append(
		Tiers(stclient.PoolSelf, n(1), n(5), n(50)),
		Tiers(stclient.PoolCommunity, n(10), n(100), n(500))...,
	)
}

// Option configures a Provider.
type Option func(*Provider)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// Provider decides one staking tier.
type Provider struct {
	client Client
	tier   Tier
	logger *slog.Logger
}

func NewProvider(client Client, tier Tier, opts ...Option) *Provider {
	threshold := new(big.Rat)
	if tier.Threshold != nil {
		threshold.Set(tier.Threshold)
	}
	p := &Provider{
		client: client,
		tier:   Tier{Type: tier.Type, Pool: tier.Pool, Threshold: threshold},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewProviders builds one provider per tier.
func NewProviders(client Client, tiers []Tier, opts ...Option) []providers.Provider {
	out := make([]providers.Provider, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, NewProvider(client, t, opts...))
	}
	return out
}

func (p *Provider) Type() providers.ConditionType {
	return p.tier.Type
}

func (p *Provider) RequiredProofs() []string {
	return []string{proofSignature, proofMessage}
}

func (p *Provider) Verify(ctx context.Context, payload models.RequestPayload, pc *providers.Context) models.VerifiedPayload {
	address := strings.TrimSpace(payload.Address)
	if !IsAddress(address) {
		return models.Invalid("staking: address is not an EVM address")
	}
	signature := payload.Proof(proofSignature)
	if !isSignature(signature) {
		return models.Invalid("staking: malformed signature")
	}
	digest := PersonalMessageDigest(payload.Proofs[proofMessage])

	// Every tier of a pool asks the same question, so the stake is fetched once per batch.
	key := providers.HashKey(string(p.tier.Pool), strings.ToLower(address), strings.ToLower(signature), digest)
	stake, err := providers.ExchangeOrFetch(ctx, pc, stclient.System, key,
		func(ctx context.Context) (stclient.Stake, error) {
			return p.client.Stake(ctx, stclient.StakeRequest{
				Address:   address,
				Signature: signature,
				Digest:    digest,
				Pool:      p.tier.Pool,
			})
		})
	if err != nil {
		return providers.Fail(err)
	}

	if stake.Amount.Cmp(p.tier.Threshold) < 0 {
		p.logger.DebugContext(ctx, "stake below tier", "type", string(p.tier.Type))
		return models.Invalid()
	}
	return models.Valid(map[string]string{"type": string(p.tier.Type)})
}

// PersonalMessageDigest returns the hex EIP-191 digest of message:
// keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func PersonalMessageDigest(message string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message)) + message))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	return isHex(s, 20)
}

func isSignature(s string) bool {
	return isHex(s, signatureLen)
}

func isHex(s string, size int) bool {
	raw, ok := strings.CutPrefix(s, "0x")
	if !ok {
		raw, ok = strings.CutPrefix(s, "0X")
	}
	if !ok || len(raw) != 2*size {
		return false
	}
	_, err := hex.DecodeString(raw)
	return err == nil
}

// String is used in logs.
func (t Tier) String() string {
	return fmt.Sprintf("%s(%s>=%s)", t.Type, t.Pool, t.Threshold.RatString())
}
