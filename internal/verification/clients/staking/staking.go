// Package staking is the client for the staking attestation service, which
// resolves a signed message to the amount an address has staked in a pool.
package staking

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"

	"stampgate/internal/verification/providers"
	"stampgate/internal/verification/providers/adapters"
)

// System is the external system id used for errors, metrics and the exchange cache.
const System = "staking"

// Pool selects the staking ledger.
type Pool string

const (
	PoolSelf      Pool = "self"
	PoolCommunity Pool = "community"
)

// StakeRequest proves control of Address by a personal-message signature.
// Digest is the hex EIP-191 hash of the signed message.
type StakeRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Digest    string `json:"digest"`
	Pool      Pool   `json:"pool"`
}

// Stake is the attested staked amount in token units.
type Stake struct {
	Address string
	Pool    Pool
	Amount  *big.Rat
}

type stakeResponse struct {
	Address string          `json:"address"`
	Amount  json.RawMessage `json:"amount"`
}

type Client struct {
	service *adapters.HTTPAdapter
}

func New(service *adapters.HTTPAdapter) *Client {
	return &Client{service: service}
}

// Stake asks the attestation service for the amount staked by req.Address.
// The amount may be sent as a JSON number or a decimal string.
func (c *Client) Stake(ctx context.Context, req StakeRequest) (Stake, error) {
	var out stakeResponse
	err := c.service.DoJSON(ctx, adapters.Request{
		Method: http.MethodPost,
		Path:   "/v1/stake",
		JSON:   req,
	}, &out)
	if err != nil {
		return Stake{}, err
	}

	amount, ok := parseAmount(out.Amount)
	if !ok {
		return Stake{}, providers.NewProviderError(providers.ErrorBadData, System, "stake response without a decimal amount", nil)
	}
	if amount.Sign() < 0 {
		return Stake{}, providers.NewProviderError(providers.ErrorBadData, System, "negative stake amount", nil)
	}
	return Stake{Address: req.Address, Pool: req.Pool, Amount: amount}, nil
}

func parseAmount(raw json.RawMessage) (*big.Rat, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false
		}
	}
	return new(big.Rat).SetString(s)
}
