package testutil

import (
	"maps"

	"stampgate/internal/verification/models"
)

// TestAddresses provides fixed EVM addresses for deterministic payloads.
var TestAddresses = struct {
	Alice string
	Bob   string
}{
	Alice: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	Bob:   "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
}

// PayloadBuilder provides a fluent interface for building request payloads.
type PayloadBuilder struct {
	payload models.RequestPayload
}

// NewPayload starts a payload for condition type t with Alice's address.
func NewPayload(t string) *PayloadBuilder {
	return &PayloadBuilder{
		payload: models.RequestPayload{
			Type:    t,
			Address: TestAddresses.Alice,
			Version: "0.0.0",
			Proofs:  map[string]string{},
		},
	}
}

func (b *PayloadBuilder) WithAddress(address string) *PayloadBuilder {
	b.payload.Address = address
	return b
}

func (b *PayloadBuilder) WithVersion(version string) *PayloadBuilder {
	b.payload.Version = version
	return b
}

func (b *PayloadBuilder) WithProof(name, value string) *PayloadBuilder {
	b.payload.Proofs[name] = value
	return b
}

// WithGithubProofs sets the proofs the commits provider requires.
func (b *PayloadBuilder) WithGithubProofs(code, owner, repo, author string) *PayloadBuilder {
	return b.WithProof("code", code).
		WithProof("ownerUsername", owner).
		WithProof("repoName", repo).
		WithProof("authorUsername", author)
}

// WithStakingProofs sets a signed message for staking providers.
func (b *PayloadBuilder) WithStakingProofs(message, signature string) *PayloadBuilder {
	return b.WithProof("message", message).WithProof("signature", signature)
}

// Build returns a copy so builders can be reused.
func (b *PayloadBuilder) Build() models.RequestPayload {
	out := b.payload
	out.Proofs = maps.Clone(b.payload.Proofs)
	return out
}
