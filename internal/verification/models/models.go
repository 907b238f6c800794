package models

import (
	"maps"
	"strings"

	"stampgate/pkg/validation"
)

// RequestPayload is one verification attempt as sent by the issuance service.
// Proofs carries provider-specific opaque inputs (OAuth codes, access tokens,
// usernames, signed messages).
type RequestPayload struct {
	Type    string            `json:"type" validate:"required"`
	Address string            `json:"address" validate:"omitempty,eth_addr"`
	Version string            `json:"version" validate:"omitempty,semver_version"`
	Proofs  map[string]string `json:"proofs"`
}

// Normalize trims the envelope fields. Proof values are left untouched.
func (p *RequestPayload) Normalize() {
	p.Type = strings.TrimSpace(p.Type)
	p.Address = strings.TrimSpace(p.Address)
	p.Version = strings.TrimSpace(p.Version)
}

// Validate checks the envelope shape. Provider-specific proof requirements are
// checked by the dispatcher.
func (p *RequestPayload) Validate() error {
	return validation.Validate(p)
}

// Proof returns the trimmed proof value for name, or "" when absent.
func (p RequestPayload) Proof(name string) string {
	return strings.TrimSpace(p.Proofs[name])
}

// WithType returns a copy of p addressed at another condition type.
// Proofs are copied so providers cannot observe each other's mutations.
func (p RequestPayload) WithType(t string) RequestPayload {
	p.Type = t
	p.Proofs = maps.Clone(p.Proofs)
	return p
}

// VerifiedPayload is the verification decision returned to the issuance service.
// Record is set only when Valid is true.
type VerifiedPayload struct {
	Valid  bool              `json:"valid"`
	Record map[string]string `json:"record,omitempty"`
	Errors []string          `json:"errors,omitempty"`
}

// Valid builds a positive result carrying record.
func Valid(record map[string]string) VerifiedPayload {
	return VerifiedPayload{Valid: true, Record: record}
}

// Invalid builds a negative result. Empty diagnostics are dropped.
func Invalid(errs ...string) VerifiedPayload {
	out := VerifiedPayload{}
	for _, e := range errs {
		if e != "" {
			out.Errors = append(out.Errors, e)
		}
	}
	return out
}

// BatchRequest verifies several condition types for one address with one shared
// proof set, e.g. all staking tiers at once.
type BatchRequest struct {
	Address string            `json:"address" validate:"omitempty,eth_addr"`
	Version string            `json:"version" validate:"omitempty,semver_version"`
	Types   []string          `json:"types" validate:"required,min=1,max=32,dive,required"`
	Proofs  map[string]string `json:"proofs"`
}

func (b *BatchRequest) Normalize() {
	b.Address = strings.TrimSpace(b.Address)
	b.Version = strings.TrimSpace(b.Version)
	for i := range b.Types {
		b.Types[i] = strings.TrimSpace(b.Types[i])
	}
}

func (b *BatchRequest) Validate() error {
	return validation.Validate(b)
}

// Payloads expands the batch into one RequestPayload per type.
func (b BatchRequest) Payloads() []RequestPayload {
	base := RequestPayload{Address: b.Address, Version: b.Version, Proofs: b.Proofs}
	out := make([]RequestPayload, 0, len(b.Types))
	for _, t := range b.Types {
		out = append(out, base.WithType(t))
	}
	return out
}

// TypedResult pairs a batch entry with its condition type.
type TypedResult struct {
	Type string `json:"type"`
	VerifiedPayload
}
