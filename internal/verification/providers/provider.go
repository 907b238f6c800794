package providers

import (
	"context"
	"fmt"
	"slices"

	"stampgate/internal/verification/models"
)

// ConditionType identifies a verifiable claim a provider can decide.
type ConditionType string

const (
	TypeFiveOrMoreCommitsOnRepo ConditionType = "FiveOrMoreCommitsOnRepo"
	TypeFacebook                ConditionType = "Facebook"
	TypeFacebookFriends         ConditionType = "FacebookFriends"
	TypeSelfStakingBronze       ConditionType = "SelfStakingBronze"
	TypeSelfStakingSilver       ConditionType = "SelfStakingSilver"
	TypeSelfStakingGold         ConditionType = "SelfStakingGold"
	TypeCommunityStakingBronze  ConditionType = "CommunityStakingBronze"
	TypeCommunityStakingSilver  ConditionType = "CommunityStakingSilver"
	TypeCommunityStakingGold    ConditionType = "CommunityStakingGold"
)

// Provider decides one condition type.
//
// Implementations hold immutable configuration only. Verify must always return a
// completed VerifiedPayload: external failures, invalid proofs and unmet thresholds
// all come back as Valid=false, never as a panic or error. The Context is shared
// with every other provider in the same verification batch.
type Provider interface {
	// Type returns the condition type this provider decides.
	Type() ConditionType

	// RequiredProofs lists the proof fields that must be present before Verify is
	// called. The dispatcher checks them so a malformed request costs no network call.
	RequiredProofs() []string

	Verify(ctx context.Context, payload models.RequestPayload, pc *Context) models.VerifiedPayload
}

// Registry maps condition types to providers.
//
// It is built once at startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	providers map[ConditionType]Provider
}

// NewRegistry builds a registry from ps. Registering the same type twice is an error.
func NewRegistry(ps ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[ConditionType]Provider, len(ps))}
	for _, p := range ps {
		if err := r.register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(p Provider) error {
	if p == nil {
		return fmt.Errorf("nil provider")
	}
	t := p.Type()
	if t == "" {
		return fmt.Errorf("provider %T has empty type", p)
	}
	if _, exists := r.providers[t]; exists {
		return fmt.Errorf("provider %s already registered", t)
	}
	r.providers[t] = p
	return nil
}

func (r *Registry) Get(t ConditionType) (Provider, bool) {
	p, ok := r.providers[t]
	return p, ok
}

// Types returns the registered condition types in sorted order.
func (r *Registry) Types() []ConditionType {
	out := make([]ConditionType, 0, len(r.providers))
	for t := range r.providers {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
