package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stampgate/internal/verification/models"
)

type stubProvider struct {
	typ ConditionType
}

func (p stubProvider) Type() ConditionType      { return p.typ }
func (p stubProvider) RequiredProofs() []string { return nil }
func (p stubProvider) Verify(context.Context, models.RequestPayload, *Context) models.VerifiedPayload {
	return models.Valid(map[string]string{"type": string(p.typ)})
}

func TestNewRegistry(t *testing.T) {
	t.Run("indexes providers by type", func(t *testing.T) {
		reg, err := NewRegistry(stubProvider{TypeFacebook}, stubProvider{TypeSelfStakingGold})
		require.NoError(t, err)

		p, ok := reg.Get(TypeFacebook)
		require.True(t, ok)
		assert.Equal(t, TypeFacebook, p.Type())

		_, ok = reg.Get("Twitter")
		assert.False(t, ok)
	})

	t.Run("rejects duplicate types", func(t *testing.T) {
		_, err := NewRegistry(stubProvider{TypeFacebook}, stubProvider{TypeFacebook})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("rejects nil and untyped providers", func(t *testing.T) {
		_, err := NewRegistry(Provider(nil))
		assert.Error(t, err)
		_, err = NewRegistry(stubProvider{})
		assert.Error(t, err)
	})

	t.Run("types are sorted", func(t *testing.T) {
		reg, err := NewRegistry(stubProvider{TypeSelfStakingGold}, stubProvider{TypeFacebook}, stubProvider{TypeCommunityStakingGold})
		require.NoError(t, err)
		assert.Equal(t, []ConditionType{TypeCommunityStakingGold, TypeFacebook, TypeSelfStakingGold}, reg.Types())
	})
}
