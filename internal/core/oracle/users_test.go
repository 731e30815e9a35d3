package oracle

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokencore/internal/core/ports"
	"tokencore/pkg/platform/sentinel"
)

func TestMemoryUserRegistry(t *testing.T) {
	ctx := context.Background()
	alice := common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	reg := NewMemoryUserRegistry()

	t.Run("unknown account resolves to nil", func(t *testing.T) {
		user, err := reg.ResolveUser(ctx, alice)
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("registered account resolves", func(t *testing.T) {
		reg.Register(alice, ports.User{ID: 7})
		user, err := reg.ResolveUser(ctx, alice)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.EqualValues(t, 7, user.ID)
	})

	t.Run("revoked account no longer resolves", func(t *testing.T) {
		reg.Revoke(alice)
		user, err := reg.ResolveUser(ctx, alice)
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("class limits are copied", func(t *testing.T) {
		limits := []uint256.Int{*uint256.NewInt(10), *uint256.NewInt(20)}
		reg.SetClassLimits(7, limits)
		limits[0] = *uint256.NewInt(99)

		got, err := reg.ClassLimits(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, uint64(10), got[0].Uint64())

		got[1] = *uint256.NewInt(0)
		again, err := reg.ClassLimits(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, uint64(20), again[1].Uint64())
	})

	t.Run("missing class limits are not found", func(t *testing.T) {
		_, err := reg.ClassLimits(ctx, 8)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
