package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokencore/internal/core/delegate"
	id "tokencore/pkg/domain"
)

func TestRegistry(t *testing.T) {
	r := New()

	t.Run("resolve unknown id", func(t *testing.T) {
		_, ok := r.Resolve(7)
		assert.False(t, ok)
	})

	t.Run("define then resolve", func(t *testing.T) {
		_, had := r.Define(1, delegate.NewBase(), []id.ScopeID{0, 3})
		assert.False(t, had)

		b, ok := r.Resolve(1)
		require.True(t, ok)
		assert.Equal(t, delegate.KindBase, b.Delegate.Kind())
		assert.Equal(t, []id.ScopeID{0, 3}, b.Scopes)
	})

	t.Run("rebind returns the previous binding", func(t *testing.T) {
		prev, had := r.Define(1, delegate.NewLimitable(), []id.ScopeID{0})
		require.True(t, had)
		assert.Equal(t, delegate.KindBase, prev.Delegate.Kind())

		b, _ := r.Resolve(1)
		assert.Equal(t, delegate.KindLimitable, b.Delegate.Kind())
	})

	t.Run("scopes are copied in and out", func(t *testing.T) {
		scopes := []id.ScopeID{5}
		r.Define(2, delegate.NewAuditable(), scopes)
		scopes[0] = 99

		b, _ := r.Resolve(2)
		assert.Equal(t, []id.ScopeID{5}, b.Scopes)
		b.Scopes[0] = 42

		again, _ := r.Resolve(2)
		assert.Equal(t, []id.ScopeID{5}, again.Scopes)
	})

	t.Run("repeated scopes keep their first position", func(t *testing.T) {
		r.Define(3, delegate.NewLimitable(), []id.ScopeID{4, 0, 4, 0, 7})
		b, ok := r.Resolve(3)
		require.True(t, ok)
		assert.Equal(t, []id.ScopeID{4, 0, 7}, b.Scopes)
		r.Clear(3)
	})

	t.Run("ids are sorted", func(t *testing.T) {
		r.Define(0, delegate.NewBase(), nil)
		assert.Equal(t, []id.DelegateID{0, 1, 2}, r.IDs())
	})

	t.Run("define nil clears", func(t *testing.T) {
		r.Define(2, nil, nil)
		_, ok := r.Resolve(2)
		assert.False(t, ok)

		r.Clear(0)
		assert.Equal(t, []id.DelegateID{1}, r.IDs())
	})
}
