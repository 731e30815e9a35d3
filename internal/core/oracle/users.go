// Package oracle adapts user-registry and rate sources to the ports the
// evaluator consumes.
package oracle

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"tokencore/internal/core/ports"
	id "tokencore/pkg/domain"
	"tokencore/pkg/platform/sentinel"
)

// MemoryUserRegistry is an in-process user registry.
type MemoryUserRegistry struct {
	mu       sync.RWMutex
	accounts map[common.Address]ports.User
	limits   map[id.UserID][]uint256.Int
}

func NewMemoryUserRegistry() *MemoryUserRegistry {
	return &MemoryUserRegistry{
		accounts: make(map[common.Address]ports.User),
		limits:   make(map[id.UserID][]uint256.Int),
	}
}

// Register maps an account to a user. Several accounts may share a user.
func (r *MemoryUserRegistry) Register(account common.Address, user ports.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[account] = user
}

// Revoke removes an account mapping.
func (r *MemoryUserRegistry) Revoke(account common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, account)
}

// SetClassLimits replaces a user's limit vector.
func (r *MemoryUserRegistry) SetClassLimits(userID id.UserID, limits []uint256.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits[userID] = slices.Clone(limits)
}

func (r *MemoryUserRegistry) ResolveUser(_ context.Context, account common.Address) (*ports.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.accounts[account]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (r *MemoryUserRegistry) ClassLimits(_ context.Context, userID id.UserID) ([]uint256.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	limits, ok := r.limits[userID]
	if !ok {
		return nil, fmt.Errorf("class limits for user %s: %w", userID, sentinel.ErrNotFound)
	}
	return slices.Clone(limits), nil
}
