package service

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"tokencore/internal/core/delegate"
	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
	"tokencore/internal/core/registry"
	id "tokencore/pkg/domain"
	dErrors "tokencore/pkg/domain-errors"
	"tokencore/pkg/platform/audit"
	"tokencore/pkg/platform/sentinel"
)

// DefineDelegate registers, rebinds or clears (impl == nil) a delegate id.
// Rebinding applies to every proxy already bound to the id. Clearing fails
// while proxies are still bound. A scope may be listed only once.
func (s *Service) DefineDelegate(ctx context.Context, delegateID id.DelegateID, impl delegate.Delegate, scopes []id.ScopeID) error {
	s.bindMu.Lock()
	defer s.bindMu.Unlock()

	if impl == nil {
		var bound int
		err := s.store.View(ctx, func(ctx context.Context, st ports.State) error {
			var err error
			bound, err = st.CountTokensByDelegate(ctx, delegateID)
			return err
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count bound proxies")
		}
		if bound > 0 {
			return models.ErrDelegateInUse
		}
		s.registry.Clear(delegateID)
		s.metrics.SetDelegatesRegistered(len(s.registry.IDs()))
		s.logAudit(ctx, audit.EventDelegateCleared, "delegate_id", delegateID.String())
		return nil
	}

	if dup, ok := duplicateScope(scopes); ok {
		return models.ErrInvalidAuditConfiguration.WithMessage("scope " + dup.String() + " is listed more than once")
	}
	s.registry.Define(delegateID, impl, scopes)
	s.metrics.SetDelegatesRegistered(len(s.registry.IDs()))
	s.logAudit(ctx, audit.EventDelegateDefined,
		"delegate_id", delegateID.String(),
		"kind", impl.Kind(),
		"scopes", len(scopes),
	)
	return nil
}

func duplicateScope(scopes []id.ScopeID) (id.ScopeID, bool) {
	seen := make(map[id.ScopeID]struct{}, len(scopes))
	for _, sc := range scopes {
		if _, ok := seen[sc]; ok {
			return sc, true
		}
		seen[sc] = struct{}{}
	}
	return 0, false
}

// Delegates lists the registered delegate bindings in id order.
func (s *Service) Delegates() []registry.Binding {
	ids := s.registry.IDs()
	out := make([]registry.Binding, 0, len(ids))
	for _, delegateID := range ids {
		if b, ok := s.registry.Resolve(delegateID); ok {
			out = append(out, b)
		}
	}
	return out
}

type proxyConfig struct {
	currency string
}

// ProxyOption configures a proxy registration.
type ProxyOption func(*proxyConfig)

// WithCurrency sets the token's own currency code, the source currency of
// rate conversions.
func WithCurrency(code string) ProxyOption {
	return func(c *proxyConfig) {
		c.currency = code
	}
}

// DefineProxy binds a proxy address to a delegate id. Rebinding an existing
// proxy keeps its balances and supply.
func (s *Service) DefineProxy(ctx context.Context, proxy common.Address, delegateID id.DelegateID, opts ...ProxyOption) error {
	if id.IsNullAddress(proxy) {
		return models.ErrNullProxy
	}
	var cfg proxyConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s.bindMu.Lock()
	defer s.bindMu.Unlock()

	if _, ok := s.registry.Resolve(delegateID); !ok {
		return models.ErrDelegateNotFound
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context, st ports.State) error {
		return st.PutToken(ctx, &models.Token{
			Address:    proxy,
			DelegateID: delegateID,
			Currency:   cfg.currency,
		})
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register proxy")
	}
	s.logAudit(ctx, audit.EventProxyDefined,
		"token", proxy.Hex(),
		"delegate_id", delegateID.String(),
	)
	return nil
}

// RemoveProxy unbinds a proxy. Its balances stay in storage and reappear if
// the address is bound again.
func (s *Service) RemoveProxy(ctx context.Context, proxy common.Address) error {
	if id.IsNullAddress(proxy) {
		return models.ErrNullProxy
	}

	s.bindMu.Lock()
	defer s.bindMu.Unlock()

	err := s.store.RunInTx(ctx, func(ctx context.Context, st ports.State) error {
		if _, err := st.Token(ctx, proxy); err != nil {
			return err
		}
		return st.DeleteToken(ctx, proxy)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.ErrDelegateNotFound
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove proxy")
	}
	s.logAudit(ctx, audit.EventProxyRemoved, "token", proxy.Hex())
	return nil
}
