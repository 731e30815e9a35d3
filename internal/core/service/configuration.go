package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
	id "tokencore/pkg/domain"
	dErrors "tokencore/pkg/domain-errors"
	"tokencore/pkg/platform/audit"
)

// DefineAuditConfiguration replaces the configuration of a scope. Masks are
// given as one flag per audit field.
func (s *Service) DefineAuditConfiguration(
	ctx context.Context,
	scope id.ScopeID,
	mode models.AuditMode,
	currencyIndex uint32,
	storage models.StorageScope,
	dataMask []bool,
	limitMask []bool,
) error {
	data, err := models.MaskFromFlags(dataMask)
	if err != nil {
		return err
	}
	limits, err := models.MaskFromFlags(limitMask)
	if err != nil {
		return err
	}
	cfg, err := models.NewAuditConfiguration(scope, mode, currencyIndex, storage, data, limits)
	if err != nil {
		return err
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, st ports.State) error {
		return st.PutAuditConfiguration(ctx, cfg)
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store audit configuration")
	}
	s.logAudit(ctx, audit.EventAuditConfigurationDefined,
		"scope", scope.String(),
		"mode", mode.String(),
		"storage", storage.String(),
		"currency_index", strconv.FormatUint(uint64(currencyIndex), 10),
	)
	return nil
}

// DefineAuditTriggers sets the trigger flags of many accounts for a scope.
// The four slices are parallel; the batch applies atomically.
func (s *Service) DefineAuditTriggers(
	ctx context.Context,
	scope id.ScopeID,
	addresses []common.Address,
	senders, receivers, excluded []bool,
) error {
	n := len(addresses)
	if len(senders) != n || len(receivers) != n || len(excluded) != n {
		return models.ErrArityMismatch.WithMessage(fmt.Sprintf(
			"arity mismatch: %d addresses, %d sender flags, %d receiver flags, %d excluded flags",
			n, len(senders), len(receivers), len(excluded)))
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context, st ports.State) error {
		for i, addr := range addresses {
			triggers := models.AuditTriggers{
				Sender:   senders[i],
				Receiver: receivers[i],
				Excluded: excluded[i],
			}
			if err := st.PutAuditTriggers(ctx, scope, addr, triggers); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store audit triggers")
	}
	s.logAudit(ctx, audit.EventAuditTriggersDefined,
		"scope", scope.String(),
		"accounts", n,
	)
	return nil
}

// AuditConfiguration returns a scope's configuration. Unconfigured scopes
// read as mode disabled.
func (s *Service) AuditConfiguration(ctx context.Context, scope id.ScopeID) (*models.AuditConfiguration, error) {
	var cfg *models.AuditConfiguration
	err := s.store.View(ctx, func(ctx context.Context, st ports.State) error {
		var err error
		cfg, err = st.AuditConfiguration(ctx, scope)
		return err
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit configuration")
	}
	return cfg, nil
}

// AuditTriggers returns the trigger flags of one account for a scope.
func (s *Service) AuditTriggers(ctx context.Context, scope id.ScopeID, account common.Address) (models.AuditTriggers, error) {
	var triggers models.AuditTriggers
	err := s.store.View(ctx, func(ctx context.Context, st ports.State) error {
		var err error
		triggers, err = st.AuditTriggers(ctx, scope, account)
		return err
	})
	if err != nil {
		return models.AuditTriggers{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit triggers")
	}
	return triggers, nil
}
