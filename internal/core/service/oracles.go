package service

import (
	"context"
	"strconv"

	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
	dErrors "tokencore/pkg/domain-errors"
	"tokencore/pkg/platform/audit"
)

// DefineOracles replaces the user registry, the rate oracle and the
// class-limit vector layout used by later evaluations. A nil oracle keeps the
// one already installed. Evaluations already running finish on the previous
// set.
func (s *Service) DefineOracles(ctx context.Context, users ports.UserRegistry, rates ports.RateOracle, keys models.LimitKeys) error {
	if !keys.Valid() {
		return dErrors.New(dErrors.CodeValidation,
			"limit keys must be -1 or between 0 and "+strconv.Itoa(models.MaxLimitKey))
	}

	s.oracleMu.Lock()
	defer s.oracleMu.Unlock()

	if users != nil {
		s.users = users
	}
	if rates != nil {
		s.rates = rates
	}
	s.keys = keys
	s.evaluator.Store(s.newEvaluator())

	s.logAudit(ctx, audit.EventOraclesDefined,
		"users_replaced", users != nil,
		"rates_replaced", rates != nil,
		"emission_ceiling", keys.EmissionCeiling,
		"reception_ceiling", keys.ReceptionCeiling,
		"reception_floor", keys.ReceptionFloor,
	)
	return nil
}

// LimitKeys returns the class-limit vector layout currently in use.
func (s *Service) LimitKeys() models.LimitKeys {
	s.oracleMu.Lock()
	defer s.oracleMu.Unlock()
	return s.keys
}
