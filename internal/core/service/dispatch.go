package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tokencore/internal/core/delegate"
	"tokencore/internal/core/ledger"
	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
	dErrors "tokencore/pkg/domain-errors"
	"tokencore/pkg/platform/audit"
	"tokencore/pkg/platform/sentinel"
)

// Call is one operation dispatched to a token's delegate.
//
// Account fields by operation:
//   - mint: To
//   - burn: From
//   - approve: From (owner), Spender
//   - transfer, canTransfer: From, To
//   - transferFrom: Spender, From, To
type Call struct {
	Op      models.Operation
	Caller  common.Address
	Proxy   common.Address
	From    common.Address
	To      common.Address
	Spender common.Address
	Amount  *uint256.Int
}

// Dispatch resolves the proxy's delegate, checks the caller and runs the
// operation. Mutations run in one transaction: a failure or denial leaves no
// trace. The returned code is ResultOK for successful mint, burn and approve.
func (s *Service) Dispatch(ctx context.Context, call Call) (models.ResultCode, error) {
	start := time.Now()
	if call.Amount == nil {
		call.Amount = new(uint256.Int)
	}
	ctx, span := s.tracer.Start(ctx, "core.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("operation", string(call.Op)),
		attribute.String("proxy", call.Proxy.Hex()),
	)

	code, outcomes, err := s.dispatch(ctx, call)

	s.metrics.ObserveDispatchLatency(time.Since(start))
	s.metrics.IncrementDispatch(string(call.Op), outcomeLabel(err))
	if call.Op == models.OpTransfer || call.Op == models.OpTransferFrom || call.Op == models.OpCanTransfer {
		if code != models.ResultUnknown {
			s.metrics.IncrementTransferResult(code.String())
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcomeLabel(err))
	} else {
		span.SetAttributes(attribute.Int("result", int(code)))
		s.recordOutcomes(outcomes)
	}

	s.auditDispatch(ctx, call, code, err)
	return code, err
}

func (s *Service) dispatch(ctx context.Context, call Call) (models.ResultCode, []ledger.Outcome, error) {
	if !call.Op.IsValid() {
		return models.ResultUnknown, nil, models.ErrUnsupportedOperation
	}

	run := s.store.View
	if call.Op.Mutates() {
		run = s.store.RunInTx
	}

	code := models.ResultUnknown
	var outcomes []ledger.Outcome
	err := run(ctx, func(ctx context.Context, st ports.State) error {
		outcomes = outcomes[:0]
		token, err := st.Token(ctx, call.Proxy)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return models.ErrDelegateNotFound
			}
			return err
		}
		binding, ok := s.registry.Resolve(token.DelegateID)
		if !ok {
			return models.ErrUnknownDelegate
		}
		if call.Op.ProxyOnly() && call.Caller != call.Proxy {
			return models.ErrUnauthorizedCaller
		}

		env := delegate.Env{
			State:     st,
			Token:     token,
			Scopes:    binding.Scopes,
			Core:      s.address,
			Now:       s.clock(ctx),
			Evaluator: s.evaluator.Load(),
			Recorded: func(o ledger.Outcome) {
				outcomes = append(outcomes, o)
			},
		}
		impl := binding.Delegate

		switch call.Op {
		case models.OpMint:
			err = impl.Mint(ctx, env, call.To, call.Amount)
		case models.OpBurn:
			err = impl.Burn(ctx, env, call.From, call.Amount)
		case models.OpApprove:
			err = impl.Approve(ctx, env, call.From, call.Spender, call.Amount)
		case models.OpTransfer:
			code, err = impl.Transfer(ctx, env, call.From, call.To, call.Amount)
			return err
		case models.OpTransferFrom:
			code, err = impl.TransferFrom(ctx, env, call.Spender, call.From, call.To, call.Amount)
			return err
		case models.OpCanTransfer:
			code, err = impl.CanTransfer(ctx, env, call.From, call.To, call.Amount)
			return err
		default:
			return models.ErrUnsupportedOperation
		}
		if err == nil {
			code = models.ResultOK
		}
		return err
	})
	if err != nil {
		return code, nil, classify(err)
	}
	return code, outcomes, nil
}

// classify passes domain errors through and wraps everything else.
func classify(err error) error {
	var denied *models.DeniedError
	if errors.As(err, &denied) {
		return err
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation cancelled")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to dispatch operation")
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if reason := dErrors.ReasonOf(err); reason != "" {
		return reason
	}
	var denied *models.DeniedError
	if errors.As(err, &denied) {
		return models.ErrTransferDenied.Reason
	}
	return string(dErrors.CodeOf(err))
}

// auditDispatch emits the event for a finished dispatch. Only committed
// mutations, denials and rejected callers are audited.
func (s *Service) auditDispatch(ctx context.Context, call Call, code models.ResultCode, err error) {
	base := []any{
		"token", call.Proxy.Hex(),
		"caller", call.Caller.Hex(),
		"amount", call.Amount.Dec(),
	}

	switch {
	case errors.Is(err, models.ErrUnauthorizedCaller):
		s.logAudit(ctx, audit.EventCallerRejected, append(base,
			"operation", string(call.Op),
			"reason", models.ErrUnauthorizedCaller.Reason,
		)...)
	case errors.Is(err, models.ErrTransferDenied) && call.Op.Mutates():
		s.logAudit(ctx, audit.EventTransferDenied, append(base,
			"from", call.From.Hex(),
			"to", call.To.Hex(),
			"result", strconv.Itoa(int(code)),
			"result_name", code.String(),
			"reason", models.ErrTransferDenied.Reason,
		)...)
	case err != nil:
		return
	case call.Op == models.OpMint:
		s.logAudit(ctx, audit.EventTokensMinted, append(base, "account", call.To.Hex())...)
	case call.Op == models.OpBurn:
		s.logAudit(ctx, audit.EventTokensBurned, append(base, "account", call.From.Hex())...)
	case call.Op == models.OpApprove:
		s.logAudit(ctx, audit.EventApprovalSet, append(base,
			"from", call.From.Hex(),
			"to", call.Spender.Hex(),
		)...)
	case call.Op == models.OpTransfer || call.Op == models.OpTransferFrom:
		s.logAudit(ctx, audit.EventTransferCommitted, append(base,
			"from", call.From.Hex(),
			"to", call.To.Hex(),
			"result", strconv.Itoa(int(code)),
			"result_name", code.String(),
		)...)
	}
}
