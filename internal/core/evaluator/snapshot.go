package evaluator

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
)

const snapshotTimeout = 5 * time.Second

// errRateUnavailable cancels the remaining oracle reads: a failed conversion
// decides the result ahead of any user lookup.
var errRateUnavailable = errors.New("rate unavailable")

// party is the user-registry view of one side of the transfer.
type party struct {
	user   *ports.User
	limits []uint256.Int
	failed bool
}

// snapshot holds every oracle read of one evaluation so all checks see the
// same data.
type snapshot struct {
	converted    map[uint32]*uint256.Int
	rateFailed   bool
	needSender   bool
	needReceiver bool
	sender       party
	receiver     party
}

// gatherSnapshot reads conversions and users in parallel with shared
// cancellation. Registry and oracle failures become denials; only caller
// cancellation is returned as an error.
func (e *Evaluator) gatherSnapshot(ctx context.Context, req Request, amount *uint256.Int, scopes []activeScope) (*snapshot, error) {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	snap := &snapshot{converted: make(map[uint32]*uint256.Int)}
	indexes := make([]uint32, 0, len(scopes))
	seen := make(map[uint32]bool)
	for _, sc := range scopes {
		snap.needSender = snap.needSender || sc.sender
		snap.needReceiver = snap.needReceiver || sc.receiver
		if !seen[sc.cfg.CurrencyIndex] {
			seen[sc.cfg.CurrencyIndex] = true
			indexes = append(indexes, sc.cfg.CurrencyIndex)
		}
	}

	if e.rates == nil {
		snap.rateFailed = true
		return snap, nil
	}

	results := make([]*uint256.Int, len(indexes))
	for i, idx := range indexes {
		g.Go(func() error {
			v, err := e.rates.Convert(ctx, amount, req.Token.Currency, idx)
			if err != nil || v == nil {
				e.logger.DebugContext(ctx, "rate conversion failed",
					"currency", req.Token.Currency,
					"index", idx,
					"error", err,
				)
				return errRateUnavailable
			}
			results[i] = v
			return nil
		})
	}

	if snap.needSender {
		g.Go(func() error {
			snap.sender = e.fetchParty(ctx, req.From, req.Now, req.EnforceLimits)
			return nil
		})
	}
	if snap.needReceiver {
		g.Go(func() error {
			snap.receiver = e.fetchParty(ctx, req.To, req.Now, req.EnforceLimits)
			return nil
		})
	}

	err := g.Wait()
	if perr := parent.Err(); perr != nil {
		return nil, perr
	}
	if errors.Is(err, errRateUnavailable) {
		snap.rateFailed = true
		return snap, nil
	}
	if err != nil {
		return nil, err
	}
	for i, idx := range indexes {
		snap.converted[idx] = results[i]
	}
	return snap, nil
}

func (e *Evaluator) fetchParty(ctx context.Context, account common.Address, now time.Time, withLimits bool) party {
	if e.users == nil {
		return party{failed: true}
	}
	user, err := e.users.ResolveUser(ctx, account)
	if err != nil {
		e.logger.DebugContext(ctx, "user resolution failed", "account", account.Hex(), "error", err)
		return party{failed: true}
	}
	if !user.ValidAt(now) {
		return party{failed: true}
	}
	p := party{user: user}
	if withLimits {
		limits, err := e.users.ClassLimits(ctx, user.ID)
		if err != nil {
			e.logger.DebugContext(ctx, "class limits lookup failed", "user_id", user.ID, "error", err)
			return party{failed: true}
		}
		p.limits = limits
	}
	return p
}

// resolve applies the snapshot checks in their fixed order.
func (s *snapshot) resolve() models.ResultCode {
	switch {
	case s.rateFailed:
		return models.ResultRateUnavailable
	case s.needSender && s.sender.failed:
		return models.ResultUnknownSender
	case s.needReceiver && s.receiver.failed:
		return models.ResultUnknownReceiver
	}
	return models.ResultOK
}
