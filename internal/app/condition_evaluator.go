package app

import (
	"context"
	"fmt"
	"time"

	"payment_scheduler/internal/domain/chain"
	"payment_scheduler/internal/domain/owner"
	"payment_scheduler/internal/domain/payment"

	"github.com/shopspring/decimal"
)

// ConditionCheck is the result of evaluating a conditional entry.
type ConditionCheck struct {
	Met       bool
	Balance   decimal.Decimal
	Predicate payment.Predicate
}

// ConditionEvaluator checks balance predicates against the owner's live wallet balance.
type ConditionEvaluator struct {
	owners     owner.Directory
	chain      chain.Client
	rpcTimeout time.Duration
}

func NewConditionEvaluator(owners owner.Directory, client chain.Client, rpcTimeout time.Duration) *ConditionEvaluator {
	return &ConditionEvaluator{owners: owners, chain: client, rpcTimeout: rpcTimeout}
}

// Evaluate is fail-closed: unsupported predicates are never met and cost no RPC call.
func (e *ConditionEvaluator) Evaluate(ctx context.Context, p *payment.ScheduledPayment) (ConditionCheck, error) {
	if p.Conditional == nil || !p.Conditional.Predicate.Supported() {
		return ConditionCheck{Met: false}, nil
	}
	check := ConditionCheck{Predicate: p.Conditional.Predicate}

	o, err := e.owners.GetByID(ctx, p.OwnerID)
	if err != nil {
		return check, fmt.Errorf("load owner %d: %w", p.OwnerID, err)
	}

	callCtx, cancel := withTimeout(ctx, e.rpcTimeout)
	defer cancel()
	balance, err := e.chain.Balance(callCtx, o.SendingAddress)
	if err != nil {
		return check, fmt.Errorf("fetch balance of %s: %w", o.SendingAddress, err)
	}

	check.Balance = balance
	check.Met = check.Predicate.Eval(balance)
	return check, nil
}

// withTimeout bounds ctx by d; a non-positive d leaves ctx unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
