package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"payment_scheduler/internal/domain/chain"
	"payment_scheduler/internal/domain/owner"
	"payment_scheduler/internal/domain/payment"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var ErrInvalidAddress = fmt.Errorf("invalid address")

// EngineConfig tunes fee handling and RPC bounds of the execution engine.
type EngineConfig struct {
	// DefaultFeeEstimate is used when gas estimation fails.
	DefaultFeeEstimate decimal.Decimal
	// GasMarginPercent is added on top of the estimated gas units.
	GasMarginPercent    uint64
	RPCTimeout          time.Duration
	ConfirmationTimeout time.Duration
}

// DefaultEngineConfig matches the documented production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultFeeEstimate:  decimal.RequireFromString("0.001"),
		GasMarginPercent:    20,
		RPCTimeout:          15 * time.Second,
		ConfirmationTimeout: 5 * time.Minute,
	}
}

// BalanceCheck is the read-only sufficiency precheck.
type BalanceCheck struct {
	Address         string          `json:"address"`
	Balance         decimal.Decimal `json:"balance"`
	Amount          decimal.Decimal `json:"amount"`
	EstimatedFee    decimal.Decimal `json:"estimated_fee"`
	FeeIsFallback   bool            `json:"fee_is_fallback"`
	RequiredTotal   decimal.Decimal `json:"required_total"`
	IsSufficient    bool            `json:"is_sufficient"`
	Shortfall       decimal.Decimal `json:"shortfall"`
	MaxTransferable decimal.Decimal `json:"max_transferable"`
}

// ExecutionEngine validates, prices, submits and confirms one transfer.
type ExecutionEngine struct {
	owners owner.Directory
	chain  chain.Client
	cfg    EngineConfig
	logger logrus.FieldLogger
}

func NewExecutionEngine(owners owner.Directory, client chain.Client, cfg EngineConfig, logger logrus.FieldLogger) *ExecutionEngine {
	return &ExecutionEngine{owners: owners, chain: client, cfg: cfg, logger: logger}
}

// Execute never returns an error value: every failure path is a result with
// Success=false. The authorization is passed through to the chain client only.
func (e *ExecutionEngine) Execute(ctx context.Context, p *payment.ScheduledPayment, authorization string) payment.ExecutionResult {
	log := e.logger.WithFields(logrus.Fields{
		"payment_id": p.ID,
		"owner_id":   p.OwnerID,
		"recipient":  p.RecipientAddress,
		"amount":     p.Amount.String(),
	})

	sender, res, ok := e.validate(ctx, p, authorization)
	if !ok {
		log.WithField("error", res.Error).Warn("Payment rejected by validation")
		return res
	}

	transfer := chain.Transfer{From: sender, To: p.RecipientAddress, Amount: p.Amount}
	check, err := e.checkFunds(ctx, transfer)
	if err != nil {
		log.WithError(err).Error("Failed to fetch sender balance")
		return payment.Failed(payment.FailureTransient, fmt.Sprintf("fetch balance: %v", err), nil)
	}

	diagnostics := map[string]any{
		"balance":          check.Balance.String(),
		"amount":           check.Amount.String(),
		"estimated_fee":    check.EstimatedFee.String(),
		"fee_is_fallback":  check.FeeIsFallback,
		"required_total":   check.RequiredTotal.String(),
		"max_transferable": check.MaxTransferable.String(),
	}
	if !check.IsSufficient {
		msg := fmt.Sprintf("insufficient balance: available %s, requested %s, estimated fee %s, required %s, max transferable %s",
			check.Balance, check.Amount, check.EstimatedFee, check.RequiredTotal, check.MaxTransferable)
		log.WithFields(logrus.Fields(diagnostics)).Warn("Insufficient balance for scheduled payment")
		return payment.Failed(payment.FailureInsufficientFunds, msg, diagnostics)
	}

	gasLimit := check.gasLimit
	diagnostics["gas_limit"] = gasLimit

	if check.quoteErr != nil {
		log.WithError(check.quoteErr).Error("Failed to fetch fee quote")
		return payment.Failed(payment.FailureTransient, fmt.Sprintf("fetch fee quote: %v", check.quoteErr), diagnostics)
	}
	quote := check.quote
	diagnostics["dynamic_fee"] = quote.Dynamic

	submitCtx, cancel := withTimeout(ctx, e.cfg.RPCTimeout)
	pending, err := e.chain.Submit(submitCtx, authorization, chain.Submission{Transfer: transfer, GasLimit: gasLimit, Fees: quote})
	cancel()
	if err != nil {
		log.WithError(err).Error("Failed to submit transfer")
		return payment.Failed(payment.FailureTransient, fmt.Sprintf("submit transfer: %v", err), diagnostics)
	}
	log = log.WithField("tx_hash", pending.Hash)
	log.Info("Transfer submitted, awaiting confirmation")

	confirmCtx, cancel := withTimeout(ctx, e.cfg.ConfirmationTimeout)
	receipt, err := e.chain.AwaitConfirmation(confirmCtx, pending)
	cancel()
	if err != nil {
		log.WithError(err).Error("Transfer was not confirmed")
		res := payment.Failed(payment.FailureTransient, fmt.Sprintf("await confirmation of %s: %v", pending.Hash, err), diagnostics)
		res.TransactionID = pending.Hash
		if !errors.Is(err, chain.ErrTransactionReverted) {
			// Broadcast but unconfirmed: it may still be mined.
			res.Status = payment.ExecutionPending
		}
		return res
	}

	diagnostics["block_number"] = receipt.BlockNumber
	diagnostics["gas_used"] = receipt.GasUsed
	log.WithField("block_number", receipt.BlockNumber).Info("Transfer confirmed")
	return payment.ExecutionResult{
		Success:       true,
		TransactionID: receipt.TxID,
		Status:        payment.ExecutionExecuted,
		Diagnostics:   diagnostics,
	}
}

// Reconcile settles an entry whose previous transfer was broadcast but never
// confirmed. It signs nothing: the result is executed once the receipt is in,
// failed if the transaction reverted, and pending otherwise.
func (e *ExecutionEngine) Reconcile(ctx context.Context, p *payment.ScheduledPayment) payment.ExecutionResult {
	hash := p.PendingTransactionID.String
	log := e.logger.WithFields(logrus.Fields{"payment_id": p.ID, "tx_hash": hash})

	lookupCtx, cancel := withTimeout(ctx, e.cfg.RPCTimeout)
	receipt, found, err := e.chain.LookupReceipt(lookupCtx, chain.PendingTx{Hash: hash})
	cancel()

	switch {
	case errors.Is(err, chain.ErrTransactionReverted):
		log.Warn("Pending transfer reverted")
		res := payment.Failed(payment.FailureTransient, fmt.Sprintf("transaction %s reverted", hash), nil)
		res.TransactionID = hash
		return res
	case err != nil:
		log.WithError(err).Warn("Failed to look up pending transfer")
		return payment.ExecutionResult{
			TransactionID: hash,
			Status:        payment.ExecutionPending,
			Error:         fmt.Sprintf("check pending transaction %s: %v", hash, err),
			Kind:          payment.FailureTransient,
		}
	case !found:
		log.Debug("Pending transfer is not mined yet")
		return payment.ExecutionResult{
			TransactionID: hash,
			Status:        payment.ExecutionPending,
			Error:         fmt.Sprintf("transaction %s is still pending", hash),
			Kind:          payment.FailureTransient,
		}
	}

	log.WithField("block_number", receipt.BlockNumber).Info("Pending transfer confirmed")
	return payment.ExecutionResult{
		Success:       true,
		TransactionID: receipt.TxID,
		Status:        payment.ExecutionExecuted,
		Diagnostics:   map[string]any{"block_number": receipt.BlockNumber, "gas_used": receipt.GasUsed},
	}
}

// validate runs the ordered validation steps and returns the sender address.
func (e *ExecutionEngine) validate(ctx context.Context, p *payment.ScheduledPayment, authorization string) (string, payment.ExecutionResult, bool) {
	fail := func(format string, args ...any) (string, payment.ExecutionResult, bool) {
		return "", payment.Failed(payment.FailureValidation, fmt.Sprintf(format, args...), nil), false
	}

	o, err := e.owners.GetByID(ctx, p.OwnerID)
	if err != nil {
		return fail("owner %d not found: %v", p.OwnerID, err)
	}
	sender := strings.TrimSpace(o.SendingAddress)
	if sender == "" {
		return fail("owner %d has no sending address on record", p.OwnerID)
	}

	derived, err := e.chain.DeriveAddress(authorization)
	if err != nil {
		return fail("invalid authorization: %v", err)
	}
	if !strings.EqualFold(derived, sender) {
		return fail("authorization does not match the owner's sending address")
	}

	if !p.Amount.IsPositive() {
		return fail("amount must be greater than zero, got %s", p.Amount)
	}
	if !e.chain.IsValidAddress(p.RecipientAddress) {
		return fail("invalid recipient address %q", p.RecipientAddress)
	}
	if strings.EqualFold(p.RecipientAddress, sender) {
		return fail("cannot send a payment to the sending address itself")
	}
	return sender, payment.ExecutionResult{}, true
}

// fundsCheck carries the gas limit and fee quote the transfer will be
// submitted with alongside the public BalanceCheck.
type fundsCheck struct {
	BalanceCheck
	gasLimit uint64
	quote    chain.FeeQuote
	quoteErr error
}

// checkFunds prices the fee at the quote the transfer is submitted with, so
// the check covers the worst case the network may charge.
func (e *ExecutionEngine) checkFunds(ctx context.Context, t chain.Transfer) (fundsCheck, error) {
	balanceCtx, cancel := withTimeout(ctx, e.cfg.RPCTimeout)
	balance, err := e.chain.Balance(balanceCtx, t.From)
	cancel()
	if err != nil {
		return fundsCheck{}, err
	}

	check := fundsCheck{
		BalanceCheck: BalanceCheck{Address: t.From, Balance: balance, Amount: t.Amount},
		gasLimit:     chain.MinGasLimit,
	}

	estimateCtx, cancel := withTimeout(ctx, e.cfg.RPCTimeout)
	estimate, err := e.chain.EstimateFee(estimateCtx, t)
	cancel()
	if err != nil {
		e.logger.WithError(err).WithField("from", t.From).Warn("Gas estimation failed, using default fee estimate")
		check.EstimatedFee = e.cfg.DefaultFeeEstimate
		check.FeeIsFallback = true
	} else {
		check.EstimatedFee = estimate.Fee
		if estimate.GasUnits > 0 {
			check.gasLimit = withMargin(estimate.GasUnits, e.cfg.GasMarginPercent)
		}
	}

	quoteCtx, cancel := withTimeout(ctx, e.cfg.RPCTimeout)
	check.quote, check.quoteErr = e.chain.FeeQuote(quoteCtx)
	cancel()
	if check.quoteErr == nil && !check.FeeIsFallback {
		if fee, ok := check.quote.MaxFee(check.gasLimit); ok {
			check.EstimatedFee = fee
		}
	}

	check.RequiredTotal = t.Amount.Add(check.EstimatedFee)
	check.IsSufficient = balance.GreaterThanOrEqual(check.RequiredTotal)
	check.Shortfall = decimal.Max(check.RequiredTotal.Sub(balance), decimal.Zero)
	check.MaxTransferable = decimal.Max(balance.Sub(check.EstimatedFee), decimal.Zero)
	return check, nil
}

// VerifyBalance is a read-only precheck of whether address can send amount plus fee.
func (e *ExecutionEngine) VerifyBalance(ctx context.Context, address string, amount decimal.Decimal) (BalanceCheck, error) {
	if !e.chain.IsValidAddress(address) {
		return BalanceCheck{}, fmt.Errorf("%w %q", ErrInvalidAddress, address)
	}
	check, err := e.checkFunds(ctx, chain.Transfer{From: address, To: address, Amount: amount})
	if err != nil {
		return BalanceCheck{}, fmt.Errorf("fetch balance of %s: %w", address, err)
	}
	return check.BalanceCheck, nil
}

// withMargin adds percent to units, rounding up.
func withMargin(units, percent uint64) uint64 {
	limit := (units*(100+percent) + 99) / 100
	if limit < chain.MinGasLimit {
		return chain.MinGasLimit
	}
	return limit
}
