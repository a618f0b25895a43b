// Package chain describes the blockchain RPC collaborator used by the execution engine.
// Amounts cross this boundary in whole native units (e.g. ether), fee parameters in base units (wei).
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// MinGasLimit is the protocol minimum gas for a plain value transfer.
const MinGasLimit uint64 = 21000

const weiDecimals = 18

var (
	ErrInvalidAuthorization = errors.New("authorization does not derive a signing identity")
	ErrTransactionReverted  = errors.New("transaction reverted")
)

// Transfer is a value transfer between two addresses.
type Transfer struct {
	From   string
	To     string
	Amount decimal.Decimal
}

// FeeEstimate is the simulated cost of a transfer at the current gas price.
type FeeEstimate struct {
	GasUnits uint64
	Fee      decimal.Decimal
}

// FeeQuote holds the network's current fee parameters. When Dynamic is set the
// two-parameter model (max fee + priority fee) applies, otherwise GasPrice.
type FeeQuote struct {
	Dynamic              bool
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// MaxFee is the most a transfer with gasLimit can cost under this quote: the
// fee cap for dynamic fees, the gas price otherwise. ok is false when the
// quote carries no per-gas price.
func (q FeeQuote) MaxFee(gasLimit uint64) (fee decimal.Decimal, ok bool) {
	perGas := q.GasPrice
	if q.Dynamic {
		perGas = q.MaxFeePerGas
	}
	if perGas == nil {
		return decimal.Zero, false
	}
	wei := new(big.Int).Mul(perGas, new(big.Int).SetUint64(gasLimit))
	return decimal.NewFromBigInt(wei, -weiDecimals), true
}

// Submission is a transfer ready to be signed and broadcast.
type Submission struct {
	Transfer
	GasLimit uint64
	Fees     FeeQuote
}

// PendingTx identifies a broadcast transaction awaiting inclusion.
type PendingTx struct {
	Hash string
}

// Receipt is a confirmed transaction.
type Receipt struct {
	TxID        string
	BlockNumber uint64
	GasUsed     uint64
}

// Client is the blockchain RPC surface the engine needs.
type Client interface {
	// DeriveAddress returns the address controlled by the signing material.
	DeriveAddress(authorization string) (string, error)
	IsValidAddress(address string) bool
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
	EstimateFee(ctx context.Context, t Transfer) (FeeEstimate, error)
	FeeQuote(ctx context.Context) (FeeQuote, error)
	Submit(ctx context.Context, authorization string, s Submission) (PendingTx, error)
	AwaitConfirmation(ctx context.Context, tx PendingTx) (Receipt, error)
	// LookupReceipt checks once. found is false while the transaction is not mined;
	// a mined but failed transaction returns ErrTransactionReverted.
	LookupReceipt(ctx context.Context, tx PendingTx) (r Receipt, found bool, err error)
}
