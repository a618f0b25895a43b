// Package chain implements chain.Client on an Ethereum JSON-RPC endpoint.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	domainChain "payment_scheduler/internal/domain/chain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// weiDecimals is the exponent between wei and ether.
const weiDecimals = 18

const defaultPollInterval = 2 * time.Second

// backend is the subset of *ethclient.Client the payment engine uses.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ domainChain.Client = (*EthereumClient)(nil)

// EthereumClient signs and broadcasts native value transfers.
type EthereumClient struct {
	rpc          backend
	closer       func()
	chainID      *big.Int
	pollInterval time.Duration
	logger       logrus.FieldLogger
}

// Dial connects to rawURL and caches the chain id used for signing.
func Dial(ctx context.Context, rawURL string, logger logrus.FieldLogger) (*EthereumClient, error) {
	rpc, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC endpoint: %w", err)
	}
	c, err := newEthereumClient(ctx, rpc, logger)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	c.closer = rpc.Close
	return c, nil
}

func newEthereumClient(ctx context.Context, rpc backend, logger logrus.FieldLogger) (*EthereumClient, error) {
	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}
	logger.WithField("chain_id", chainID.String()).Info("Connected to blockchain RPC")
	return &EthereumClient{
		rpc:          rpc,
		closer:       func() {},
		chainID:      chainID,
		pollInterval: defaultPollInterval,
		logger:       logger,
	}, nil
}

func (c *EthereumClient) Close() {
	c.closer()
}

func (c *EthereumClient) DeriveAddress(authorization string) (string, error) {
	key, err := parseKey(authorization)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

func (c *EthereumClient) IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

func (c *EthereumClient) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	wei, err := c.rpc.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, err
	}
	return FromWei(wei), nil
}

func (c *EthereumClient) EstimateFee(ctx context.Context, t domainChain.Transfer) (domainChain.FeeEstimate, error) {
	to := common.HexToAddress(t.To)
	units, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From:  common.HexToAddress(t.From),
		To:    &to,
		Value: ToWei(t.Amount),
	})
	if err != nil {
		return domainChain.FeeEstimate{}, fmt.Errorf("estimate gas: %w", err)
	}
	price, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return domainChain.FeeEstimate{}, fmt.Errorf("suggest gas price: %w", err)
	}
	fee := new(big.Int).Mul(price, new(big.Int).SetUint64(units))
	return domainChain.FeeEstimate{GasUnits: units, Fee: FromWei(fee)}, nil
}

// FeeQuote prefers EIP-1559 fees whenever the latest header carries a base fee.
func (c *EthereumClient) FeeQuote(ctx context.Context) (domainChain.FeeQuote, error) {
	head, err := c.rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return domainChain.FeeQuote{}, fmt.Errorf("fetch latest header: %w", err)
	}
	if head.BaseFee != nil {
		tip, err := c.rpc.SuggestGasTipCap(ctx)
		if err != nil {
			return domainChain.FeeQuote{}, fmt.Errorf("suggest gas tip cap: %w", err)
		}
		feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
		return domainChain.FeeQuote{Dynamic: true, MaxFeePerGas: feeCap, MaxPriorityFeePerGas: tip}, nil
	}
	price, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return domainChain.FeeQuote{}, fmt.Errorf("suggest gas price: %w", err)
	}
	return domainChain.FeeQuote{GasPrice: price}, nil
}

func (c *EthereumClient) Submit(ctx context.Context, authorization string, s domainChain.Submission) (domainChain.PendingTx, error) {
	key, err := parseKey(authorization)
	if err != nil {
		return domainChain.PendingTx{}, err
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := c.rpc.PendingNonceAt(ctx, from)
	if err != nil {
		return domainChain.PendingTx{}, fmt.Errorf("fetch nonce: %w", err)
	}

	tx := buildTx(c.chainID, nonce, s)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return domainChain.PendingTx{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return domainChain.PendingTx{}, fmt.Errorf("send transaction: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"tx_hash": signed.Hash().Hex(),
		"nonce":   nonce,
		"dynamic": s.Fees.Dynamic,
	}).Debug("Transaction broadcast")
	return domainChain.PendingTx{Hash: signed.Hash().Hex()}, nil
}

// AwaitConfirmation polls for the receipt until it shows up or ctx ends.
func (c *EthereumClient) AwaitConfirmation(ctx context.Context, pending domainChain.PendingTx) (domainChain.Receipt, error) {
	hash := common.HexToHash(pending.Hash)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, found, err := c.lookup(ctx, hash)
		switch {
		case found || errors.Is(err, domainChain.ErrTransactionReverted):
			return receipt, err
		case err != nil:
			c.logger.WithError(err).WithField("tx_hash", pending.Hash).Warn("Receipt lookup failed, retrying")
		}

		select {
		case <-ctx.Done():
			return domainChain.Receipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// LookupReceipt checks once for a receipt. found is false while the transaction is unmined.
func (c *EthereumClient) LookupReceipt(ctx context.Context, pending domainChain.PendingTx) (domainChain.Receipt, bool, error) {
	return c.lookup(ctx, common.HexToHash(pending.Hash))
}

func (c *EthereumClient) lookup(ctx context.Context, hash common.Hash) (domainChain.Receipt, bool, error) {
	receipt, err := c.rpc.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return domainChain.Receipt{}, false, nil
	}
	if err != nil {
		return domainChain.Receipt{}, false, fmt.Errorf("failed to fetch receipt of %s: %w", hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return domainChain.Receipt{}, false, fmt.Errorf("%w: %s", domainChain.ErrTransactionReverted, hash.Hex())
	}
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	return domainChain.Receipt{TxID: receipt.TxHash.Hex(), BlockNumber: block, GasUsed: receipt.GasUsed}, true, nil
}

func buildTx(chainID *big.Int, nonce uint64, s domainChain.Submission) *types.Transaction {
	to := common.HexToAddress(s.To)
	value := ToWei(s.Amount)
	if s.Fees.Dynamic {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: s.Fees.MaxPriorityFeePerGas,
			GasFeeCap: s.Fees.MaxFeePerGas,
			Gas:       s.GasLimit,
			To:        &to,
			Value:     value,
		})
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: s.Fees.GasPrice,
		Gas:      s.GasLimit,
		To:       &to,
		Value:    value,
	})
}

func parseKey(authorization string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(authorization), "0x"))
	if err != nil {
		// The underlying error may quote the key material.
		return nil, domainChain.ErrInvalidAuthorization
	}
	return key, nil
}

// FromWei converts a wei amount to ether.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -weiDecimals)
}

// ToWei converts an ether amount to wei, dropping precision below one wei.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(weiDecimals).BigInt()
}
