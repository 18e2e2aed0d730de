package ethereum

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/web3"
	"StoryAgent-Kit/pkg/logger"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

const (
	defaultReceiptTimeout = 2 * time.Minute
	defaultPollInterval   = time.Second
)

// Backend is the subset of the go-ethereum client API the adapter relies on.
// Both *ethclient.Client and the simulated backend client satisfy it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg gethcore.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name    string
	RPCURL  string
	ChainID int64
}

// Client implements web3.Adapter for EVM compatible chains.
type Client struct {
	name    string
	rpc     *gethrpc.Client
	backend Backend

	chainMu sync.Mutex
	chainID *big.Int

	// sendMu serialises nonce selection and broadcast for a single signer.
	sendMu sync.Mutex

	receiptTimeout time.Duration
	pollInterval   time.Duration
	afterSend      func()
	log            *slog.Logger
}

// Option configures optional client behaviour.
type Option func(*Client)

// WithReceiptTimeout bounds WaitForReceipt.
func WithReceiptTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.receiptTimeout = timeout
		}
	}
}

// WithPollInterval sets how often WaitForReceipt polls the node.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithAfterSend registers a hook that runs after every broadcast.
func WithAfterSend(hook func()) Option {
	return func(c *Client) {
		c.afterSend = hook
	}
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接链节点失败")
	}

	c := NewWithBackend(cfg.Name, ethclient.NewClient(rpcClient), opts...)
	c.rpc = rpcClient
	if cfg.ChainID > 0 {
		c.chainID = big.NewInt(cfg.ChainID)
	}
	return c, nil
}

// NewWithBackend wraps an existing backend.
func NewWithBackend(name string, backend Backend, opts ...Option) *Client {
	c := &Client{
		name:           name,
		backend:        backend,
		receiptTimeout: defaultReceiptTimeout,
		pollInterval:   defaultPollInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.log = logger.Named("web3").With(slog.String("chain", name))
	return c
}

// NewSimulatedClient wraps a go-ethereum simulated backend. Every broadcast is
// followed by a block commit so receipts become available immediately.
func NewSimulatedClient(name string, backend *simulated.Backend, opts ...Option) *Client {
	opts = append([]Option{WithAfterSend(func() { backend.Commit() })}, opts...)
	return NewWithBackend(name, backend.Client(), opts...)
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	if c == nil || c.rpc == nil {
		return
	}
	c.rpc.Close()
	c.rpc = nil
}

// ChainID returns the chain id, querying the node once.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainQuery, err, "query chain id")
	}
	c.chainID = id
	return new(big.Int).Set(id), nil
}

// BalanceAt returns the native balance of account at the latest block.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainQuery, err, "query native balance",
			xerrors.WithMetadata("address", account.Hex()))
	}
	return balance, nil
}

// ReadContract performs an eth_call and decodes the outputs.
func (c *Client) ReadContract(ctx context.Context, call web3.ContractCall) ([]any, error) {
	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeValidation, err, "encode "+call.Method+" call")
	}
	out, err := c.backend.CallContract(ctx, gethcore.CallMsg{
		From:  call.From,
		To:    &call.Address,
		Data:  data,
		Value: call.Value,
	}, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainQuery, err, "read "+call.Method,
			xerrors.WithMetadata("contract", call.Address.Hex()))
	}
	values, err := call.ABI.Unpack(call.Method, out)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainQuery, err, "decode "+call.Method+" result",
			xerrors.WithMetadata("contract", call.Address.Hex()))
	}
	c.log.Debug("contract read",
		slog.String("contract", call.Address.Hex()),
		slog.String("method", call.Method))
	return values, nil
}

// SimulateContract dry-runs a state changing call from call.From. A revert is
// reported as a simulation failure and nothing is broadcast.
func (c *Client) SimulateContract(ctx context.Context, call web3.ContractCall) (*web3.PreparedCall, error) {
	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeValidation, err, "encode "+call.Method+" call")
	}
	msg := gethcore.CallMsg{
		From:  call.From,
		To:    &call.Address,
		Data:  data,
		Value: call.Value,
	}
	out, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSimulation, err, "simulate "+call.Method,
			xerrors.WithMetadata("contract", call.Address.Hex()))
	}
	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSimulation, err, "estimate gas for "+call.Method,
			xerrors.WithMetadata("contract", call.Address.Hex()))
	}

	prepared := &web3.PreparedCall{
		To:     call.Address,
		Data:   data,
		Value:  call.Value,
		Gas:    gas,
		Method: call.Method,
	}
	if method, ok := call.ABI.Methods[call.Method]; ok && len(method.Outputs) > 0 && len(out) > 0 {
		if values, err := method.Outputs.Unpack(out); err == nil {
			prepared.Returned = values
		}
	}
	return prepared, nil
}

// WriteContract signs and broadcasts a previously simulated call.
func (c *Client) WriteContract(ctx context.Context, signer web3.Signer, prepared *web3.PreparedCall) (common.Hash, error) {
	if prepared == nil {
		return common.Hash{}, xerrors.New(xerrors.CodeValidation, "write requires a simulated call")
	}
	return c.broadcast(ctx, signer, prepared.To, prepared.Data, prepared.Value, prepared.Gas)
}

// SendTransaction broadcasts a native currency transfer.
func (c *Client) SendTransaction(ctx context.Context, signer web3.Signer, transfer web3.ValueTransfer) (common.Hash, error) {
	gas, err := c.backend.EstimateGas(ctx, gethcore.CallMsg{
		From:  signer.Address(),
		To:    &transfer.To,
		Value: transfer.Value,
	})
	if err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeSubmission, err, "estimate transfer gas")
	}
	return c.broadcast(ctx, signer, transfer.To, nil, transfer.Value, gas)
}

func (c *Client) broadcast(ctx context.Context, signer web3.Signer, to common.Address, data []byte, value *big.Int, gas uint64) (common.Hash, error) {
	if signer == nil {
		return common.Hash{}, xerrors.New(xerrors.CodeInitializationFailure, "no signer configured")
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	if value == nil {
		value = new(big.Int)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	from := signer.Address()
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeSubmission, err, "query pending nonce")
	}
	tipCap, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeSubmission, err, "suggest gas tip")
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeSubmission, err, "fetch latest header")
	}
	feeCap := new(big.Int).Set(tipCap)
	if head.BaseFee != nil {
		feeCap = new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	tx := coretypes.NewTx(&coretypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := signer.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeSubmission, err, "sign transaction")
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeSubmission, err, "broadcast transaction")
	}
	if c.afterSend != nil {
		c.afterSend()
	}

	c.log.Info("transaction broadcast",
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.String("from", from.Hex()),
		slog.String("to", to.Hex()),
		slog.Uint64("nonce", nonce))
	return signed.Hash(), nil
}

// WaitForReceipt polls until the transaction is mined or the configured
// receipt timeout elapses. A reverted transaction is reported as a
// submission failure. Receipt query errors are treated as transient (nodes
// answer "transaction indexing is in progress" while catching up) and only
// surface as a confirmation timeout.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		receipt, err := c.backend.TransactionReceipt(waitCtx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != coretypes.ReceiptStatusSuccessful {
				return receipt, xerrors.New(xerrors.CodeSubmission,
					fmt.Sprintf("transaction %s reverted in block %s", hash.Hex(), receipt.BlockNumber),
					xerrors.WithMetadata("tx_hash", hash.Hex()))
			}
			return receipt, nil
		case err != nil && !stdErrors.Is(err, gethcore.NotFound) && waitCtx.Err() == nil:
			lastErr = err
			c.log.Debug("receipt not available yet",
				slog.String("tx_hash", hash.Hex()),
				slog.Any("error", err))
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			opts := []xerrors.Option{xerrors.WithMetadata("tx_hash", hash.Hex())}
			if lastErr != nil {
				opts = append(opts, xerrors.WithMetadata("last_error", lastErr.Error()))
			}
			return nil, xerrors.New(xerrors.CodeConfirmationTimeout,
				fmt.Sprintf("transaction %s not confirmed within %s", hash.Hex(), c.receiptTimeout),
				opts...)
		case <-ticker.C:
		}
	}
}

var _ web3.Adapter = (*Client)(nil)
