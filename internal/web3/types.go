package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer is the account that authorises writes. The wallet implements it.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// ContractCall identifies a single contract function invocation.
type ContractCall struct {
	Address common.Address
	ABI     abi.ABI
	Method  string
	Args    []any
	// Value is attached native currency for payable functions.
	Value *big.Int
	// From is the account the call is evaluated for. Reads may leave it zero.
	From common.Address
}

// PreparedCall is the outcome of a successful simulation: a call that the
// node accepted, ready to be signed and broadcast.
type PreparedCall struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	Gas      uint64
	Method   string
	Returned []any
}

// ValueTransfer is a plain native currency transfer.
type ValueTransfer struct {
	To    common.Address
	Value *big.Int
}

// Adapter is the chain capability consumed by the wallet and the domain
// tools. Every method maps one to one onto a chain library call; the adapter
// never retries.
type Adapter interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	ReadContract(ctx context.Context, call ContractCall) ([]any, error)
	SimulateContract(ctx context.Context, call ContractCall) (*PreparedCall, error)
	WriteContract(ctx context.Context, signer Signer, prepared *PreparedCall) (common.Hash, error)
	SendTransaction(ctx context.Context, signer Signer, transfer ValueTransfer) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Close()
}
