// Package web3test provides an in-memory web3.Adapter for handler tests.
package web3test

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ReadFunc answers a contract read.
type ReadFunc func(call web3.ContractCall) ([]any, error)

// Adapter records every call and answers reads from Reads, keyed by method
// name. Simulations pack the call against its ABI so argument mistakes
// surface the same way they would on a real node.
type Adapter struct {
	mu sync.Mutex

	Chain       *big.Int
	Balances    map[common.Address]*big.Int
	Reads       map[string]ReadFunc
	SimulateErr error
	SubmitErr   error
	ReceiptErr  error

	Calls    []string
	Prepared []*web3.PreparedCall
	Written  []*web3.PreparedCall
	Sent     []web3.ValueTransfer
	Waited   []common.Hash
	nonce    uint64
}

var _ web3.Adapter = (*Adapter)(nil)

// New returns an adapter with no balances and no readable contracts.
func New() *Adapter {
	return &Adapter{
		Chain:    big.NewInt(1514),
		Balances: map[common.Address]*big.Int{},
		Reads:    map[string]ReadFunc{},
	}
}

// Returns is a shorthand for a read that always yields values.
func Returns(values ...any) ReadFunc {
	return func(web3.ContractCall) ([]any, error) { return values, nil }
}

func (a *Adapter) record(call string) {
	a.mu.Lock()
	a.Calls = append(a.Calls, call)
	a.mu.Unlock()
}

// CallLog returns a copy of the recorded calls.
func (a *Adapter) CallLog() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.Calls...)
}

func (a *Adapter) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(a.Chain), nil
}

func (a *Adapter) BalanceAt(_ context.Context, account common.Address) (*big.Int, error) {
	a.record("balance")
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.Balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (a *Adapter) ReadContract(_ context.Context, call web3.ContractCall) ([]any, error) {
	a.record("read:" + call.Method)
	a.mu.Lock()
	fn, ok := a.Reads[call.Method]
	a.mu.Unlock()
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeChainQuery, "no contract code answers %s", call.Method)
	}
	out, err := fn(call)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainQuery, err, "contract read failed")
	}
	return out, nil
}

func (a *Adapter) SimulateContract(_ context.Context, call web3.ContractCall) (*web3.PreparedCall, error) {
	a.record("simulate:" + call.Method)
	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSimulation, err, "pack call")
	}
	if a.SimulateErr != nil {
		return nil, xerrors.Wrap(xerrors.CodeSimulation, a.SimulateErr, "execution reverted")
	}
	prepared := &web3.PreparedCall{To: call.Address, Data: data, Value: call.Value, Gas: 60_000, Method: call.Method}
	a.mu.Lock()
	a.Prepared = append(a.Prepared, prepared)
	a.mu.Unlock()
	return prepared, nil
}

func (a *Adapter) WriteContract(_ context.Context, _ web3.Signer, prepared *web3.PreparedCall) (common.Hash, error) {
	if prepared == nil {
		return common.Hash{}, xerrors.New(xerrors.CodeValidation, "nil prepared call")
	}
	a.record("write:" + prepared.Method)
	if a.SubmitErr != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeSubmission, a.SubmitErr, "broadcast failed")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Written = append(a.Written, prepared)
	return a.nextHash(), nil
}

func (a *Adapter) SendTransaction(_ context.Context, _ web3.Signer, transfer web3.ValueTransfer) (common.Hash, error) {
	a.record("send")
	if a.SubmitErr != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeSubmission, a.SubmitErr, "broadcast failed")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Sent = append(a.Sent, transfer)
	return a.nextHash(), nil
}

func (a *Adapter) WaitForReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	a.record("wait")
	a.mu.Lock()
	a.Waited = append(a.Waited, hash)
	a.mu.Unlock()
	if a.ReceiptErr != nil {
		return nil, a.ReceiptErr
	}
	return &types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil
}

func (a *Adapter) Close() {}

// nextHash must be called with mu held.
func (a *Adapter) nextHash() common.Hash {
	a.nonce++
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("tx-%d", a.nonce)))
}
