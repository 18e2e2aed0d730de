// Package erc20 implements the ERC-20 token operations: balance, transfer,
// approve, allowance and token info. Tokens may be referenced by address or
// by any name the kit's token registry resolves.
package erc20

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/kit"
	"StoryAgent-Kit/internal/wallet"
	"StoryAgent-Kit/internal/web3"
	"StoryAgent-Kit/internal/web3/units"
	"StoryAgent-Kit/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// Balance is the outcome of GetBalance.
type Balance struct {
	Balance      string `json:"balance"`
	TokenAddress string `json:"tokenAddress"`
	TokenName    string `json:"tokenName"`
	OwnerAddress string `json:"ownerAddress"`
}

// Submission is the outcome of a state changing token call.
type Submission struct {
	TxHash       string `json:"txHash"`
	TokenAddress string `json:"tokenAddress"`
	Counterparty string `json:"-"`
	Amount       string `json:"amount"`
	Confirmed    bool   `json:"confirmed"`
}

// Allowance is the outcome of GetAllowance.
type Allowance struct {
	Allowance      string `json:"allowance"`
	TokenAddress   string `json:"tokenAddress"`
	OwnerAddress   string `json:"ownerAddress"`
	SpenderAddress string `json:"spenderAddress"`
}

// Info is the token metadata returned by GetInfo.
type Info struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
}

// Resolve turns a token reference into a contract address. The literal
// address wins over the name when both are given.
func Resolve(k *kit.Kit, token, tokenAddress string) (string, common.Address, error) {
	ref := strings.TrimSpace(tokenAddress)
	if ref == "" {
		ref = strings.TrimSpace(token)
	}
	if ref == "" {
		return "", common.Address{}, xerrors.New(xerrors.CodeValidation, "either tokenAddress or token must be provided")
	}
	resolved, ok := k.Tokens.Resolve(ref)
	if !ok {
		return "", common.Address{}, xerrors.New(xerrors.CodeTokenNotFound, k.Tokens.UnknownTokenMessage(ref))
	}
	return resolved, common.HexToAddress(resolved), nil
}

// GetBalance returns the token balance of owner, or of the kit wallet when
// owner is empty.
func GetBalance(ctx context.Context, k *kit.Kit, token, tokenAddress, owner string) (*Balance, error) {
	display, contract, err := Resolve(k, token, tokenAddress)
	if err != nil {
		return nil, err
	}
	holder := k.Wallet.Account()
	if strings.TrimSpace(owner) != "" {
		if holder, err = wallet.ParseAddress(owner); err != nil {
			return nil, err
		}
	} else {
		owner = k.Wallet.Address()
	}

	raw, err := readUint(ctx, k, contract, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	decimals, err := Decimals(ctx, k, contract)
	if err != nil {
		return nil, err
	}
	return &Balance{
		Balance:      units.Format(raw, decimals),
		TokenAddress: display,
		TokenName:    k.Tokens.DisplayName(display),
		OwnerAddress: owner,
	}, nil
}

// Transfer sends amount tokens to the recipient. By default it waits for the
// transaction to be mined.
func Transfer(ctx context.Context, k *kit.Kit, token, tokenAddress, to, amount string, wait *bool) (*Submission, error) {
	return submit(ctx, k, kit.OpTransferToken, "transfer", token, tokenAddress, to, amount, wait)
}

// Approve lets spender move up to amount tokens on behalf of the wallet. By
// default it waits for the transaction to be mined.
func Approve(ctx context.Context, k *kit.Kit, token, tokenAddress, spender, amount string, wait *bool) (*Submission, error) {
	return submit(ctx, k, kit.OpApproveToken, "approve", token, tokenAddress, spender, amount, wait)
}

func submit(ctx context.Context, k *kit.Kit, op, method, token, tokenAddress, counterparty, amount string, wait *bool) (*Submission, error) {
	display, contract, err := Resolve(k, token, tokenAddress)
	if err != nil {
		return nil, err
	}
	target, err := wallet.ParseAddress(counterparty)
	if err != nil {
		return nil, err
	}
	decimals, err := Decimals(ctx, k, contract)
	if err != nil {
		return nil, err
	}
	value, err := units.Parse(amount, decimals)
	if err != nil {
		return nil, err
	}
	if op == kit.OpTransferToken && !units.IsPositive(value) {
		return nil, xerrors.New(xerrors.CodeValidation, "amount must be greater than zero")
	}

	hash, confirmed, err := k.Execute(ctx, op, web3.ContractCall{
		Address: contract,
		ABI:     ABI,
		Method:  method,
		Args:    []any{target, value},
	}, wait)
	if err != nil {
		return nil, err
	}
	return &Submission{
		TxHash:       hash.Hex(),
		TokenAddress: display,
		Counterparty: counterparty,
		Amount:       amount,
		Confirmed:    confirmed,
	}, nil
}

// GetAllowance returns how many tokens spender may move on behalf of owner.
func GetAllowance(ctx context.Context, k *kit.Kit, token, tokenAddress, owner, spender string) (*Allowance, error) {
	display, contract, err := Resolve(k, token, tokenAddress)
	if err != nil {
		return nil, err
	}
	ownerAddr, err := wallet.ParseAddress(owner)
	if err != nil {
		return nil, err
	}
	spenderAddr, err := wallet.ParseAddress(spender)
	if err != nil {
		return nil, err
	}
	raw, err := readUint(ctx, k, contract, "allowance", ownerAddr, spenderAddr)
	if err != nil {
		return nil, err
	}
	decimals, err := Decimals(ctx, k, contract)
	if err != nil {
		return nil, err
	}
	return &Allowance{
		Allowance:      units.Format(raw, decimals),
		TokenAddress:   display,
		OwnerAddress:   owner,
		SpenderAddress: spender,
	}, nil
}

// GetInfo reads name, symbol, decimals and total supply. The total supply is
// formatted with the token's own decimals.
func GetInfo(ctx context.Context, k *kit.Kit, token, tokenAddress string) (string, *Info, error) {
	display, contract, err := Resolve(k, token, tokenAddress)
	if err != nil {
		return "", nil, err
	}
	name, err := readString(ctx, k, contract, "name")
	if err != nil {
		return "", nil, err
	}
	symbol, err := readString(ctx, k, contract, "symbol")
	if err != nil {
		return "", nil, err
	}
	decimals, err := Decimals(ctx, k, contract)
	if err != nil {
		return "", nil, err
	}
	supply, err := readUint(ctx, k, contract, "totalSupply")
	if err != nil {
		return "", nil, err
	}
	return display, &Info{
		Name:        name,
		Symbol:      symbol,
		Decimals:    decimals,
		TotalSupply: units.Format(supply, decimals),
	}, nil
}

// Decimals reads the token precision.
func Decimals(ctx context.Context, k *kit.Kit, contract common.Address) (uint8, error) {
	out, err := read(ctx, k, contract, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, unexpected("decimals", out[0])
	}
	return d, nil
}

func readUint(ctx context.Context, k *kit.Kit, contract common.Address, method string, args ...any) (*big.Int, error) {
	out, err := read(ctx, k, contract, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, unexpected(method, out[0])
	}
	return v, nil
}

func readString(ctx context.Context, k *kit.Kit, contract common.Address, method string) (string, error) {
	out, err := read(ctx, k, contract, method)
	if err != nil {
		return "", err
	}
	s, ok := out[0].(string)
	if !ok {
		return "", unexpected(method, out[0])
	}
	return s, nil
}

func read(ctx context.Context, k *kit.Kit, contract common.Address, method string, args ...any) ([]any, error) {
	out, err := k.Adapter.ReadContract(ctx, web3.ContractCall{Address: contract, ABI: ABI, Method: method, Args: args})
	if err != nil {
		if _, ok := xerrors.From(err); ok {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeChainQuery, err, "failed to read "+method)
	}
	if len(out) == 0 {
		return nil, xerrors.Newf(xerrors.CodeChainQuery, "%s returned no value", method)
	}
	logger.Named("erc20").Debug("token read",
		slog.String("token", contract.Hex()),
		slog.String("method", method))
	return out, nil
}

func unexpected(method string, v any) error {
	return xerrors.New(xerrors.CodeChainQuery, fmt.Sprintf("%s returned unexpected type %T", method, v))
}
