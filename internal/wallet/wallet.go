// Package wallet is the signing identity of the kit: one private key, one
// address, native balance reads and native transfers.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"log/slog"
	"math/big"
	"strings"

	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/web3"
	"StoryAgent-Kit/internal/web3/units"
	"StoryAgent-Kit/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// NativeDecimals is the scale of the native IP currency.
const NativeDecimals = 18

// Wallet owns the private key and exposes the wallet context operations.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	adapter web3.Adapter
	log     *slog.Logger
}

// New parses a hex private key, with or without the 0x prefix, and derives
// the wallet address. A missing or malformed key is fatal.
func New(privateKey string, adapter web3.Adapter) (*Wallet, error) {
	if adapter == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "wallet requires a chain adapter")
	}
	key, err := ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	address := crypto.PubkeyToAddress(key.PublicKey)
	return &Wallet{
		key:     key,
		address: address,
		adapter: adapter,
		log:     logger.Named("wallet").With(slog.String("address", address.Hex())),
	}, nil
}

// ParsePrivateKey accepts a 32 byte hex key with an optional 0x prefix.
func ParsePrivateKey(privateKey string) (*ecdsa.PrivateKey, error) {
	trimmed := strings.TrimSpace(privateKey)
	if trimmed == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "wallet private key is required")
	}
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		// the key itself must never end up in an error message
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "wallet private key is malformed")
	}
	return key, nil
}

// Address returns the checksummed wallet address.
func (w *Wallet) Address() string {
	return w.address.Hex()
}

// Account returns the wallet address as a go-ethereum address.
func (w *Wallet) Account() common.Address {
	return w.address
}

// GetBalance returns the native balance of address, or of the wallet when
// address is empty, formatted with 18 decimals.
func (w *Wallet) GetBalance(ctx context.Context, address string) (string, error) {
	target := w.address
	if strings.TrimSpace(address) != "" {
		parsed, err := ParseAddress(address)
		if err != nil {
			return "", err
		}
		target = parsed
	}
	raw, err := w.adapter.BalanceAt(ctx, target)
	if err != nil {
		return "", err
	}
	w.log.Debug("native balance read", slog.String("target", target.Hex()), slog.String("raw", raw.String()))
	return units.Format(raw, NativeDecimals), nil
}

// Transfer sends amount of native IP to the given address and returns the
// transaction hash as soon as the node accepted it.
func (w *Wallet) Transfer(ctx context.Context, to, amount string) (common.Hash, error) {
	recipient, err := ParseAddress(to)
	if err != nil {
		return common.Hash{}, err
	}
	value, err := units.Parse(amount, NativeDecimals)
	if err != nil {
		return common.Hash{}, err
	}
	if !units.IsPositive(value) {
		return common.Hash{}, xerrors.New(xerrors.CodeValidation, "amount must be greater than zero")
	}

	hash, err := w.adapter.SendTransaction(ctx, w.Signer(), web3.ValueTransfer{To: recipient, Value: value})
	if err != nil {
		if e, ok := xerrors.From(err); ok && e.Code() == xerrors.CodeSubmission {
			return common.Hash{}, err
		}
		return common.Hash{}, xerrors.Wrap(xerrors.CodeSubmission, err, "native transfer failed")
	}
	logger.Audit().Info("native transfer submitted",
		slog.String("tx_hash", hash.Hex()),
		slog.String("from", w.address.Hex()),
		slog.String("to", recipient.Hex()),
		slog.String("amount", amount))
	return hash, nil
}

// SignTx signs tx for chainID with the wallet key.
func (w *Wallet) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
}

// ParseAddress validates a 0x-prefixed 20 byte hex address.
func ParseAddress(address string) (common.Address, error) {
	trimmed := strings.TrimSpace(address)
	if !IsAddress(trimmed) {
		return common.Address{}, xerrors.Newf(xerrors.CodeValidation, "invalid address %q", address)
	}
	return common.HexToAddress(trimmed), nil
}

// IsAddress reports whether s is a 0x-prefixed 40 hex digit address.
func IsAddress(s string) bool {
	return len(s) == 42 && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) && common.IsHexAddress(s)
}

var _ web3.Signer = (*signerAdapter)(nil)

// signerAdapter lets *Wallet satisfy web3.Signer whose Address method
// returns common.Address rather than the string form.
type signerAdapter struct{ w *Wallet }

func (s *signerAdapter) Address() common.Address { return s.w.address }

func (s *signerAdapter) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return s.w.SignTx(tx, chainID)
}

// Signer returns the wallet as a web3.Signer.
func (w *Wallet) Signer() web3.Signer {
	return &signerAdapter{w: w}
}
