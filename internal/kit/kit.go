// Package kit bundles what every action handler needs: the wallet, the chain
// adapter, the token registry, the staking vault and the confirmation policy.
package kit

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/tokens"
	"StoryAgent-Kit/internal/wallet"
	"StoryAgent-Kit/internal/web3"
	"StoryAgent-Kit/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Staked IP vault and APY feed used by the staking operations.
const (
	DefaultVaultAddress = "0xd07Faed671decf3C5A6cc038dAD97c8EFDb507c0"
	DefaultAPYURL       = "https://validators.narwallets.com/metrics_json"
)

// Operation names used as keys of the confirmation policy. They match the
// action names of the write operations.
const (
	OpNativeTransfer = "NATIVE_TRANSFER_ACTION"
	OpTransferToken  = "transferToken"
	OpApproveToken   = "approveToken"
	OpStake          = "stake"
	OpUnstake        = "unstake"
)

// DefaultConfirmation reports, per write operation, whether the call blocks
// until the transaction is mined.
func DefaultConfirmation() map[string]bool {
	return map[string]bool{
		OpNativeTransfer: false,
		OpTransferToken:  true,
		OpApproveToken:   true,
		OpStake:          false,
		OpUnstake:        false,
	}
}

// Kit is shared read-only by all invocations.
type Kit struct {
	Wallet     *wallet.Wallet
	Adapter    web3.Adapter
	Tokens     *tokens.Registry
	Chain      web3.ChainDefinition
	Vault      common.Address
	APYURL     string
	HTTPClient *http.Client

	confirm map[string]bool
	log     *slog.Logger
}

// Option customises a Kit.
type Option func(*Kit)

// WithTokens replaces the default token registry.
func WithTokens(registry *tokens.Registry) Option {
	return func(k *Kit) {
		if registry != nil {
			k.Tokens = registry
		}
	}
}

// WithChain records the chain definition the adapter talks to.
func WithChain(chain web3.ChainDefinition) Option {
	return func(k *Kit) {
		k.Chain = chain
	}
}

// WithVault overrides the staking vault address.
func WithVault(address string) Option {
	return func(k *Kit) {
		if strings.TrimSpace(address) != "" {
			k.Vault = common.HexToAddress(address)
		}
	}
}

// WithAPYURL overrides the APY metrics endpoint.
func WithAPYURL(url string) Option {
	return func(k *Kit) {
		if strings.TrimSpace(url) != "" {
			k.APYURL = url
		}
	}
}

// WithHTTPClient sets the client used for off-chain lookups.
func WithHTTPClient(client *http.Client) Option {
	return func(k *Kit) {
		if client != nil {
			k.HTTPClient = client
		}
	}
}

// WithConfirmation merges overrides into the default confirmation policy.
func WithConfirmation(policy map[string]bool) Option {
	return func(k *Kit) {
		for op, wait := range policy {
			k.confirm[op] = wait
		}
	}
}

// New assembles a Kit around an existing wallet and adapter.
func New(w *wallet.Wallet, adapter web3.Adapter, opts ...Option) (*Kit, error) {
	if w == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "kit requires a wallet")
	}
	if adapter == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "kit requires a chain adapter")
	}
	k := &Kit{
		Wallet:     w,
		Adapter:    adapter,
		Tokens:     tokens.NewRegistry(),
		Chain:      web3.StoryMainnet(),
		Vault:      common.HexToAddress(DefaultVaultAddress),
		APYURL:     DefaultAPYURL,
		HTTPClient: newHTTPClient(10 * time.Second),
		confirm:    DefaultConfirmation(),
		log:        logger.Named("kit"),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// ShouldWait resolves the confirmation policy for op. A non-nil override from
// the caller wins over the configured policy.
func (k *Kit) ShouldWait(op string, override *bool) bool {
	if override != nil {
		return *override
	}
	return k.confirm[op]
}

// Policy returns a copy of the confirmation policy.
func (k *Kit) Policy() map[string]bool {
	out := make(map[string]bool, len(k.confirm))
	for op, wait := range k.confirm {
		out[op] = wait
	}
	return out
}

// Confirm blocks until hash is mined when the policy for op asks for it.
// It reports whether it waited.
func (k *Kit) Confirm(ctx context.Context, op string, override *bool, hash common.Hash) (bool, error) {
	if !k.ShouldWait(op, override) {
		k.log.Debug("confirmation skipped", slog.String("action", op), slog.String("tx_hash", hash.Hex()))
		return false, nil
	}
	receipt, err := k.Adapter.WaitForReceipt(ctx, hash)
	if err != nil {
		return true, err
	}
	logger.Audit().Info("transaction confirmed",
		slog.String("action", op),
		slog.String("tx_hash", hash.Hex()),
		slog.String("wallet", k.Wallet.Address()),
		slog.Uint64("block", blockNumber(receipt)))
	return true, nil
}

// Execute simulates call from the wallet, submits the prepared transaction
// and applies the confirmation policy for op. The hash is returned whenever
// the transaction reached the node, even if confirmation then failed.
func (k *Kit) Execute(ctx context.Context, op string, call web3.ContractCall, wait *bool) (common.Hash, bool, error) {
	call.From = k.Wallet.Account()
	prepared, err := k.Adapter.SimulateContract(ctx, call)
	if err != nil {
		return common.Hash{}, false, withCode(err, xerrors.CodeSimulation, "simulation of "+call.Method+" failed")
	}
	hash, err := k.Adapter.WriteContract(ctx, k.Wallet.Signer(), prepared)
	if err != nil {
		return common.Hash{}, false, withCode(err, xerrors.CodeSubmission, "submission of "+call.Method+" failed")
	}
	logger.Audit().Info("transaction submitted",
		slog.String("action", op),
		slog.String("method", call.Method),
		slog.String("contract", call.Address.Hex()),
		slog.String("tx_hash", hash.Hex()),
		slog.String("wallet", k.Wallet.Address()))

	confirmed, err := k.Confirm(ctx, op, wait, hash)
	if err != nil {
		code := xerrors.CodeOf(err)
		if code == xerrors.CodeUnknown {
			code = xerrors.CodeConfirmationTimeout
		}
		return hash, confirmed, xerrors.Wrap(code, err, "transaction "+hash.Hex()+" was submitted but not confirmed",
			xerrors.WithMetadata("txHash", hash.Hex()))
	}
	return hash, confirmed, nil
}

// withCode keeps coded errors as they are and wraps the rest.
func withCode(err error, code xerrors.Code, message string) error {
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(code, err, message)
}

// Close releases the chain adapter.
func (k *Kit) Close() {
	if k.Adapter != nil {
		k.Adapter.Close()
	}
}

func blockNumber(r *types.Receipt) uint64 {
	if r == nil || r.BlockNumber == nil {
		return 0
	}
	return r.BlockNumber.Uint64()
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
