// Package metapool integrates the Metapool liquid staking vault on Story:
// staking native IP for stIP, redeeming stIP, vault TVL and staking APY.
package metapool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/kit"
	"StoryAgent-Kit/internal/wallet"
	"StoryAgent-Kit/internal/web3"
	"StoryAgent-Kit/internal/web3/units"
	"StoryAgent-Kit/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// StakedDecimals is the precision of stIP and of the staked native IP.
const StakedDecimals = 18

// UnlockNote is attached to every unstake result.
const UnlockNote = "Your funds will be released after a 14-day waiting period"

// MinUnstake is the smallest redeemable amount, 0.1 stIP.
var MinUnstake = big.NewInt(100_000_000_000_000_000)

const vaultJSON = `[
	{"type":"function","name":"totalAssets","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"depositIP","stateMutability":"payable","inputs":[{"name":"receiver","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"redeem","stateMutability":"nonpayable","inputs":[{"name":"shares","type":"uint256"},{"name":"receiver","type":"address"},{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// VaultABI is the subset of the staked IP vault used here.
var VaultABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(vaultJSON))
	if err != nil {
		panic("metapool: invalid ABI: " + err.Error())
	}
	return parsed
}()

// TVL is the total value locked in the vault.
type TVL struct {
	Amount string `json:"tvl"`
	Symbol string `json:"symbol"`
}

// Formatted renders "amount symbol".
func (t TVL) Formatted() string { return t.Amount + " " + t.Symbol }

// Stake is the outcome of a deposit.
type Stake struct {
	TxHash    string `json:"txHash"`
	Amount    string `json:"amount"`
	Confirmed bool   `json:"confirmed"`
}

// Unstake is the outcome of a redemption.
type Unstake struct {
	TxHash     string `json:"txHash"`
	Amount     string `json:"amount"`
	UnstakeAll bool   `json:"unstakeAll"`
	Note       string `json:"note"`
	Confirmed  bool   `json:"confirmed"`
}

// APY holds the current and trailing staking yields in percent. Windows the
// feed does not report are nil.
type APY struct {
	APY        float64  `json:"apy"`
	ThreeDay   *float64 `json:"threeDay"`
	SevenDay   *float64 `json:"sevenDay"`
	FifteenDay *float64 `json:"fifteenDay"`
	ThirtyDay  *float64 `json:"thirtyDay"`
}

// Formatted renders the current APY as a percentage.
func (a APY) Formatted() string {
	return strconv.FormatFloat(a.APY, 'f', -1, 64) + "%"
}

// GetTotalValueLocked reads totalAssets, decimals and symbol from the vault.
func GetTotalValueLocked(ctx context.Context, k *kit.Kit) (*TVL, error) {
	assets, err := readUint(ctx, k, "totalAssets")
	if err != nil {
		return nil, err
	}
	out, err := read(ctx, k, "decimals")
	if err != nil {
		return nil, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return nil, unexpected("decimals", out[0])
	}
	out, err = read(ctx, k, "symbol")
	if err != nil {
		return nil, err
	}
	symbol, ok := out[0].(string)
	if !ok {
		return nil, unexpected("symbol", out[0])
	}
	return &TVL{Amount: units.Format(assets, decimals), Symbol: symbol}, nil
}

// StakeIP deposits amount native IP and mints stIP to the wallet. By default
// it returns as soon as the transaction is broadcast.
func StakeIP(ctx context.Context, k *kit.Kit, amount string, wait *bool) (*Stake, error) {
	value, err := units.Parse(amount, StakedDecimals)
	if err != nil {
		return nil, err
	}
	if !units.IsPositive(value) {
		return nil, xerrors.New(xerrors.CodeValidation, "amount must be greater than zero")
	}
	hash, confirmed, err := k.Execute(ctx, kit.OpStake, web3.ContractCall{
		Address: k.Vault,
		ABI:     VaultABI,
		Method:  "depositIP",
		Args:    []any{k.Wallet.Account()},
		Value:   value,
	}, wait)
	if err != nil {
		return nil, err
	}
	return &Stake{TxHash: hash.Hex(), Amount: amount, Confirmed: confirmed}, nil
}

// UnstakeIP redeems stIP for IP. amount may be "all" (any case), which
// redeems the whole balance and fails with INSUFFICIENT_BALANCE when it is
// zero. Other amounts below MinUnstake are rejected without touching the
// chain.
func UnstakeIP(ctx context.Context, k *kit.Kit, amount string, wait *bool) (*Unstake, error) {
	amount = strings.TrimSpace(amount)
	all := strings.EqualFold(amount, "all")

	var shares *big.Int
	if all {
		balance, err := stakedBalance(ctx, k, k.Wallet.Account())
		if err != nil {
			return nil, err
		}
		if balance.Sign() == 0 {
			return nil, xerrors.New(xerrors.CodeInsufficientBalance, "You have no stIP tokens to unstake")
		}
		shares = balance
		amount = units.Format(balance, StakedDecimals)
	} else {
		parsed, err := units.Parse(amount, StakedDecimals)
		if err != nil {
			return nil, err
		}
		if parsed.Cmp(MinUnstake) < 0 {
			return nil, xerrors.New(xerrors.CodeValidation, "Minimum unstake amount is 0.1 stIP")
		}
		shares = parsed
	}

	owner := k.Wallet.Account()
	hash, confirmed, err := k.Execute(ctx, kit.OpUnstake, web3.ContractCall{
		Address: k.Vault,
		ABI:     VaultABI,
		Method:  "redeem",
		Args:    []any{shares, owner, owner},
	}, wait)
	if err != nil {
		return nil, err
	}
	return &Unstake{
		TxHash:     hash.Hex(),
		Amount:     amount,
		UnstakeAll: all,
		Note:       UnlockNote,
		Confirmed:  confirmed,
	}, nil
}

// GetStIPBalance returns the formatted stIP balance of address, or of the
// wallet when address is empty.
func GetStIPBalance(ctx context.Context, k *kit.Kit, address string) (string, error) {
	holder := k.Wallet.Account()
	if strings.TrimSpace(address) != "" {
		parsed, err := wallet.ParseAddress(address)
		if err != nil {
			return "", err
		}
		holder = parsed
	}
	balance, err := stakedBalance(ctx, k, holder)
	if err != nil {
		return "", err
	}
	return units.Format(balance, StakedDecimals), nil
}

// apyFeed mirrors the fields of the Narwallets metrics document we use.
type apyFeed struct {
	APY        float64 `json:"st_ip_apy"`
	ThreeDay   float64 `json:"st_ip_3_day_apy"`
	SevenDay   float64 `json:"st_ip_7_day_apy"`
	FifteenDay float64 `json:"st_ip_15_day_apy"`
	ThirtyDay  float64 `json:"st_ip_30_day_apy"`
}

// GetStakingAPY fetches the current and trailing APY from the metrics feed.
// Zero or missing trailing windows are reported as nil.
func GetStakingAPY(ctx context.Context, k *kit.Kit) (*APY, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.APYURL, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "failed to build APY request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.HTTPClient.Do(req)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "failed to fetch APY data")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Newf(xerrors.CodeUpstream, "failed to fetch APY data: %s", resp.Status)
	}
	var feed apyFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "failed to decode APY data")
	}
	logger.Named("metapool").Debug("apy fetched", slog.Float64("apy", feed.APY))
	return &APY{
		APY:        feed.APY,
		ThreeDay:   nonZero(feed.ThreeDay),
		SevenDay:   nonZero(feed.SevenDay),
		FifteenDay: nonZero(feed.FifteenDay),
		ThirtyDay:  nonZero(feed.ThirtyDay),
	}, nil
}

func nonZero(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

func stakedBalance(ctx context.Context, k *kit.Kit, holder common.Address) (*big.Int, error) {
	return readUint(ctx, k, "balanceOf", holder)
}

func readUint(ctx context.Context, k *kit.Kit, method string, args ...any) (*big.Int, error) {
	out, err := read(ctx, k, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, unexpected(method, out[0])
	}
	return v, nil
}

func read(ctx context.Context, k *kit.Kit, method string, args ...any) ([]any, error) {
	out, err := k.Adapter.ReadContract(ctx, web3.ContractCall{Address: k.Vault, ABI: VaultABI, Method: method, Args: args})
	if err != nil {
		if _, ok := xerrors.From(err); ok {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeChainQuery, err, "failed to read "+method)
	}
	if len(out) == 0 {
		return nil, xerrors.Newf(xerrors.CodeChainQuery, "%s returned no value", method)
	}
	return out, nil
}

func unexpected(method string, v any) error {
	return xerrors.New(xerrors.CodeChainQuery, fmt.Sprintf("%s returned unexpected type %T", method, v))
}
