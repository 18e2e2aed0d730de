package metapool

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"StoryAgent-Kit/internal/action"
	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/kit"
	"StoryAgent-Kit/internal/kit/kittest"
	"StoryAgent-Kit/internal/web3"
	"StoryAgent-Kit/internal/web3/web3test"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, opts ...kit.Option) (*kit.Kit, *web3test.Adapter, *action.Registry) {
	t.Helper()
	k, adapter := kittest.New(t, opts...)
	reg := action.NewRegistry()
	require.NoError(t, reg.Register(Actions()...))
	return k, adapter, reg
}

func ether(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

func TestTotalValueLocked(t *testing.T) {
	t.Parallel()

	k, adapter, reg := setup(t)
	adapter.Reads["totalAssets"] = func(call web3.ContractCall) ([]any, error) {
		if call.Address != common.HexToAddress(kit.DefaultVaultAddress) {
			return nil, errors.New("wrong vault")
		}
		return []any{ether("1000000500000000000000000")}, nil
	}
	adapter.Reads["decimals"] = web3test.Returns(uint8(18))
	adapter.Reads["symbol"] = web3test.Returns("stIP")

	res := reg.Invoke(context.Background(), k, TVLAction, nil)
	require.True(t, res.OK(), "result: %v", res)
	assert.Equal(t, "1000000.5", res["tvl"])
	assert.Equal(t, "stIP", res["symbol"])
	assert.Equal(t, "1000000.5 stIP", res["formattedTvl"])
}

func TestStakeAttachesValueAndDoesNotWait(t *testing.T) {
	t.Parallel()

	k, adapter, reg := setup(t)
	res := reg.Invoke(context.Background(), k, StakeAction, map[string]any{"amount": "10"})
	require.True(t, res.OK(), "result: %v", res)
	assert.Equal(t, "10", res["amount"])
	assert.Equal(t, false, res["confirmed"])
	assert.Equal(t, []string{"simulate:depositIP", "write:depositIP"}, adapter.CallLog())

	require.Len(t, adapter.Written, 1)
	assert.Equal(t, "10000000000000000000", adapter.Written[0].Value.String())
	args, err := VaultABI.Methods["depositIP"].Inputs.Unpack(adapter.Written[0].Data[4:])
	require.NoError(t, err)
	assert.Equal(t, k.Wallet.Account(), args[0])
}

func TestStakeRejectsZero(t *testing.T) {
	t.Parallel()

	k, adapter, _ := setup(t)
	_, err := StakeIP(context.Background(), k, "0", nil)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeValidation), "got %v", err)
	assert.Empty(t, adapter.CallLog())
}

func TestUnstake(t *testing.T) {
	t.Parallel()

	t.Run("below minimum touches nothing", func(t *testing.T) {
		k, adapter, reg := setup(t)
		res := reg.Invoke(context.Background(), k, UnstakeAction, map[string]any{"amount": "0.05"})
		assert.Equal(t, string(xerrors.CodeValidation), res.Code())
		assert.Equal(t, "Minimum unstake amount is 0.1 stIP", res.Message())
		assert.Empty(t, adapter.CallLog())
	})

	t.Run("fixed amount", func(t *testing.T) {
		k, adapter, reg := setup(t)
		res := reg.Invoke(context.Background(), k, UnstakeAction, map[string]any{"amount": "1"})
		require.True(t, res.OK(), "result: %v", res)
		assert.Equal(t, "1", res["amount"])
		assert.Equal(t, false, res["unstakeAll"])
		assert.Equal(t, UnlockNote, res["note"])

		require.Len(t, adapter.Written, 1)
		args, err := VaultABI.Methods["redeem"].Inputs.Unpack(adapter.Written[0].Data[4:])
		require.NoError(t, err)
		assert.Equal(t, "1000000000000000000", args[0].(*big.Int).String())
		assert.Equal(t, k.Wallet.Account(), args[1])
		assert.Equal(t, k.Wallet.Account(), args[2])
	})

	t.Run("all redeems the balance", func(t *testing.T) {
		k, adapter, reg := setup(t)
		adapter.Reads["balanceOf"] = web3test.Returns(ether("12500000000000000000"))
		res := reg.Invoke(context.Background(), k, UnstakeAction, map[string]any{"amount": "ALL", "waitForConfirmation": true})
		require.True(t, res.OK(), "result: %v", res)
		assert.Equal(t, "12.5", res["amount"])
		assert.Equal(t, true, res["unstakeAll"])
		assert.Equal(t, true, res["confirmed"])
		assert.Equal(t, []string{"read:balanceOf", "simulate:redeem", "write:redeem", "wait"}, adapter.CallLog())
	})

	t.Run("all with empty balance", func(t *testing.T) {
		k, adapter, reg := setup(t)
		adapter.Reads["balanceOf"] = web3test.Returns(big.NewInt(0))
		res := reg.Invoke(context.Background(), k, UnstakeAction, map[string]any{"amount": "all"})
		assert.Equal(t, string(xerrors.CodeInsufficientBalance), res.Code())
		assert.Equal(t, "You have no stIP tokens to unstake", res.Message())
		assert.Empty(t, adapter.Written)
	})
}

func TestStIPBalance(t *testing.T) {
	t.Parallel()

	k, adapter, _ := setup(t)
	adapter.Reads["balanceOf"] = web3test.Returns(ether("2250000000000000000"))
	got, err := GetStIPBalance(context.Background(), k, "")
	require.NoError(t, err)
	assert.Equal(t, "2.25", got)

	_, err = GetStIPBalance(context.Background(), k, "nope")
	assert.Error(t, err)
}

func TestStakingAPY(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"st_ip_apy":14.97,"st_ip_3_day_apy":36.12,"st_ip_7_day_apy":15.89,"st_ip_15_day_apy":8.1,"st_ip_30_day_apy":0}`))
	}))
	t.Cleanup(srv.Close)

	k, _, reg := setup(t, kit.WithAPYURL(srv.URL))
	res := reg.Invoke(context.Background(), k, APYAction, map[string]any{})
	require.True(t, res.OK(), "result: %v", res)
	assert.Equal(t, 14.97, res["apy"])
	assert.Equal(t, "14.97%", res["formattedAPY"])
	require.NotNil(t, res["threeDay"])
	assert.Equal(t, 36.12, *res["threeDay"].(*float64))
	assert.Nil(t, res["thirtyDay"].(*float64))
}

func TestStakingAPYUpstreamFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	k, _, _ := setup(t, kit.WithAPYURL(srv.URL))
	_, err := GetStakingAPY(context.Background(), k)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeUpstream), "got %v", err)
}
