package apps

import (
	"testing"

	"StoryAgent-Kit/internal/action"
	xerrors "StoryAgent-Kit/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryHoldsEveryAction(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"NATIVE_BALANCE_ACTION",
		"NATIVE_TRANSFER_ACTION",
		"approveToken",
		"getStakingAPY",
		"getTokenAllowance",
		"getTokenBalance",
		"getTokenInfo",
		"getTotalValueLocked",
		"stake",
		"transferToken",
		"unstake",
	}, reg.Names())

	for _, tool := range []string{
		"native_balance", "native_transfer",
		"erc20_balance", "erc20_transfer", "erc20_approve", "erc20_allowance", "erc20_info",
		"metapool_tvl", "metapool_stake", "metapool_unstake", "metapool_apy",
	} {
		_, ok := reg.ByTool(tool)
		assert.True(t, ok, tool)
	}
}

func TestRegisterTwiceIsDuplicate(t *testing.T) {
	reg := action.NewRegistry()
	require.NoError(t, Register(reg))
	err := Register(reg)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeDuplicateAction), "got %v", err)
}

func TestEveryActionDocumentsItself(t *testing.T) {
	for _, info := range Actions() {
		i := info.Info()
		assert.NotEmpty(t, i.Description, i.Name)
		assert.NotEmpty(t, i.Similes, i.Name)
		assert.NotEmpty(t, i.Examples, i.Name)
		assert.Contains(t, string(i.InputSchema), `"type":"object"`, i.Name)
	}
}
