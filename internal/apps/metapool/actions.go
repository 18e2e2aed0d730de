package metapool

import (
	"context"
	"strings"

	"StoryAgent-Kit/internal/action"
	"StoryAgent-Kit/internal/kit"
)

// Action names.
const (
	TVLAction     = "getTotalValueLocked"
	StakeAction   = "stake"
	UnstakeAction = "unstake"
	APYAction     = "getStakingAPY"
)

// Tool names.
const (
	TVLTool     = "metapool_tvl"
	StakeTool   = "metapool_stake"
	UnstakeTool = "metapool_unstake"
	APYTool     = "metapool_apy"
)

const exampleHash = "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"

// NoInput is the input of the parameterless reads.
type NoInput struct{}

func (NoInput) Validate() error { return nil }

// StakeInput is the input of stake.
type StakeInput struct {
	Amount              string `json:"amount" jsonschema_description:"The amount of IP tokens to stake"`
	WaitForConfirmation *bool  `json:"waitForConfirmation,omitempty" jsonschema_description:"Block until the transaction is mined (default false)"`
}

func (in StakeInput) Validate() error {
	if strings.TrimSpace(in.Amount) == "" {
		return action.Invalid("amount", "must not be empty")
	}
	return nil
}

// UnstakeInput is the input of unstake.
type UnstakeInput struct {
	Amount              string `json:"amount" jsonschema_description:"The amount of stIP tokens to unstake or all to unstake everything"`
	WaitForConfirmation *bool  `json:"waitForConfirmation,omitempty" jsonschema_description:"Block until the transaction is mined (default false)"`
}

func (in UnstakeInput) Validate() error {
	if strings.TrimSpace(in.Amount) == "" {
		return action.Invalid("amount", "must not be empty")
	}
	return nil
}

// Actions returns the Metapool dispatch records.
func Actions() []*action.Action {
	return []*action.Action{tvlAction(), stakeAction(), unstakeAction(), apyAction()}
}

func tvlAction() *action.Action {
	return action.Define(action.Meta{
		Name:     TVLAction,
		ToolName: TVLTool,
		Similes:  []string{"check tvl", "get metapool tvl", "view total value locked", "show metapool assets"},
		Description: "Get the total value locked (TVL) in the Metapool contract on Story Protocol. " +
			"Metapool is a multichain application, but this action specifically checks the TVL on Story Protocol.",
		Examples: [][]action.Example{{{
			Input:       map[string]any{},
			Output:      map[string]any{"status": "success", "tvl": "1000000.5", "symbol": "stIP", "formattedTvl": "1000000.5 stIP"},
			Explanation: "Get the total value locked (TVL) in the Metapool contract",
		}}},
	}, func(ctx context.Context, k *kit.Kit, _ NoInput) (action.Result, error) {
		tvl, err := GetTotalValueLocked(ctx, k)
		if err != nil {
			return action.Failure(err), nil
		}
		return action.Success(map[string]any{
			"tvl":          tvl.Amount,
			"symbol":       tvl.Symbol,
			"formattedTvl": tvl.Formatted(),
		}), nil
	})
}

func stakeAction() *action.Action {
	return action.Define(action.Meta{
		Name:     StakeAction,
		ToolName: StakeTool,
		Similes:  []string{"stake ip", "deposit ip", "get stip", "stake tokens", "deposit tokens"},
		Description: "Stake native IP tokens in the Metapool contract on Story Protocol to receive stIP tokens. " +
			"This action allows you to deposit your native IP tokens and receive staked IP (stIP) tokens in return.",
		Examples: [][]action.Example{{{
			Input:       map[string]any{"amount": "10"},
			Output:      map[string]any{"status": "success", "txHash": exampleHash, "amount": "10"},
			Explanation: "Stake 10 IP tokens to receive stIP tokens",
		}}},
	}, func(ctx context.Context, k *kit.Kit, in StakeInput) (action.Result, error) {
		s, err := StakeIP(ctx, k, strings.TrimSpace(in.Amount), in.WaitForConfirmation)
		if err != nil {
			return action.Failure(err), nil
		}
		return action.Success(map[string]any{
			"txHash":    s.TxHash,
			"amount":    s.Amount,
			"confirmed": s.Confirmed,
		}), nil
	})
}

func unstakeAction() *action.Action {
	return action.Define(action.Meta{
		Name:     UnstakeAction,
		ToolName: UnstakeTool,
		Similes:  []string{"unstake ip", "withdraw ip", "redeem stip", "unstake tokens", "withdraw tokens"},
		Description: "Unstake stIP tokens from the Metapool contract on Story Protocol to receive IP tokens. " +
			"Note: Funds will be released after a 14-day waiting period, and the minimum unstake amount is 0.1 stIP.",
		Examples: [][]action.Example{{
			{
				Input:       map[string]any{"amount": "1"},
				Output:      map[string]any{"status": "success", "txHash": exampleHash, "amount": "1", "unstakeAll": false, "note": UnlockNote},
				Explanation: "Unstake 1 stIP token to receive IP tokens (note: funds will be released after 14 days)",
			},
			{
				Input:       map[string]any{"amount": "all"},
				Output:      map[string]any{"status": "success", "txHash": exampleHash, "amount": "12.5", "unstakeAll": true, "note": UnlockNote},
				Explanation: "Unstake all your stIP tokens to receive IP tokens (note: funds will be released after 14 days)",
			},
		}},
	}, func(ctx context.Context, k *kit.Kit, in UnstakeInput) (action.Result, error) {
		u, err := UnstakeIP(ctx, k, in.Amount, in.WaitForConfirmation)
		if err != nil {
			return action.Failure(err), nil
		}
		return action.Success(map[string]any{
			"txHash":     u.TxHash,
			"amount":     u.Amount,
			"unstakeAll": u.UnstakeAll,
			"note":       u.Note,
			"confirmed":  u.Confirmed,
		}), nil
	})
}

func apyAction() *action.Action {
	return action.Define(action.Meta{
		Name:     APYAction,
		ToolName: APYTool,
		Similes:  []string{"check apy", "get metapool apy", "view staking rewards", "show ip staking returns"},
		Description: "Get the current APY (Annual Percentage Yield) for staking IP tokens on Metapool. " +
			"This action returns the current APY as well as historical APY values for different time periods.",
		Examples: [][]action.Example{{{
			Input: map[string]any{},
			Output: map[string]any{
				"status":       "success",
				"apy":          14.97,
				"threeDay":     36.12,
				"sevenDay":     15.89,
				"fifteenDay":   8.1,
				"thirtyDay":    nil,
				"formattedAPY": "14.97%",
			},
			Explanation: "Get the current APY for staking IP tokens on Metapool",
		}}},
	}, func(ctx context.Context, k *kit.Kit, _ NoInput) (action.Result, error) {
		apy, err := GetStakingAPY(ctx, k)
		if err != nil {
			return action.Failure(err), nil
		}
		return action.Success(map[string]any{
			"apy":          apy.APY,
			"threeDay":     apy.ThreeDay,
			"sevenDay":     apy.SevenDay,
			"fifteenDay":   apy.FifteenDay,
			"thirtyDay":    apy.ThirtyDay,
			"formattedAPY": apy.Formatted(),
		}), nil
	})
}
