package native

import (
	"context"
	"strings"

	"StoryAgent-Kit/internal/action"
	"StoryAgent-Kit/internal/kit"
	"StoryAgent-Kit/internal/wallet"
)

// Action and tool names.
const (
	BalanceAction  = "NATIVE_BALANCE_ACTION"
	TransferAction = "NATIVE_TRANSFER_ACTION"

	BalanceTool  = "native_balance"
	TransferTool = "native_transfer"
)

// BalanceInput is the input of NATIVE_BALANCE_ACTION.
type BalanceInput struct {
	Address string `json:"address,omitempty" jsonschema_description:"The wallet address to check. Defaults to your own wallet."`
}

func (in BalanceInput) Validate() error {
	if in.Address != "" && !wallet.IsAddress(strings.TrimSpace(in.Address)) {
		return action.Invalid("address", "must be a 0x-prefixed 40 hex character address")
	}
	return nil
}

// TransferInput is the input of NATIVE_TRANSFER_ACTION.
type TransferInput struct {
	To                  string `json:"to" jsonschema_description:"The recipient address"`
	Amount              string `json:"amount" jsonschema_description:"The amount to transfer in IP"`
	WaitForConfirmation *bool  `json:"waitForConfirmation,omitempty" jsonschema_description:"Block until the transaction is mined"`
}

func (in TransferInput) Validate() error {
	if !wallet.IsAddress(strings.TrimSpace(in.To)) {
		return action.Invalid("to", "must be a 0x-prefixed 40 hex character address")
	}
	if strings.TrimSpace(in.Amount) == "" {
		return action.Invalid("amount", "must not be empty")
	}
	return nil
}

// Actions returns the native dispatch records.
func Actions() []*action.Action {
	return []*action.Action{balanceAction(), transferAction()}
}

func balanceAction() *action.Action {
	return action.Define(action.Meta{
		Name:     BalanceAction,
		ToolName: BalanceTool,
		Similes:  []string{"check balance", "get wallet balance", "view balance", "show balance"},
		Description: "Get the balance of a Story wallet.\n" +
			"If you want to get the balance of your wallet, you don't need to provide the address.",
		Examples: [][]action.Example{
			{{
				Input:       map[string]any{},
				Output:      map[string]any{"status": "success", "balance": "100", "address": "0x..."},
				Explanation: "Get the balance of the current wallet",
			}},
			{{
				Input:       map[string]any{"address": "0x1234567890123456789012345678901234567890"},
				Output:      map[string]any{"status": "success", "balance": "50", "address": "0x1234567890123456789012345678901234567890"},
				Explanation: "Get the balance of a specific wallet",
			}},
		},
	}, func(ctx context.Context, k *kit.Kit, in BalanceInput) (action.Result, error) {
		b, err := GetBalance(ctx, k, strings.TrimSpace(in.Address))
		if err != nil {
			return action.Failure(err), nil
		}
		return action.Success(map[string]any{"balance": b.Balance, "address": b.Address}), nil
	})
}

func transferAction() *action.Action {
	return action.Define(action.Meta{
		Name:        TransferAction,
		ToolName:    TransferTool,
		Similes:     []string{"transfer IP", "send IP", "send native tokens", "transfer native tokens"},
		Description: "Transfer native tokens (IP) to another address.",
		Examples: [][]action.Example{
			{{
				Input: map[string]any{"to": "0x1234567890123456789012345678901234567890", "amount": "1.5"},
				Output: map[string]any{
					"status": "success",
					"txHash": "0xabcdef...",
					"from":   "0x...",
					"to":     "0x1234567890123456789012345678901234567890",
					"amount": "1.5",
				},
				Explanation: "Transfer 1.5 IP to the specified address",
			}},
		},
	}, func(ctx context.Context, k *kit.Kit, in TransferInput) (action.Result, error) {
		tr, err := Send(ctx, k, strings.TrimSpace(in.To), strings.TrimSpace(in.Amount), in.WaitForConfirmation)
		if err != nil {
			return action.Failure(err), nil
		}
		return action.Success(map[string]any{
			"txHash":    tr.TxHash,
			"from":      tr.From,
			"to":        tr.To,
			"amount":    tr.Amount,
			"confirmed": tr.Confirmed,
		}), nil
	})
}
