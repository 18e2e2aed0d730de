package erc20

import (
	"context"
	"strings"

	"StoryAgent-Kit/internal/action"
	"StoryAgent-Kit/internal/kit"
	"StoryAgent-Kit/internal/wallet"
)

// Action names.
const (
	BalanceAction   = "getTokenBalance"
	TransferAction  = "transferToken"
	ApproveAction   = "approveToken"
	AllowanceAction = "getTokenAllowance"
	InfoAction      = "getTokenInfo"
)

// Tool names.
const (
	BalanceTool   = "erc20_balance"
	TransferTool  = "erc20_transfer"
	ApproveTool   = "erc20_approve"
	AllowanceTool = "erc20_allowance"
	InfoTool      = "erc20_info"
)

const daiExample = "0x6B175474E89094C44Da98b954EedeAC495271d0F"

// BalanceInput is the input of getTokenBalance.
type BalanceInput struct {
	TokenAddress string `json:"tokenAddress,omitempty" jsonschema_description:"The address of the ERC20 token"`
	Token        string `json:"token,omitempty" jsonschema_description:"The name or symbol of the token (e.g. USDT or USDC)"`
	OwnerAddress string `json:"ownerAddress,omitempty" jsonschema_description:"The address to check the balance for (defaults to the wallet address)"`
}

func (in BalanceInput) Validate() error {
	if err := requireToken(in.TokenAddress, in.Token); err != nil {
		return err
	}
	return optionalAddress("ownerAddress", in.OwnerAddress)
}

// TransferInput is the input of transferToken.
type TransferInput struct {
	TokenAddress        string `json:"tokenAddress,omitempty" jsonschema_description:"The address of the ERC20 token"`
	Token               string `json:"token,omitempty" jsonschema_description:"The name or symbol of the token (e.g. USDT or USDC)"`
	To                  string `json:"to" jsonschema_description:"The recipient address"`
	Amount              string `json:"amount" jsonschema_description:"The amount to transfer (in token units, not wei)"`
	WaitForConfirmation *bool  `json:"waitForConfirmation,omitempty" jsonschema_description:"Block until the transaction is mined (default true)"`
}

func (in TransferInput) Validate() error {
	if err := requireToken(in.TokenAddress, in.Token); err != nil {
		return err
	}
	if err := requiredAddress("to", in.To); err != nil {
		return err
	}
	return requiredAmount(in.Amount)
}

// ApproveInput is the input of approveToken.
type ApproveInput struct {
	TokenAddress        string `json:"tokenAddress,omitempty" jsonschema_description:"The address of the ERC20 token"`
	Token               string `json:"token,omitempty" jsonschema_description:"The name or symbol of the token (e.g. USDT or USDC)"`
	Spender             string `json:"spender" jsonschema_description:"The address to approve"`
	Amount              string `json:"amount" jsonschema_description:"The amount to approve (in token units, not wei)"`
	WaitForConfirmation *bool  `json:"waitForConfirmation,omitempty" jsonschema_description:"Block until the transaction is mined (default true)"`
}

func (in ApproveInput) Validate() error {
	if err := requireToken(in.TokenAddress, in.Token); err != nil {
		return err
	}
	if err := requiredAddress("spender", in.Spender); err != nil {
		return err
	}
	return requiredAmount(in.Amount)
}

// AllowanceInput is the input of getTokenAllowance.
type AllowanceInput struct {
	TokenAddress   string `json:"tokenAddress,omitempty" jsonschema_description:"The address of the ERC20 token"`
	Token          string `json:"token,omitempty" jsonschema_description:"The name or symbol of the token (e.g. USDT or USDC)"`
	OwnerAddress   string `json:"ownerAddress" jsonschema_description:"The address of the token owner"`
	SpenderAddress string `json:"spenderAddress" jsonschema_description:"The address of the spender"`
}

func (in AllowanceInput) Validate() error {
	if err := requireToken(in.TokenAddress, in.Token); err != nil {
		return err
	}
	if err := requiredAddress("ownerAddress", in.OwnerAddress); err != nil {
		return err
	}
	return requiredAddress("spenderAddress", in.SpenderAddress)
}

// InfoInput is the input of getTokenInfo.
type InfoInput struct {
	TokenAddress string `json:"tokenAddress,omitempty" jsonschema_description:"The address of the ERC20 token"`
	Token        string `json:"token,omitempty" jsonschema_description:"The name or symbol of the token (e.g. USDT or USDC)"`
}

func (in InfoInput) Validate() error {
	return requireToken(in.TokenAddress, in.Token)
}

func requireToken(address, token string) error {
	if strings.TrimSpace(address) == "" && strings.TrimSpace(token) == "" {
		return action.Invalid("tokenAddress", "or token must be provided")
	}
	return nil
}

func requiredAddress(field, value string) error {
	if !wallet.IsAddress(strings.TrimSpace(value)) {
		return action.Invalid(field, "must be a 0x-prefixed 40 hex character address")
	}
	return nil
}

func optionalAddress(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return requiredAddress(field, value)
}

func requiredAmount(amount string) error {
	if strings.TrimSpace(amount) == "" {
		return action.Invalid("amount", "must not be empty")
	}
	return nil
}

// Actions returns the ERC-20 dispatch records.
func Actions() []*action.Action {
	return []*action.Action{
		balanceAction(),
		transferAction(),
		approveAction(),
		allowanceAction(),
		infoAction(),
	}
}

func balanceAction() *action.Action {
	return action.Define(action.Meta{
		Name:        BalanceAction,
		ToolName:    BalanceTool,
		Similes:     []string{"check token balance", "get erc20 balance", "view token balance", "show token balance"},
		Description: "Get the balance of an ERC20 token for a specific address",
		Examples: [][]action.Example{{
			{
				Input: map[string]any{"tokenAddress": daiExample},
				Output: map[string]any{
					"status":       "success",
					"balance":      "100.5",
					"tokenAddress": daiExample,
					"ownerAddress": "0xYourWalletAddress",
				},
				Explanation: "Get the DAI token balance for your wallet address",
			},
			{
				Input: map[string]any{"token": "USDC", "ownerAddress": "0x1234567890123456789012345678901234567890"},
				Output: map[string]any{
					"status":       "success",
					"balance":      "50",
					"tokenAddress": "0xf1815bd50389c46847f0bda824ec8da914045d14",
					"tokenName":    "USDC (USD Coin)",
					"ownerAddress": "0x1234567890123456789012345678901234567890",
				},
				Explanation: "Get the USDC token balance for a specific address",
			},
		}},
	}, func(ctx context.Context, k *kit.Kit, in BalanceInput) (action.Result, error) {
		b, err := GetBalance(ctx, k, in.Token, in.TokenAddress, strings.TrimSpace(in.OwnerAddress))
		if err != nil {
			return action.Failure(err), nil
		}
		return action.Success(map[string]any{
			"balance":      b.Balance,
			"tokenAddress": b.TokenAddress,
			"tokenName":    b.TokenName,
			"ownerAddress": b.OwnerAddress,
		}), nil
	})
}

func transferAction() *action.Action {
	return action.Define(action.Meta{
		Name:        TransferAction,
		ToolName:    TransferTool,
		Similes:     []string{"transfer erc20", "send tokens", "transfer tokens", "send erc20"},
		Description: "Transfer ERC20 tokens to another address",
		Examples: [][]action.Example{{{
			Input: map[string]any{"tokenAddress": daiExample, "to": "0x1234567890123456789012345678901234567890", "amount": "10.5"},
			Output: map[string]any{
				"status":       "success",
				"txHash":       "0xabcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890",
				"tokenAddress": daiExample,
				"to":           "0x1234567890123456789012345678901234567890",
				"amount":       "10.5",
			},
			Explanation: "Transfer 10.5 DAI tokens to the specified address",
		}}},
	}, func(ctx context.Context, k *kit.Kit, in TransferInput) (action.Result, error) {
		s, err := Transfer(ctx, k, in.Token, in.TokenAddress, strings.TrimSpace(in.To), strings.TrimSpace(in.Amount), in.WaitForConfirmation)
		if err != nil {
			return action.Failure(err), nil
		}
		return action.Success(map[string]any{
			"txHash":       s.TxHash,
			"tokenAddress": s.TokenAddress,
			"to":           s.Counterparty,
			"amount":       s.Amount,
			"confirmed":    s.Confirmed,
		}), nil
	})
}

func approveAction() *action.Action {
	return action.Define(action.Meta{
		Name:        ApproveAction,
		ToolName:    ApproveTool,
		Similes:     []string{"approve token spending", "approve erc20", "allow token usage", "set token allowance"},
		Description: "Approve an address to spend tokens on behalf of the wallet owner",
		Examples: [][]action.Example{{{
			Input: map[string]any{"tokenAddress": daiExample, "spender": "0x1234567890123456789012345678901234567890", "amount": "100"},
			Output: map[string]any{
				"status":       "success",
				"txHash":       "0xabcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890",
				"tokenAddress": daiExample,
				"spender":      "0x1234567890123456789012345678901234567890",
				"amount":       "100",
			},
			Explanation: "Approve the spender to use up to 100 DAI tokens on behalf of your wallet",
		}}},
	}, func(ctx context.Context, k *kit.Kit, in ApproveInput) (action.Result, error) {
		s, err := Approve(ctx, k, in.Token, in.TokenAddress, strings.TrimSpace(in.Spender), strings.TrimSpace(in.Amount), in.WaitForConfirmation)
		if err != nil {
			return action.Failure(err), nil
		}
		return action.Success(map[string]any{
			"txHash":       s.TxHash,
			"tokenAddress": s.TokenAddress,
			"spender":      s.Counterparty,
			"amount":       s.Amount,
			"confirmed":    s.Confirmed,
		}), nil
	})
}

func allowanceAction() *action.Action {
	return action.Define(action.Meta{
		Name:        AllowanceAction,
		ToolName:    AllowanceTool,
		Similes:     []string{"check token allowance", "get erc20 allowance", "view token approval", "show token spending limit"},
		Description: "Get the allowance of tokens that a spender can use on behalf of the owner",
		Examples: [][]action.Example{{{
			Input: map[string]any{
				"tokenAddress":   daiExample,
				"ownerAddress":   "0xYourWalletAddress",
				"spenderAddress": "0x1234567890123456789012345678901234567890",
			},
			Output: map[string]any{
				"status":         "success",
				"allowance":      "100",
				"tokenAddress":   daiExample,
				"ownerAddress":   "0xYourWalletAddress",
				"spenderAddress": "0x1234567890123456789012345678901234567890",
			},
			Explanation: "Get the amount of DAI tokens that the spender is allowed to use on behalf of the owner",
		}}},
	}, func(ctx context.Context, k *kit.Kit, in AllowanceInput) (action.Result, error) {
		a, err := GetAllowance(ctx, k, in.Token, in.TokenAddress, strings.TrimSpace(in.OwnerAddress), strings.TrimSpace(in.SpenderAddress))
		if err != nil {
			return action.Failure(err), nil
		}
		return action.Success(map[string]any{
			"allowance":      a.Allowance,
			"tokenAddress":   a.TokenAddress,
			"ownerAddress":   a.OwnerAddress,
			"spenderAddress": a.SpenderAddress,
		}), nil
	})
}

func infoAction() *action.Action {
	return action.Define(action.Meta{
		Name:        InfoAction,
		ToolName:    InfoTool,
		Similes:     []string{"get token details", "token information", "erc20 info", "token metadata"},
		Description: "Get information about an ERC20 token (name, symbol, decimals, total supply)",
		Examples: [][]action.Example{{{
			Input: map[string]any{"tokenAddress": daiExample},
			Output: map[string]any{
				"status": "success",
				"info": map[string]any{
					"name":        "Dai Stablecoin",
					"symbol":      "DAI",
					"decimals":    18,
					"totalSupply": "5000000000",
				},
				"tokenAddress": daiExample,
			},
			Explanation: "Get information about the DAI token (name, symbol, decimals, total supply)",
		}}},
	}, func(ctx context.Context, k *kit.Kit, in InfoInput) (action.Result, error) {
		address, info, err := GetInfo(ctx, k, in.Token, in.TokenAddress)
		if err != nil {
			return action.Failure(err), nil
		}
		return action.Success(map[string]any{
			"info": map[string]any{
				"name":        info.Name,
				"symbol":      info.Symbol,
				"decimals":    info.Decimals,
				"totalSupply": info.TotalSupply,
			},
			"tokenAddress": address,
		}), nil
	})
}
