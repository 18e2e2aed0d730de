package web3

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Story mainnet defaults used when no chain file is configured.
const (
	StoryChainName      = "story"
	StoryChainID        = 1514
	StoryRPCURL         = "https://mainnet.storyrpc.io"
	StoryNativeSymbol   = "IP"
	StoryNativeDecimals = 18
	StoryExplorerURL    = "https://www.storyscan.io"
)

// ChainDefinitions models the structure of configs/chain.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single chain and the tokens known on it.
type ChainDefinition struct {
	ChainID        int64             `yaml:"chain_id"`
	RPCURL         string            `yaml:"rpc_url"`
	NativeSymbol   string            `yaml:"native_symbol"`
	NativeDecimals uint8             `yaml:"native_decimals"`
	ExplorerURL    string            `yaml:"explorer_url"`
	Description    string            `yaml:"description"`
	Tokens         []TokenDefinition `yaml:"tokens"`
}

// TokenDefinition extends the built-in token registry.
type TokenDefinition struct {
	Symbol  string   `yaml:"symbol"`
	Name    string   `yaml:"name"`
	Address string   `yaml:"address"`
	Aliases []string `yaml:"aliases"`
}

// StoryMainnet returns the built-in definition of Story mainnet.
func StoryMainnet() ChainDefinition {
	return ChainDefinition{
		ChainID:        StoryChainID,
		RPCURL:         StoryRPCURL,
		NativeSymbol:   StoryNativeSymbol,
		NativeDecimals: StoryNativeDecimals,
		ExplorerURL:    StoryExplorerURL,
		Description:    "Story mainnet",
	}
}

// LoadChainDefinitions parses the YAML file containing chain metadata. An
// empty path yields only the built-in Story definition.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	defs := ChainDefinitions{Chains: map[string]ChainDefinition{}}
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
		}
		if err := yaml.Unmarshal(content, &defs); err != nil {
			return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
		}
		if defs.Chains == nil {
			defs.Chains = map[string]ChainDefinition{}
		}
	}
	if _, ok := defs.Chains[StoryChainName]; !ok {
		defs.Chains[StoryChainName] = StoryMainnet()
	}
	return defs, nil
}

// Resolve returns the named chain with unset fields filled from the Story
// defaults. rpcOverride, when non-empty, replaces the configured RPC URL.
func (d ChainDefinitions) Resolve(name, rpcOverride string) (ChainDefinition, error) {
	if name == "" {
		name = StoryChainName
	}
	chain, ok := d.Chains[name]
	if !ok {
		return ChainDefinition{}, fmt.Errorf("链 %s 未在配置中找到", name)
	}
	if chain.NativeSymbol == "" {
		chain.NativeSymbol = StoryNativeSymbol
	}
	if chain.NativeDecimals == 0 {
		chain.NativeDecimals = StoryNativeDecimals
	}
	if strings.TrimSpace(rpcOverride) != "" {
		chain.RPCURL = strings.TrimSpace(rpcOverride)
	}
	if chain.RPCURL == "" {
		return ChainDefinition{}, fmt.Errorf("链 %s 未配置 RPC 地址", name)
	}
	return chain, nil
}
