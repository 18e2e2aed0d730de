package kit

import (
	"context"
	"log/slog"

	"StoryAgent-Kit/internal/config"
	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/tokens"
	"StoryAgent-Kit/internal/wallet"
	"StoryAgent-Kit/internal/web3"
	"StoryAgent-Kit/internal/web3/ethereum"
	"StoryAgent-Kit/pkg/logger"
)

// Open builds a Kit from configuration: it resolves the chain, dials the RPC
// endpoint and loads the wallet key. A missing private key is fatal.
func Open(ctx context.Context, cfg *config.Config) (*Kit, error) {
	if cfg == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "配置不能为空")
	}
	key, err := cfg.Web3.PrivateKey()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "无法创建钱包")
	}

	defs, err := web3.LoadChainDefinitions(cfg.Web3.ChainConfig)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "加载链配置失败")
	}
	chain, err := defs.Resolve(cfg.Web3.Chain, cfg.Web3.RPCURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析链配置失败")
	}

	client, err := ethereum.NewClient(ctx, ethereum.Config{
		Name:    cfg.Web3.Chain,
		RPCURL:  chain.RPCURL,
		ChainID: chain.ChainID,
	},
		ethereum.WithReceiptTimeout(cfg.Web3.ReceiptTimeout()),
		ethereum.WithPollInterval(cfg.Web3.ReceiptPollInterval()),
	)
	if err != nil {
		return nil, err
	}

	w, err := wallet.New(key, client)
	if err != nil {
		client.Close()
		return nil, err
	}

	k, err := New(w, client,
		WithChain(chain),
		WithTokens(tokens.FromChain(chain)),
		WithVault(cfg.Metapool.VaultAddress),
		WithAPYURL(cfg.Metapool.APYURL),
		WithHTTPClient(newHTTPClient(cfg.Metapool.Timeout())),
		WithConfirmation(cfg.Web3.WaitForConfirmation),
	)
	if err != nil {
		client.Close()
		return nil, err
	}
	logger.Named("kit").Info("agent kit ready",
		slog.String("chain", cfg.Web3.Chain),
		slog.Int64("chain_id", chain.ChainID),
		slog.String("address", w.Address()))
	return k, nil
}
