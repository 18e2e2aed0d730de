// Package native exposes the native IP balance and transfer operations.
package native

import (
	"context"

	"StoryAgent-Kit/internal/kit"
)

// Balance is the outcome of a native balance query.
type Balance struct {
	Balance string `json:"balance"`
	Address string `json:"address"`
}

// Transfer is the outcome of a native transfer.
type Transfer struct {
	TxHash    string `json:"txHash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Confirmed bool   `json:"confirmed"`
}

// GetBalance returns the native balance of address, or of the kit wallet when
// address is empty.
func GetBalance(ctx context.Context, k *kit.Kit, address string) (*Balance, error) {
	balance, err := k.Wallet.GetBalance(ctx, address)
	if err != nil {
		return nil, err
	}
	if address == "" {
		address = k.Wallet.Address()
	}
	return &Balance{Balance: balance, Address: address}, nil
}

// Send transfers amount IP to the recipient. It returns once the node has
// accepted the transaction, unless the confirmation policy (or wait) asks
// to block until it is mined.
func Send(ctx context.Context, k *kit.Kit, to, amount string, wait *bool) (*Transfer, error) {
	hash, err := k.Wallet.Transfer(ctx, to, amount)
	if err != nil {
		return nil, err
	}
	confirmed, err := k.Confirm(ctx, kit.OpNativeTransfer, wait, hash)
	if err != nil {
		return nil, err
	}
	return &Transfer{
		TxHash:    hash.Hex(),
		From:      k.Wallet.Address(),
		To:        to,
		Amount:    amount,
		Confirmed: confirmed,
	}, nil
}
