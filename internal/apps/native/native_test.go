package native

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"StoryAgent-Kit/internal/action"
	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/kit/kittest"
)

func newRegistry(t *testing.T) *action.Registry {
	t.Helper()
	reg := action.NewRegistry()
	if err := reg.Register(Actions()...); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestBalanceDefaultsToWallet(t *testing.T) {
	t.Parallel()

	k, adapter := kittest.New(t)
	adapter.Balances[k.Wallet.Account()] = big.NewInt(2_500_000_000_000_000_000)

	res := newRegistry(t).Invoke(context.Background(), k, BalanceAction, nil)
	if !res.OK() {
		t.Fatalf("unexpected result %v", res)
	}
	if res["balance"] != "2.5" || res["address"] != k.Wallet.Address() {
		t.Fatalf("unexpected balance result %v", res)
	}
}

func TestBalanceRejectsMalformedAddress(t *testing.T) {
	t.Parallel()

	k, adapter := kittest.New(t)
	res := newRegistry(t).Invoke(context.Background(), k, BalanceAction, map[string]any{"address": "0x12"})
	if res.Code() != string(xerrors.CodeInvalidInput) || res["field"] != "address" {
		t.Fatalf("expected invalid input on address, got %v", res)
	}
	if len(adapter.CallLog()) != 0 {
		t.Fatalf("no chain call expected, got %v", adapter.CallLog())
	}
}

func TestTransferReturnsWithoutWaitingByDefault(t *testing.T) {
	t.Parallel()

	k, adapter := kittest.New(t)
	to := "0x1234567890123456789012345678901234567890"
	res := newRegistry(t).Invoke(context.Background(), k, TransferAction, map[string]any{"to": to, "amount": "1.5"})
	if !res.OK() {
		t.Fatalf("unexpected result %v", res)
	}
	if res["from"] != k.Wallet.Address() || res["to"] != to || res["amount"] != "1.5" {
		t.Fatalf("unexpected transfer result %v", res)
	}
	if len(adapter.Sent) != 1 || adapter.Sent[0].Value.String() != "1500000000000000000" {
		t.Fatalf("unexpected transfers %v", adapter.Sent)
	}
	if len(adapter.Waited) != 0 {
		t.Fatalf("native transfer should not wait by default")
	}
}

func TestTransferWaitsWhenAsked(t *testing.T) {
	t.Parallel()

	k, adapter := kittest.New(t)
	res := newRegistry(t).Invoke(context.Background(), k, TransferAction, map[string]any{
		"to":                  "0x1234567890123456789012345678901234567890",
		"amount":              "1",
		"waitForConfirmation": true,
	})
	if !res.OK() || res["confirmed"] != true || len(adapter.Waited) != 1 {
		t.Fatalf("expected a confirmed transfer, got %v (waits %d)", res, len(adapter.Waited))
	}
}

func TestTransferSubmissionFailure(t *testing.T) {
	t.Parallel()

	k, adapter := kittest.New(t)
	adapter.SubmitErr = errors.New("insufficient funds for gas * price + value")
	res := newRegistry(t).Invoke(context.Background(), k, TransferAction, map[string]any{
		"to":     "0x1234567890123456789012345678901234567890",
		"amount": "1",
	})
	if res.Code() != string(xerrors.CodeSubmission) {
		t.Fatalf("expected submission failure, got %v", res)
	}
}
