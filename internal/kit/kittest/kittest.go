// Package kittest builds a Kit over the in-memory adapter for handler tests.
package kittest

import (
	"testing"

	"StoryAgent-Kit/internal/kit"
	"StoryAgent-Kit/internal/wallet"
	"StoryAgent-Kit/internal/web3/web3test"
)

// Key is a throwaway private key; never fund it anywhere real.
const Key = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

// New returns a Kit whose wallet signs with Key and whose chain is adapter.
func New(t testing.TB, opts ...kit.Option) (*kit.Kit, *web3test.Adapter) {
	t.Helper()
	adapter := web3test.New()
	w, err := wallet.New(Key, adapter)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	k, err := kit.New(w, adapter, opts...)
	if err != nil {
		t.Fatalf("kit: %v", err)
	}
	return k, adapter
}
