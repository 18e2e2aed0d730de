package tokens

import (
	"strings"
	"testing"

	"StoryAgent-Kit/internal/web3"
)

func TestResolveFuzzy(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	cases := map[string]string{
		"USDC":             USDCAddress,
		"usdc":             USDCAddress,
		"usd coin":         USDCAddress,
		"USD-Coin":         USDCAddress,
		"  tether  ":       USDTAddress,
		"my usdt balance":  USDTAddress,
		"USDT/USDC pair":   USDTAddress,
		"stIP":             STIPAddress,
		"staked_ip":        STIPAddress,
		"0xAbCdEf0000000000000000000000000000000001": "0xAbCdEf0000000000000000000000000000000001",
	}
	for ref, want := range cases {
		got, ok := r.Resolve(ref)
		if !ok || got != want {
			t.Fatalf("Resolve(%q) = %q, %v; want %q", ref, got, ok, want)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for _, ref := range []string{"", "DOGE", "USD", "0x1234", "0x674843c06ff83502ddb4d37c2e09c01cda38cbc"} {
		if got, ok := r.Resolve(ref); ok {
			t.Fatalf("Resolve(%q) unexpectedly returned %q", ref, got)
		}
	}
	msg := r.UnknownTokenMessage("DOGE")
	if !strings.HasPrefix(msg, "Unknown token: DOGE. Please provide a valid token name, symbol, or address.") {
		t.Fatalf("unexpected message %q", msg)
	}
	if !strings.Contains(msg, "USDT (Tether)") || !strings.Contains(msg, "USDC (USD Coin)") {
		t.Fatalf("message should list supported tokens: %q", msg)
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if got := r.DisplayName(strings.ToUpper(USDTAddress[2:])); got != strings.ToUpper(USDTAddress[2:]) {
		t.Fatalf("non-address input should be echoed, got %q", got)
	}
	if got := r.DisplayName("0x674843C06FF83502DDB4D37C2E09C01CDA38CBC8"); got != "USDT (Tether)" {
		t.Fatalf("unexpected label %q", got)
	}
	unknown := "0x0000000000000000000000000000000000000001"
	if got := r.DisplayName(unknown); got != unknown {
		t.Fatalf("unknown address should be echoed, got %q", got)
	}
}

func TestFromChainAddsTokens(t *testing.T) {
	t.Parallel()

	r := FromChain(web3.ChainDefinition{Tokens: []web3.TokenDefinition{
		{Symbol: "WIP", Name: "Wrapped IP", Address: "0x1514000000000000000000000000000000000000", Aliases: []string{"wrapped ip"}},
	}})
	got, ok := r.Resolve("Wrapped-IP")
	if !ok || got != "0x1514000000000000000000000000000000000000" {
		t.Fatalf("unexpected resolution %q %v", got, ok)
	}
	if len(r.Supported()) != 4 {
		t.Fatalf("expected built-ins plus one, got %d", len(r.Supported()))
	}
}
