// Package tokens maps human token references ("usdc", "Tether", an address)
// onto contract addresses.
//
// Resolution is fuzzy: the reference is uppercased, every non-alphanumeric
// rune becomes a space, whitespace is collapsed, and the result matches an
// entry when it equals one of the entry's aliases or contains it. Entries are
// tried in registration order, so "USDT/USDC pair" resolves to USDT. A
// reference that already is an address is returned unchanged.
package tokens

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"StoryAgent-Kit/internal/web3"
)

// Built-in Story mainnet token addresses.
const (
	USDTAddress = "0x674843c06ff83502ddb4d37c2e09c01cda38cbc8"
	USDCAddress = "0xf1815bd50389c46847f0bda824ec8da914045d14"
	STIPAddress = "0xd07Faed671decf3C5A6cc038dAD97c8EFDb507c0"
)

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	separators     = regexp.MustCompile(`[^A-Z0-9]+`)
)

// Entry is a known token.
type Entry struct {
	Symbol  string   `json:"symbol"`
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Aliases []string `json:"aliases"`
}

// Label is the display form, e.g. "USDT (Tether)".
func (e Entry) Label() string {
	return fmt.Sprintf("%s (%s)", e.Symbol, e.Name)
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
}

// Defaults returns the built-in Story mainnet tokens.
func Defaults() []Entry {
	return []Entry{
		{Symbol: "USDT", Name: "Tether", Address: USDTAddress, Aliases: []string{"USDT", "TETHER"}},
		{Symbol: "USDC", Name: "USD Coin", Address: USDCAddress, Aliases: []string{"USDC", "USD COIN"}},
		{Symbol: "STIP", Name: "Story Protocol IP", Address: STIPAddress, Aliases: []string{"STIP", "STAKED IP"}},
	}
}

// NewRegistry builds a registry from the built-ins plus extra entries.
func NewRegistry(extra ...Entry) *Registry {
	r := &Registry{}
	for _, e := range Defaults() {
		r.Add(e)
	}
	for _, e := range extra {
		r.Add(e)
	}
	return r
}

// FromChain builds a registry extended with the tokens of a chain definition.
func FromChain(chain web3.ChainDefinition) *Registry {
	extra := make([]Entry, 0, len(chain.Tokens))
	for _, t := range chain.Tokens {
		extra = append(extra, Entry{Symbol: t.Symbol, Name: t.Name, Address: t.Address, Aliases: t.Aliases})
	}
	return NewRegistry(extra...)
}

// Add registers an entry. The symbol is always an alias.
func (r *Registry) Add(e Entry) {
	aliases := make([]string, 0, len(e.Aliases)+1)
	aliases = append(aliases, normalize(e.Symbol))
	for _, a := range e.Aliases {
		if n := normalize(a); n != "" && n != aliases[0] {
			aliases = append(aliases, n)
		}
	}
	e.Aliases = aliases

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.entries {
		if strings.EqualFold(existing.Symbol, e.Symbol) {
			r.entries[i] = e
			return
		}
	}
	r.entries = append(r.entries, e)
}

// Resolve returns the contract address for a token reference.
func (r *Registry) Resolve(ref string) (string, bool) {
	trimmed := strings.TrimSpace(ref)
	if addressPattern.MatchString(trimmed) {
		return trimmed, true
	}
	normalized := normalize(ref)
	if normalized == "" {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		for _, alias := range e.Aliases {
			if alias != "" && strings.Contains(normalized, alias) {
				return e.Address, true
			}
		}
	}
	return "", false
}

// DisplayName returns the label of a known address, or the input unchanged.
func (r *Registry) DisplayName(address string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if strings.EqualFold(e.Address, strings.TrimSpace(address)) {
			return e.Label()
		}
	}
	return address
}

// Supported returns a copy of the registered entries.
func (r *Registry) Supported() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// SupportedList renders the labels for error messages.
func (r *Registry) SupportedList() string {
	entries := r.Supported()
	labels := make([]string, 0, len(entries))
	for _, e := range entries {
		labels = append(labels, e.Label())
	}
	return strings.Join(labels, ", ")
}

// UnknownTokenMessage is the error text for an unresolvable reference.
func (r *Registry) UnknownTokenMessage(ref string) string {
	return fmt.Sprintf("Unknown token: %s. Please provide a valid token name, symbol, or address. Supported tokens: %s",
		ref, r.SupportedList())
}

func normalize(s string) string {
	upper := strings.ToUpper(s)
	return strings.Join(strings.Fields(separators.ReplaceAllString(upper, " ")), " ")
}
