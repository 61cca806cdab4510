// Package tokens holds the static registry of tradable ERC-20 tokens.
//
// The registry maps token contract addresses to display symbols and
// decimals. It is loaded once from configuration and never mutated;
// lookups are by lowercased address so callers don't have to worry
// about checksum casing.
package tokens

import (
	"fmt"
	"strconv"
	"strings"
)

// Token describes one tradable ERC-20.
type Token struct {
	Symbol   string
	Address  string // 0x-prefixed, stored lowercase
	Decimals uint8
}

// Registry is an immutable address→token lookup table.
type Registry struct {
	byAddr   map[string]Token
	bySymbol map[string]Token
	ordered  []Token

	fallbackDecimals uint8
}

// NewRegistry builds a registry from a token list. Addresses are
// normalized to lowercase. fallbackDecimals is used when a token's
// decimals cannot be read on-chain and the token is not in the table.
func NewRegistry(list []Token, fallbackDecimals uint8) *Registry {
	r := &Registry{
		byAddr:           make(map[string]Token, len(list)),
		bySymbol:         make(map[string]Token, len(list)),
		fallbackDecimals: fallbackDecimals,
	}
	for _, t := range list {
		t.Address = strings.ToLower(t.Address)
		r.byAddr[t.Address] = t
		r.bySymbol[strings.ToUpper(t.Symbol)] = t
		r.ordered = append(r.ordered, t)
	}
	return r
}

// Parse builds a registry from the TOKEN_REGISTRY env format:
// "HEX:0xabc...:18,USDT:0xdef...:18,VET:0x123...:0".
func Parse(spec string, fallbackDecimals uint8) (*Registry, error) {
	if strings.TrimSpace(spec) == "" {
		return NewRegistry(nil, fallbackDecimals), nil
	}
	var list []Token
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("tokens: bad registry entry %q (want SYMBOL:ADDRESS:DECIMALS)", entry)
		}
		dec, err := strconv.ParseUint(parts[2], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("tokens: bad decimals in %q: %w", entry, err)
		}
		list = append(list, Token{
			Symbol:   strings.ToUpper(strings.TrimSpace(parts[0])),
			Address:  strings.TrimSpace(parts[1]),
			Decimals: uint8(dec),
		})
	}
	return NewRegistry(list, fallbackDecimals), nil
}

// ByAddress looks up a token by contract address (any casing).
func (r *Registry) ByAddress(addr string) (Token, bool) {
	t, ok := r.byAddr[strings.ToLower(addr)]
	return t, ok
}

// BySymbol looks up a token by symbol (any casing).
func (r *Registry) BySymbol(symbol string) (Token, bool) {
	t, ok := r.bySymbol[strings.ToUpper(symbol)]
	return t, ok
}

// Symbol returns the display symbol for an address, or "-" if the
// address is not in the table.
func (r *Registry) Symbol(addr string) string {
	if t, ok := r.ByAddress(addr); ok {
		return t.Symbol
	}
	return "-"
}

// DecimalsOr returns the configured decimals for an address, or the
// registry fallback if the address is unknown.
func (r *Registry) DecimalsOr(addr string) uint8 {
	if t, ok := r.ByAddress(addr); ok {
		return t.Decimals
	}
	return r.fallbackDecimals
}

// FallbackDecimals returns the configured default decimals.
func (r *Registry) FallbackDecimals() uint8 { return r.fallbackDecimals }

// All returns the tokens in registration order.
func (r *Registry) All() []Token {
	out := make([]Token, len(r.ordered))
	copy(out, r.ordered)
	return out
}
