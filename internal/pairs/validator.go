// Package pairs normalizes trading-pair symbols and enforces the fixed
// allow-list of supported pairs.
package pairs

import (
	"strings"

	"github.com/quantpair/pairgate/internal/domain"
)

// MarketSuffix is appended to every base asset identifier; all supported
// symbols trade on the derivatives market.
const MarketSuffix = "-PERP"

// allowed is the authoritative, ordered allow-list of base pairs. It is not
// auto-symmetrized: both orderings are listed explicitly where supported.
var allowed = [][2]string{
	{"SOL", "BTC"},
	{"BTC", "SOL"},
	{"ETH", "BTC"},
	{"BTC", "ETH"},
	{"SOL", "ETH"},
	{"ETH", "SOL"},
}

// Normalize upper-cases a symbol and appends the market suffix when absent.
// It is idempotent.
func Normalize(symbol string) string {
	up := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(up, MarketSuffix) {
		return up
	}
	return up + MarketSuffix
}

// Base strips the market suffix from a symbol and upper-cases it.
func Base(symbol string) string {
	return strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(symbol)), MarketSuffix)
}

// Key builds the cache key for a pair in the order supplied. (A,B) and (B,A)
// are distinct keys.
func Key(symbolA, symbolB string) string {
	return Normalize(symbolA) + ":" + Normalize(symbolB)
}

// AllowedPairs returns the allow-list formatted as "A/B" strings for user
// guidance in validation errors.
func AllowedPairs() []string {
	out := make([]string, 0, len(allowed))
	for _, p := range allowed {
		out = append(out, p[0]+"/"+p[1])
	}
	return out
}

// Check validates the suffix-stripped base pair against the allow-list. It
// returns a *domain.ValidationError carrying the allow-list on rejection.
func Check(symbolA, symbolB string) error {
	baseA, baseB := Base(symbolA), Base(symbolB)
	for _, p := range allowed {
		if p[0] == baseA && p[1] == baseB {
			return nil
		}
	}
	return &domain.ValidationError{
		Requested: baseA + "/" + baseB,
		Allowed:   AllowedPairs(),
	}
}
