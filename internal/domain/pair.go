// Package domain defines core data structures used throughout the monitoring engine.
package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// NormalizeSymbol returns the upper-cased, trimmed form of an exchange symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Pair cryptocurrency trading pair.
type Pair struct {
	// From base currency symbol.
	From string
	// To quote currency symbol.
	To string
}

// NewPair builds a normalized pair.
func NewPair(base, quote string) Pair {
	return Pair{From: NormalizeSymbol(base), To: NormalizeSymbol(quote)}
}

// ParsePair parses instrument ids such as "BTC-USDT", "BTC_USDT" or "BTC/USDT".
func ParsePair(instID string) (Pair, error) {
	s := NormalizeSymbol(instID)
	for _, sep := range []string{"-", "_", "/"} {
		if parts := strings.Split(s, sep); len(parts) == 2 {
			if parts[0] == "" || parts[1] == "" {
				break
			}
			return Pair{From: parts[0], To: parts[1]}, nil
		}
	}

	return Pair{}, errors.Errorf("invalid instrument id %q, expected BASE-QUOTE", instID)
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated symbol representation.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}

// InstID returns the dash-separated instrument id.
func (p Pair) InstID() string {
	return fmt.Sprintf("%s-%s", p.From, p.To)
}
