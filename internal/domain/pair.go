// Package domain defines core data structures used throughout the bot.
package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Pair cryptocurrency trading pair.
type Pair struct {
	// From base currency symbol.
	From string
	// To quote currency symbol.
	To string
}

// PairFromString parses "BTC_USDT" style notation.
func PairFromString(s string) (Pair, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, errors.Errorf("invalid pair %q, expected format BASE_QUOTE", s)
	}
	return Pair{From: parts[0], To: parts[1]}, nil
}

// String returns the string representation.
func (p *Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated symbol representation.
func (p *Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}
