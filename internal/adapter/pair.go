package adapter

import (
	"fmt"
	"strings"
)

// Pair is a trading pair in canonical form. The canonical rendering is
// "BASE-QUOTE" with upper-case symbols; venue formats are derived from
// it by the adapters.
type Pair struct {
	Base  string
	Quote string
}

// ParsePair reads the canonical "BASE-QUOTE" form.
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, MisuseError("trading pair %q is not in BASE-QUOTE form", s)
	}
	return Pair{
		Base:  strings.ToUpper(parts[0]),
		Quote: strings.ToUpper(parts[1]),
	}, nil
}

// MustPair parses a canonical pair and panics on malformed input.
// Intended for fixtures and tables, not request paths.
func MustPair(s string) Pair {
	p, err := ParsePair(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Pair) String() string {
	return p.Base + "-" + p.Quote
}

// Join renders the pair with an arbitrary separator, the building
// block for most venue symbol formats.
func (p Pair) Join(sep string) string {
	return p.Base + sep + p.Quote
}

// IsZero reports an unset pair.
func (p Pair) IsZero() bool {
	return p.Base == "" && p.Quote == ""
}

// Validate checks both legs are present.
func (p Pair) Validate() error {
	if p.Base == "" || p.Quote == "" {
		return MisuseError("trading pair %s is incomplete", p)
	}
	return nil
}

var _ fmt.Stringer = Pair{}
