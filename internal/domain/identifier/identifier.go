package identifier

import (
	"fmt"
	"regexp"
	"strconv"
)

// Prefix starts every student identifier.
const Prefix = "HSTL"

// SequenceWidth is the zero-padded width of the sequence field.
const SequenceWidth = 3

// MaxSequence is the largest sequence that fits the fixed-width field.
const MaxSequence = 999

// Identifier is a formatted student identifier, e.g. HSTL2024A001.
type Identifier string

// String returns the identifier text.
func (id Identifier) String() string {
	return string(id)
}

// Parsed holds the structured fields of an identifier.
type Parsed struct {
	Year     int   `json:"year"`
	Block    Block `json:"block"`
	Sequence int   `json:"sequence"`
}

var identifierRegex = regexp.MustCompile(`^` + Prefix + `(\d{4})([ABCD])(\d{3})$`)

// Format builds an identifier from its parts. Sequences above MaxSequence
// produce a wider field; callers that need the fixed width check first.
func Format(year int, block Block, sequence int) Identifier {
	return Identifier(fmt.Sprintf("%s%04d%s%0*d", Prefix, year, block, SequenceWidth, sequence))
}

// Parse splits s into its fields. ok is false when s does not match the
// format exactly; that is an expected outcome, not an error.
func Parse(s string) (p Parsed, ok bool) {
	m := identifierRegex.FindStringSubmatch(s)
	if m == nil {
		return Parsed{}, false
	}

	// \d in Go's RE2 is ASCII-only, so Atoi cannot fail here.
	year, _ := strconv.Atoi(m[1])
	seq, _ := strconv.Atoi(m[3])

	return Parsed{
		Year:     year,
		Block:    Block(m[2]),
		Sequence: seq,
	}, true
}

// Identifier rebuilds the identifier text from the parsed fields.
func (p Parsed) Identifier() Identifier {
	return Format(p.Year, p.Block, p.Sequence)
}
