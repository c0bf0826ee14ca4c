package identifier

import (
	"fmt"

	"github.com/hostel-hub/hostel-registry/internal/domain/shared"
)

// Block is a dormitory wing code.
type Block string

const (
	BlockA Block = "A"
	BlockB Block = "B"
	BlockC Block = "C"
	BlockD Block = "D"
)

// Blocks lists every known block in display order.
var Blocks = []Block{BlockA, BlockB, BlockC, BlockD}

// IsValid reports whether b is one of the known blocks.
func (b Block) IsValid() bool {
	switch b {
	case BlockA, BlockB, BlockC, BlockD:
		return true
	default:
		return false
	}
}

// String returns the block letter.
func (b Block) String() string {
	return string(b)
}

// ParseBlock validates a block code arriving from external input.
// Matching is exact: "a" is not block A.
func ParseBlock(s string) (Block, error) {
	b := Block(s)
	if !b.IsValid() {
		return "", shared.WrapError("identifier", "ParseBlock", shared.ErrUnknownBlock,
			fmt.Sprintf("block %q is not one of A, B, C, D", s), nil)
	}
	return b, nil
}
