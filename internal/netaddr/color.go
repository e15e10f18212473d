package netaddr

import (
	"fmt"

	"github.com/zeebo/blake3"
)

// RGB is a colour with 8-bit components.
type RGB struct {
	R, G, B uint8
}

// DeriveColor maps seed to a stable pastel colour. The seed is hashed and
// each of the first three digest bytes is averaged with 255, which keeps
// every component in the upper half of the range.
func DeriveColor(seed string) RGB {
	sum := blake3.Sum256([]byte(seed))
	return RGB{
		R: pastel(sum[0]),
		G: pastel(sum[1]),
		B: pastel(sum[2]),
	}
}

func pastel(b byte) uint8 {
	return uint8((int(b) + 255) / 2)
}

// String renders the colour as a CSS rgb() expression.
func (c RGB) String() string {
	return fmt.Sprintf("rgb(%d,%d,%d)", c.R, c.G, c.B)
}
