package testutil

import (
	"fmt"

	"github.com/roach88/petadopt/internal/ir"
)

// Address returns the deterministic test address for n: n rendered as 40
// hex digits. Address(0) is the unset sentinel.
func Address(n uint64) ir.Address {
	return ir.MustAddress(fmt.Sprintf("0x%040x", n))
}
