package vm

import (
	"math/big"

	"github.com/holiman/uint256"
)

// pushBig pushes a *big.Int value onto the stack as a uint256.Int, for tests
// that build stacks from big.Int literals.
func pushBig(st *Stack, v *big.Int) error {
	return st.Push(new(uint256.Int).SetFromBig(v))
}
