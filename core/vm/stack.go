package vm

import (
	"fmt"

	"github.com/holiman/uint256"
)

const stackLimit = 1024

// Stack is the EVM operand stack: 1024 256-bit words, represented natively
// as uint256.Int instead of math/big's arbitrary-precision Int so that
// arithmetic opcodes get EVM modular wraparound for free instead of needing
// manual masking against 2^256.
type Stack struct {
	data [stackLimit]uint256.Int
	len  int
}

// NewStack returns a new empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push pushes a value onto the stack. The value is copied into the stack's
// backing array, so the caller's *uint256.Int may be freely reused.
func (st *Stack) Push(val *uint256.Int) error {
	if st.len >= stackLimit {
		return fmt.Errorf("stack overflow")
	}
	st.data[st.len].Set(val)
	st.len++
	return nil
}

// Pop removes the top element and returns a pointer to a private copy of it.
// The returned pointer does not alias the stack's backing array, so it
// remains valid across subsequent Push/Pop calls.
func (st *Stack) Pop() *uint256.Int {
	st.len--
	ret := st.data[st.len]
	return &ret
}

// Peek returns a pointer to the top element, usable for in-place mutation.
func (st *Stack) Peek() *uint256.Int {
	return &st.data[st.len-1]
}

// PeekN returns a pointer to the nth element from the top (0-indexed: 0 =
// top), usable for in-place mutation.
func (st *Stack) PeekN(n int) *uint256.Int {
	return &st.data[st.len-1-n]
}

// Back returns a pointer to the nth element from the top (0-indexed: 0 =
// top), usable for in-place mutation.
func (st *Stack) Back(n int) *uint256.Int {
	return &st.data[st.len-1-n]
}

// Swap swaps the top element with the nth element from the top.
func (st *Stack) Swap(n int) {
	top := st.len - 1
	st.data[top], st.data[top-n] = st.data[top-n], st.data[top]
}

// Dup duplicates the nth element from the top and pushes it.
func (st *Stack) Dup(n int) {
	st.data[st.len].Set(&st.data[st.len-n])
	st.len++
}

// Len returns the number of items on the stack.
func (st *Stack) Len() int {
	return st.len
}

// Data returns a view of the backing array holding the items currently on
// the stack, ordered bottom to top.
func (st *Stack) Data() []uint256.Int {
	return st.data[:st.len]
}
