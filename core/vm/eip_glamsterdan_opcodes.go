package vm

import (
	"github.com/holiman/uint256"
)

// Glamsterdan (EIP-7904) fork opcode additions that are not themselves gas
// repricings: EIP-7939 CLZ, EIP-7843 SLOTNUM, and the EIP-8024 extended
// stack manipulation opcodes (DUPN, SWAPN, EXCHANGE).

// opCLZ implements CLZ (EIP-7939): counts leading zero bits of the top
// stack item, in place. CLZ of zero is 256.
func opCLZ(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Peek()
	if x.IsZero() {
		x.SetUint64(256)
		return nil, nil
	}
	x.SetUint64(uint64(256 - x.BitLen()))
	return nil, nil
}

// opSlotnum implements SLOTNUM (EIP-7843): pushes the consensus slot number
// of the block being executed.
func opSlotnum(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(uint256.Int).SetUint64(evm.Context.SlotNumber))
	return nil, nil
}

// decodeSingle maps a DUPN/SWAPN immediate byte to a stack depth, per
// EIP-8024: bytes 0-90 encode depths 17-107, bytes 128-255 encode depths
// 108-235. Bytes 91-127 are excluded and must be rejected by the caller
// before decodeSingle is invoked.
func decodeSingle(x byte) uint64 {
	if x <= 90 {
		return uint64(x) + 17
	}
	return uint64(x) - 20
}

// decodePair maps an EXCHANGE immediate byte to a pair of stack depths, per
// EIP-8024. Bytes 80-127 are excluded and must be rejected by the caller.
func decodePair(x byte) (uint64, uint64) {
	k := uint64(x)
	q := k / 29
	r := k % 29
	if q >= r {
		return q + 1, 29 - q
	}
	return q + 1, r + 1
}

// opDupN implements DUPN (EIP-8024): duplicates the stack item at the depth
// encoded by the immediate byte following the opcode.
func opDupN(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	imm := contract.Code[*pc+1]
	if imm >= 91 && imm <= 127 {
		return nil, ErrInvalidOpCode
	}
	n := decodeSingle(imm)
	if uint64(stack.Len()) < n {
		return nil, ErrStackUnderflow
	}
	stack.Dup(int(n))
	*pc += 1
	return nil, nil
}

// opSwapN implements SWAPN (EIP-8024): swaps the top stack item with the
// item at the depth encoded by the immediate byte following the opcode.
func opSwapN(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	imm := contract.Code[*pc+1]
	if imm >= 91 && imm <= 127 {
		return nil, ErrInvalidOpCode
	}
	n := decodeSingle(imm)
	if uint64(stack.Len()) < n+1 {
		return nil, ErrStackUnderflow
	}
	stack.Swap(int(n))
	*pc += 1
	return nil, nil
}

// opExchange implements EXCHANGE (EIP-8024): swaps two stack items below the
// top, at the two depths encoded by the immediate byte following the
// opcode.
func opExchange(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	imm := contract.Code[*pc+1]
	if imm >= 80 && imm <= 127 {
		return nil, ErrInvalidOpCode
	}
	n, m := decodePair(imm)
	need := m
	if n > m {
		need = n
	}
	if uint64(stack.Len()) < need+1 {
		return nil, ErrStackUnderflow
	}
	data := stack.Data()
	top := uint64(len(data) - 1)
	data[top-n], data[top-m] = data[top-m], data[top-n]
	*pc += 1
	return nil, nil
}
