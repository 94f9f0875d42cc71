package vm

import (
	"encoding/binary"

	"github.com/ethcore/coreevm/core/types"
)

// Glamsterdan (EIP-7904) precompile gas repricing. Run behavior is identical
// to the Cancun precompiles; only RequiredGas changes for the four affected
// contracts. Unchanged precompiles are shared directly with the Cancun set.

type bn256AddGlamsterdan struct{ bn256Add }

func (c *bn256AddGlamsterdan) RequiredGas(input []byte) uint64 {
	return GasECADDGlamsterdan
}

type bn256PairingGlamsterdan struct{ bn256Pairing }

func (c *bn256PairingGlamsterdan) RequiredGas(input []byte) uint64 {
	k := uint64(len(input)) / 192
	return GasECPairingConstGlamsterdan + GasECPairingPerPairGlamsterdan*k
}

type blake2FGlamsterdan struct{ blake2F }

func (c *blake2FGlamsterdan) RequiredGas(input []byte) uint64 {
	if len(input) < 4 {
		return 0
	}
	rounds := uint64(binary.BigEndian.Uint32(input[:4]))
	return GasBlake2fConstGlamsterdan + GasBlake2fPerRoundGlamsterdan*rounds
}

type kzgPointEvaluationGlamsterdan struct{ kzgPointEvaluation }

func (c *kzgPointEvaluationGlamsterdan) RequiredGas(input []byte) uint64 {
	return GasPointEvalGlamsterdan
}

// PrecompiledContractsGlamsterdan contains the precompiled contract set under
// EIP-7904 gas repricing. Non-repriced entries are shared with Cancun.
var PrecompiledContractsGlamsterdan = map[types.Address]PrecompiledContract{
	types.BytesToAddress([]byte{1}):    PrecompiledContractsCancun[types.BytesToAddress([]byte{1})],
	types.BytesToAddress([]byte{2}):    PrecompiledContractsCancun[types.BytesToAddress([]byte{2})],
	types.BytesToAddress([]byte{3}):    PrecompiledContractsCancun[types.BytesToAddress([]byte{3})],
	types.BytesToAddress([]byte{4}):    PrecompiledContractsCancun[types.BytesToAddress([]byte{4})],
	types.BytesToAddress([]byte{5}):    PrecompiledContractsCancun[types.BytesToAddress([]byte{5})],
	types.BytesToAddress([]byte{6}):    &bn256AddGlamsterdan{},
	types.BytesToAddress([]byte{7}):    PrecompiledContractsCancun[types.BytesToAddress([]byte{7})],
	types.BytesToAddress([]byte{8}):    &bn256PairingGlamsterdan{},
	types.BytesToAddress([]byte{9}):    &blake2FGlamsterdan{},
	types.BytesToAddress([]byte{0x0a}): &kzgPointEvaluationGlamsterdan{},
}
