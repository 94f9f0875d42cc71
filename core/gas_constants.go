package core

import (
	"errors"

	"github.com/ethcore/coreevm/core/types"
)

// Base transaction gas costs (the "G_transaction" family from the yellow
// paper), shared by intrinsic gas computation, the EIP-7623 calldata floor,
// and gas estimation.
const (
	// TxGas is the base gas cost of a transaction that does not create a
	// contract.
	TxGas uint64 = 21000
	// TxDataZeroGas is the gas cost per zero byte of transaction data.
	TxDataZeroGas uint64 = 4
	// TxDataNonZeroGas is the gas cost per non-zero byte of transaction data.
	TxDataNonZeroGas uint64 = 16
	// TxCreateGas is the extra gas charged for contract-creation transactions.
	TxCreateGas uint64 = 32000

	// PerAuthBaseCost is the gas charged per authorization list entry
	// (EIP-7702), regardless of whether the target account already exists.
	PerAuthBaseCost uint64 = 12500
	// PerEmptyAccountCost is the additional gas charged per authorization
	// entry that targets an account not yet present in state.
	PerEmptyAccountCost uint64 = 25000

	// TotalCostFloorPerToken is the EIP-7623 floor cost per calldata token.
	TotalCostFloorPerToken uint64 = 10
	// TotalCostFloorPerTokenGlamst is the Glamsterdan successor value; kept
	// only because eip7623_floor.go's Glamsterdan branch is unreachable
	// (ChainConfig.IsGlamsterdan always reports false, see chain_config.go)
	// but still needs a constant to compile against.
	TotalCostFloorPerTokenGlamst uint64 = 16
)

// ErrIntrinsicGasTooLow is returned when a transaction's gas limit is below
// its intrinsic gas cost (or the EIP-7623 floor).
var ErrIntrinsicGasTooLow = errors.New("intrinsic gas too low")

// calldataTokens computes the EIP-7623 token count for calldata: zero bytes
// count as one token, non-zero bytes as four.
func calldataTokens(data []byte) uint64 {
	var tokens uint64
	for _, b := range data {
		if b == 0 {
			tokens++
		} else {
			tokens += 4
		}
	}
	return tokens
}

// accessListDataTokens computes EIP-7981 data tokens for an access list's
// addresses and storage keys, using the same zero/non-zero byte weighting
// as calldataTokens.
func accessListDataTokens(accessList types.AccessList) uint64 {
	var zero, nonzero uint64
	for _, tuple := range accessList {
		for _, b := range tuple.Address {
			if b == 0 {
				zero++
			} else {
				nonzero++
			}
		}
		for _, key := range tuple.StorageKeys {
			for _, b := range key {
				if b == 0 {
					zero++
				} else {
					nonzero++
				}
			}
		}
	}
	return zero + nonzero*4
}
