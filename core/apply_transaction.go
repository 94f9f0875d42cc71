package core

import (
	"fmt"
	"math/big"

	"github.com/ethcore/coreevm/core/state"
	"github.com/ethcore/coreevm/core/types"
	"github.com/ethcore/coreevm/core/vm"
)

// ApplyTransaction executes a single transaction against statedb and returns
// its receipt plus the gas it consumed. It assumes the transaction has
// already passed ValidateTransaction and that gasPool has enough gas for
// tx.Gas(); gasPool is debited for the transaction's full gas limit up
// front and credited back for whatever goes unused.
//
// The gas accounting follows the yellow paper flow, amended by EIP-3529
// (refund cap) and EIP-7623 (calldata floor):
//  1. charge the sender gasLimit * effectiveGasPrice up front
//  2. run the EVM with gasLimit - intrinsicGas available
//  3. cap the accumulated SSTORE/SELFDESTRUCT refund at (gasUsed / 5)
//  4. raise the final gas used to the EIP-7623 floor if it is higher
//  5. refund the sender for whatever gas went unspent
func ApplyTransaction(config *ChainConfig, statedb state.StateDB, header *types.Header, tx *types.Transaction, gasPool *GasPool) (*types.Receipt, uint64, error) {
	if err := gasPool.SubGas(tx.Gas()); err != nil {
		return nil, 0, err
	}

	msg := TransactionToMessage(tx)
	from := msg.From
	isCreate := msg.To == nil

	rules := config.Rules(header.Number, header.Time)

	effectiveGasPrice := EffectiveGasPrice(tx, header.BaseFee)
	upfrontCost := new(big.Int).Mul(effectiveGasPrice, new(big.Int).SetUint64(tx.Gas()))
	statedb.SubBalance(from, upfrontCost)

	// CREATE transactions have their nonce bumped by evm.Create itself (the
	// pre-bump nonce is part of the new contract's address derivation).
	// Message calls have no such side effect, so the sender's nonce is
	// bumped here instead.
	if !isCreate {
		statedb.SetNonce(from, tx.Nonce()+1)
	}

	if len(msg.AuthList) > 0 {
		if err := ProcessAuthorizations(statedb, msg.AuthList, config.ChainID); err != nil {
			return nil, 0, fmt.Errorf("authorization processing failed: %w", err)
		}
	}

	blockCtx := vm.BlockContext{
		GetHash:     noopGetHash,
		BlockNumber: header.Number,
		Time:        header.Time,
		Coinbase:    header.Coinbase,
		GasLimit:    header.GasLimit,
		BaseFee:     header.BaseFee,
		PrevRandao:  header.MixDigest,
	}
	if header.ExcessBlobGas != nil {
		blockCtx.BlobBaseFee = CalcBlobBaseFee(*header.ExcessBlobGas)
	}

	txCtx := vm.TxContext{
		Origin:     from,
		GasPrice:   effectiveGasPrice,
		BlobHashes: msg.BlobHashes,
	}

	evm := vm.NewEVMWithState(blockCtx, txCtx, vm.Config{}, statedb)
	evm.SetForkRules(rules)
	evm.SetJumpTable(vm.SelectJumpTable(rules))
	evm.SetPrecompiles(vm.SelectPrecompiles(rules))

	evm.PreWarmAccessList(from, msg.To)
	for _, tuple := range msg.AccessList {
		statedb.AddAddressToAccessList(tuple.Address)
		for _, key := range tuple.StorageKeys {
			statedb.AddSlotToAccessList(tuple.Address, key)
		}
	}

	intrinsicGas := txIntrinsicGas(tx)
	gasAvailable := tx.Gas() - intrinsicGas

	var (
		vmErr           error
		contractAddress types.Address
		gasRemaining    uint64
	)
	if isCreate {
		_, contractAddress, gasRemaining, vmErr = evm.Create(from, msg.Data, gasAvailable, msg.Value)
	} else {
		_, gasRemaining, vmErr = evm.Call(from, *msg.To, msg.Data, gasAvailable, msg.Value)
	}

	gasUsedByEVM := gasAvailable - gasRemaining
	gasUsed := intrinsicGas + gasUsedByEVM

	finalGas, _, floorApplied := RefundWithFloor(gasUsed, statedb.GetRefund(), msg.Data, msg.AccessList, isCreate, config, header.Time)
	_ = floorApplied

	if finalGas > tx.Gas() {
		finalGas = tx.Gas()
	}
	unusedGas := tx.Gas() - finalGas
	gasPool.AddGas(unusedGas)

	refundAmount := new(big.Int).Mul(effectiveGasPrice, new(big.Int).SetUint64(unusedGas))
	statedb.AddBalance(from, refundAmount)

	status := types.ReceiptStatusSuccessful
	if vmErr != nil {
		status = types.ReceiptStatusFailed
	}

	receipt := types.NewReceipt(status, 0)
	receipt.Type = tx.Type()
	receipt.TxHash = tx.Hash()
	receipt.GasUsed = finalGas
	receipt.EffectiveGasPrice = effectiveGasPrice
	receipt.BlobGasUsed = tx.BlobGas()
	receipt.BlobGasPrice = blockCtx.BlobBaseFee

	if status == types.ReceiptStatusSuccessful {
		receipt.Logs = statedb.GetLogs(tx.Hash())
		if isCreate && vmErr == nil {
			receipt.ContractAddress = contractAddress
		}
	}
	receipt.Bloom = types.LogsBloom(receipt.Logs)

	return receipt, finalGas, nil
}

// noopGetHash is the BlockContext.GetHash used when the engine executes a
// transaction outside of a known chain of ancestor headers (e.g. isolated
// state-test fixtures). BLOCKHASH simply resolves to the zero hash.
func noopGetHash(uint64) types.Hash {
	return types.Hash{}
}
