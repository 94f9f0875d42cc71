// Package txvalidate implements the unchanged two-phase validation contract
// (validate_tx, initial_gas, validate_caller, caller_fee) behind a
// skippable-check bitmask, so callers as different as block execution, a
// transaction pool, and a block builder can each run only the checks that
// apply to them.
package txvalidate

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethcore/coreevm/core"
	"github.com/ethcore/coreevm/core/types"
	"github.com/ethcore/coreevm/params"
)

// Checks is a bitmask of individually toggleable validation checks, mirroring
// the teacher's `ValidateTransaction` logic (core/state_transition.go) split
// into independently skippable pieces.
type Checks uint32

const (
	ChainIDCheck Checks = 1 << iota
	TxGasLimitCheck
	BaseFeeCheck
	PriorityFeeCheck
	BlobFeeCheck
	AuthListCheck
	BlockGasLimitCheck
	MaxInitcodeSizeCheck
	NonceCheck
	BalanceCheck
	EIP3607Check
	EIP7623Check
	HeaderCheck
)

// Compound groups used by the presets below.
const (
	GasFeesChecks = BaseFeeCheck | PriorityFeeCheck | BlobFeeCheck
	CallerChecks  = NonceCheck | BalanceCheck | EIP3607Check

	// TxStatelessChecks covers everything that can be verified from the
	// transaction alone, without reading account state.
	TxStatelessChecks = ChainIDCheck | TxGasLimitCheck | GasFeesChecks | AuthListCheck |
		BlockGasLimitCheck | MaxInitcodeSizeCheck | EIP7623Check | HeaderCheck

	AllChecks = TxStatelessChecks | CallerChecks
)

func (c Checks) Has(bit Checks) bool    { return c&bit != 0 }
func (c Checks) with(bit Checks) Checks { return c | bit }
func (c Checks) without(bit Checks) Checks {
	return c &^ bit
}

// DefaultMaxInitcodeSize is the EIP-3860 cap on init code size (2x the
// 24576-byte max contract code size).
const DefaultMaxInitcodeSize = 2 * 24576

// Params is the frozen configuration a Validator runs against: chain
// parameters, block context, and the active Checks bitmask. All fields are
// plain values so a Params can be copied and forked cheaply per tx.
type Params struct {
	Spec            params.SpecID
	ChainID         uint64
	BaseFee         *big.Int // nil: base fee check never fires regardless of Checks
	BlobBaseFee     *big.Int
	TxGasLimitCap   uint64 // EIP-7825
	BlockGasLimit   uint64
	MaxBlobsPerTx   uint64 // 0 means "no limit configured"
	MaxInitcodeSize int
	Checks          Checks
}

// New returns a Params for spec with every check enabled and permissive
// defaults (no block gas limit, EIP-7825 cap from core.MaxTransactionGas).
// Use the For* presets below for the common non-default configurations.
func New(spec params.SpecID) Params {
	return Params{
		Spec:            spec,
		ChainID:         1,
		TxGasLimitCap:   core.MaxTransactionGas,
		BlockGasLimit:   ^uint64(0),
		MaxInitcodeSize: DefaultMaxInitcodeSize,
		Checks:          AllChecks,
	}
}

// ForDeposit configures a Params for L2-style deposit/system transactions:
// no fee, balance, or nonce checks (the transaction is system-funded and
// system-ordered), keeping only chain ID, block gas limit, the
// authorization list, and the init code size cap.
func ForDeposit(spec params.SpecID) Params {
	p := New(spec)
	p.Checks = ChainIDCheck | BlockGasLimitCheck | AuthListCheck | MaxInitcodeSizeCheck
	return p
}

// ForTxPool configures a Params for mempool admission: all stateless checks
// except block gas limit (the pool doesn't know its eventual block) and
// header validation (no block context yet).
func ForTxPool(spec params.SpecID) Params {
	p := New(spec)
	p.Checks = TxStatelessChecks.without(BlockGasLimitCheck).without(HeaderCheck)
	return p
}

// ForBlockBuilder configures a Params for speculative block construction:
// every stateless check, but no nonce/balance check since the builder may
// reorder or simulate transactions against stale state.
func ForBlockBuilder(spec params.SpecID) Params {
	p := New(spec)
	p.Checks = TxStatelessChecks
	return p
}

// --- Fluent skip/enable setters, mirroring the teacher's builder API ---

func (p Params) SkipAll() Params  { p.Checks = 0; return p }
func (p Params) EnableAll() Params { p.Checks = AllChecks; return p }

func (p Params) SkipChainIDCheck() Params         { p.Checks = p.Checks.without(ChainIDCheck); return p }
func (p Params) SkipTxGasLimitCheck() Params      { p.Checks = p.Checks.without(TxGasLimitCheck); return p }
func (p Params) SkipBaseFeeCheck() Params         { p.Checks = p.Checks.without(BaseFeeCheck); return p }
func (p Params) SkipPriorityFeeCheck() Params     { p.Checks = p.Checks.without(PriorityFeeCheck); return p }
func (p Params) SkipBlobFeeCheck() Params         { p.Checks = p.Checks.without(BlobFeeCheck); return p }
func (p Params) SkipAuthListCheck() Params        { p.Checks = p.Checks.without(AuthListCheck); return p }
func (p Params) SkipBlockGasLimitCheck() Params   { p.Checks = p.Checks.without(BlockGasLimitCheck); return p }
func (p Params) SkipMaxInitcodeSizeCheck() Params { p.Checks = p.Checks.without(MaxInitcodeSizeCheck); return p }
func (p Params) SkipNonceCheck() Params           { p.Checks = p.Checks.without(NonceCheck); return p }
func (p Params) SkipBalanceCheck() Params         { p.Checks = p.Checks.without(BalanceCheck); return p }
func (p Params) SkipEIP3607Check() Params         { p.Checks = p.Checks.without(EIP3607Check); return p }
func (p Params) SkipEIP7623Check() Params         { p.Checks = p.Checks.without(EIP7623Check); return p }
func (p Params) SkipHeaderCheck() Params          { p.Checks = p.Checks.without(HeaderCheck); return p }
func (p Params) SkipCallerChecks() Params         { p.Checks = p.Checks.without(CallerChecks); return p }
func (p Params) SkipGasFeeChecks() Params         { p.Checks = p.Checks.without(GasFeesChecks); return p }

func (p Params) EnableChainIDCheck() Params         { p.Checks = p.Checks.with(ChainIDCheck); return p }
func (p Params) EnableTxGasLimitCheck() Params      { p.Checks = p.Checks.with(TxGasLimitCheck); return p }
func (p Params) EnableBaseFeeCheck() Params         { p.Checks = p.Checks.with(BaseFeeCheck); return p }
func (p Params) EnablePriorityFeeCheck() Params     { p.Checks = p.Checks.with(PriorityFeeCheck); return p }
func (p Params) EnableBlobFeeCheck() Params         { p.Checks = p.Checks.with(BlobFeeCheck); return p }
func (p Params) EnableAuthListCheck() Params        { p.Checks = p.Checks.with(AuthListCheck); return p }
func (p Params) EnableBlockGasLimitCheck() Params   { p.Checks = p.Checks.with(BlockGasLimitCheck); return p }
func (p Params) EnableMaxInitcodeSizeCheck() Params { p.Checks = p.Checks.with(MaxInitcodeSizeCheck); return p }
func (p Params) EnableNonceCheck() Params           { p.Checks = p.Checks.with(NonceCheck); return p }
func (p Params) EnableBalanceCheck() Params         { p.Checks = p.Checks.with(BalanceCheck); return p }
func (p Params) EnableEIP3607Check() Params         { p.Checks = p.Checks.with(EIP3607Check); return p }
func (p Params) EnableEIP7623Check() Params         { p.Checks = p.Checks.with(EIP7623Check); return p }
func (p Params) EnableHeaderCheck() Params          { p.Checks = p.Checks.with(HeaderCheck); return p }
func (p Params) EnableCallerChecks() Params         { p.Checks = p.Checks.with(CallerChecks); return p }
func (p Params) EnableGasFeeChecks() Params         { p.Checks = p.Checks.with(GasFeesChecks); return p }

// Validation errors.
var (
	ErrChainIDMismatch     = errors.New("txvalidate: chain id mismatch")
	ErrTxGasLimitCapped    = errors.New("txvalidate: gas limit exceeds protocol cap")
	ErrBlockGasLimit       = errors.New("txvalidate: gas limit exceeds block gas limit")
	ErrInitcodeTooLarge    = errors.New("txvalidate: init code exceeds max size")
	ErrTooManyBlobs        = errors.New("txvalidate: blob count exceeds max per tx")
	ErrSenderIsContract    = errors.New("txvalidate: sender has code (EIP-3607)")
	ErrNonceTooLow         = errors.New("txvalidate: nonce too low")
	ErrNonceTooHigh        = errors.New("txvalidate: nonce too high")
	ErrInsufficientBalance = errors.New("txvalidate: insufficient balance for fee plus value")
	ErrFeeCapTooLow        = errors.New("txvalidate: max fee per gas below base fee")
	ErrTipAboveFeeCap      = errors.New("txvalidate: priority fee above max fee")
	ErrBlobFeeCapTooLow    = errors.New("txvalidate: blob fee cap below blob base fee")
)

// ValidateTx runs every stateless check this Params enables: chain ID, the
// EIP-7825 per-tx gas cap, the block gas limit, EIP-3860 init code size, and
// (for blob transactions) the per-tx blob count cap.
func (p Params) ValidateTx(tx *types.Transaction) error {
	if p.Checks.Has(ChainIDCheck) {
		if cid := tx.ChainId(); cid != nil && cid.Sign() != 0 && cid.Cmp(new(big.Int).SetUint64(p.ChainID)) != 0 {
			return fmt.Errorf("%w: tx %s, chain %d", ErrChainIDMismatch, cid, p.ChainID)
		}
	}
	if p.Checks.Has(TxGasLimitCheck) && tx.Gas() > p.TxGasLimitCap {
		return fmt.Errorf("%w: %d > %d", ErrTxGasLimitCapped, tx.Gas(), p.TxGasLimitCap)
	}
	if p.Checks.Has(BlockGasLimitCheck) && tx.Gas() > p.BlockGasLimit {
		return fmt.Errorf("%w: %d > %d", ErrBlockGasLimit, tx.Gas(), p.BlockGasLimit)
	}
	if p.Checks.Has(MaxInitcodeSizeCheck) && tx.To() == nil && len(tx.Data()) > p.MaxInitcodeSize {
		return fmt.Errorf("%w: %d > %d", ErrInitcodeTooLarge, len(tx.Data()), p.MaxInitcodeSize)
	}
	if p.Checks.Has(BlobFeeCheck) && p.MaxBlobsPerTx > 0 {
		if n := uint64(len(tx.BlobHashes())); n > p.MaxBlobsPerTx {
			return fmt.Errorf("%w: %d > %d", ErrTooManyBlobs, n, p.MaxBlobsPerTx)
		}
	}
	return nil
}

// InitialAndFloorGas pairs the intrinsic gas a transaction is charged
// up front with the EIP-7623 floor gas it must be charged no less than
// once execution finishes.
type InitialAndFloorGas struct {
	Gas   uint64
	Floor uint64
}

// InitialGas computes the intrinsic gas for tx and, if EIP7623Check is
// enabled, the calldata floor gas alongside it. It returns an error if the
// transaction's gas limit doesn't cover the intrinsic gas.
func (p Params) InitialGas(tx *types.Transaction) (InitialAndFloorGas, error) {
	result := InitialAndFloorGas{Gas: core.IntrinsicGas(tx)}
	if p.Checks.Has(EIP7623Check) {
		result.Floor = core.CalcFloorGas(tx.Data(), tx.To() == nil).FloorGas
	}
	if tx.Gas() < result.Gas {
		return result, fmt.Errorf("%w: have %d, want %d", errIntrinsicGasTooLow, tx.Gas(), result.Gas)
	}
	return result, nil
}

var errIntrinsicGasTooLow = errors.New("txvalidate: intrinsic gas exceeds tx gas limit")

// CallerInfo is the subset of account state ValidateCaller/CallerFee need,
// read once by the caller from whatever StateDB it has on hand.
type CallerInfo struct {
	Nonce    uint64
	CodeHash types.Hash // zero value or types.EmptyCodeHash both mean "EOA"
}

// ValidateCaller checks the sender's account: EIP-3607 (no contract senders)
// and nonce equality against the transaction.
func (p Params) ValidateCaller(info CallerInfo, tx *types.Transaction) error {
	if p.Checks.Has(EIP3607Check) {
		if info.CodeHash != (types.Hash{}) && info.CodeHash != types.EmptyCodeHash {
			return ErrSenderIsContract
		}
	}
	if p.Checks.Has(NonceCheck) {
		if tx.Nonce() < info.Nonce {
			return fmt.Errorf("%w: tx %d, state %d", ErrNonceTooLow, tx.Nonce(), info.Nonce)
		}
		if tx.Nonce() > info.Nonce {
			return fmt.Errorf("%w: tx %d, state %d", ErrNonceTooHigh, tx.Nonce(), info.Nonce)
		}
	}
	return nil
}

// CallerFee computes the maximum cost the sender must be able to cover
// (value + worst-case gas + blob gas) and, unless BalanceCheck is disabled,
// verifies balance covers it. It also runs the fee-cap checks the teacher's
// ValidateTransaction ran inline: max fee per gas vs base fee, tip vs fee
// cap, and blob fee cap vs blob base fee.
func (p Params) CallerFee(balance *big.Int, tx *types.Transaction) (*big.Int, error) {
	if p.Checks.Has(BaseFeeCheck) && p.BaseFee != nil && p.BaseFee.Sign() > 0 {
		if feeCap := tx.GasFeeCap(); feeCap != nil && feeCap.Cmp(p.BaseFee) < 0 {
			return nil, fmt.Errorf("%w: %s < %s", ErrFeeCapTooLow, feeCap, p.BaseFee)
		}
	}
	if p.Checks.Has(PriorityFeeCheck) {
		if tip, feeCap := tx.GasTipCap(), tx.GasFeeCap(); tip != nil && feeCap != nil && tip.Cmp(feeCap) > 0 {
			return nil, fmt.Errorf("%w: %s > %s", ErrTipAboveFeeCap, tip, feeCap)
		}
	}
	if p.Checks.Has(BlobFeeCheck) && p.BlobBaseFee != nil {
		if blobFeeCap := tx.BlobGasFeeCap(); blobFeeCap != nil && blobFeeCap.Cmp(p.BlobBaseFee) < 0 {
			return nil, fmt.Errorf("%w: %s < %s", ErrBlobFeeCapTooLow, blobFeeCap, p.BlobBaseFee)
		}
	}

	cost := core.TxCost(tx, p.BaseFee)
	if p.Checks.Has(BalanceCheck) && balance.Cmp(cost) < 0 {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrInsufficientBalance, balance, cost)
	}
	return cost, nil
}
