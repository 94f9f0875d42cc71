package core

import (
	"math/big"

	"github.com/ethcore/coreevm/core/vm"
	"github.com/ethcore/coreevm/params"
)

// ChainConfig holds chain-level configuration for fork scheduling. Forks up
// to Paris (the Merge) activate at a block number; forks from Shanghai
// onward activate at a block timestamp, matching how Ethereum mainnet
// actually scheduled them.
type ChainConfig struct {
	ChainID *big.Int

	HomesteadBlock      *big.Int
	EIP150Block         *big.Int // TangerineWhistle
	EIP155Block         *big.Int
	EIP158Block         *big.Int // SpuriousDragon
	ByzantiumBlock      *big.Int
	ConstantinopleBlock *big.Int
	PetersburgBlock     *big.Int
	IstanbulBlock       *big.Int
	BerlinBlock         *big.Int
	LondonBlock         *big.Int

	// TerminalTotalDifficulty being non-nil marks the chain as past the
	// Merge (Paris); this engine has no difficulty-based fork trigger of
	// its own, so the Merge is treated as always active once the config
	// carries a TTD at all.
	TerminalTotalDifficulty *big.Int

	ShanghaiTime *uint64
	CancunTime   *uint64
	PragueTime   *uint64
}

func isBlockForked(fork, num *big.Int) bool {
	if fork == nil || num == nil {
		return false
	}
	return fork.Cmp(num) <= 0
}

func isTimestampForked(forkTime *uint64, blockTime uint64) bool {
	if forkTime == nil {
		return false
	}
	return *forkTime <= blockTime
}

func (c *ChainConfig) IsHomestead(num *big.Int) bool      { return isBlockForked(c.HomesteadBlock, num) }
func (c *ChainConfig) IsEIP150(num *big.Int) bool         { return isBlockForked(c.EIP150Block, num) }
func (c *ChainConfig) IsEIP155(num *big.Int) bool         { return isBlockForked(c.EIP155Block, num) }
func (c *ChainConfig) IsEIP158(num *big.Int) bool         { return isBlockForked(c.EIP158Block, num) }
func (c *ChainConfig) IsByzantium(num *big.Int) bool      { return isBlockForked(c.ByzantiumBlock, num) }
func (c *ChainConfig) IsConstantinople(num *big.Int) bool { return isBlockForked(c.ConstantinopleBlock, num) }
func (c *ChainConfig) IsPetersburg(num *big.Int) bool     { return isBlockForked(c.PetersburgBlock, num) }
func (c *ChainConfig) IsIstanbul(num *big.Int) bool       { return isBlockForked(c.IstanbulBlock, num) }
func (c *ChainConfig) IsBerlin(num *big.Int) bool         { return isBlockForked(c.BerlinBlock, num) }
func (c *ChainConfig) IsLondon(num *big.Int) bool         { return isBlockForked(c.LondonBlock, num) }
func (c *ChainConfig) IsMerge() bool                      { return c.TerminalTotalDifficulty != nil }
func (c *ChainConfig) IsShanghai(time uint64) bool        { return isTimestampForked(c.ShanghaiTime, time) }
func (c *ChainConfig) IsCancun(time uint64) bool          { return isTimestampForked(c.CancunTime, time) }
func (c *ChainConfig) IsPrague(time uint64) bool          { return isTimestampForked(c.PragueTime, time) }

// IsGlamsterdan always reports false: Prague is the newest fork this engine
// implements, and the Glamsterdan-specific calldata floor branch in
// eip7623_floor.go is unreachable as a result. The method still exists so
// that code grounded on the fork-aware floor calculation compiles unchanged.
func (c *ChainConfig) IsGlamsterdan(time uint64) bool { return false }

// IsHogota always reports false, for the same reason as IsGlamsterdan: this
// engine's hardfork selector (params.SpecID) has no fork past Prague.
func (c *ChainConfig) IsHogota(time uint64) bool { return false }

// Spec resolves the newest fork active at the given block number and
// timestamp into the engine's ordered SpecID.
func (c *ChainConfig) Spec(num *big.Int, time uint64) params.SpecID {
	switch {
	case c.IsPrague(time):
		return params.Prague
	case c.IsCancun(time):
		return params.Cancun
	case c.IsShanghai(time):
		return params.Shanghai
	case c.IsMerge():
		return params.Paris
	case c.IsLondon(num):
		return params.London
	case c.IsBerlin(num):
		return params.Berlin
	case c.IsIstanbul(num):
		return params.Istanbul
	case c.IsPetersburg(num):
		return params.Petersburg
	case c.IsConstantinople(num):
		return params.Constantinople
	case c.IsByzantium(num):
		return params.Byzantium
	case c.IsEIP158(num):
		return params.SpuriousDragon
	case c.IsEIP150(num):
		return params.TangerineWhistle
	case c.IsHomestead(num):
		return params.Homestead
	default:
		return params.Frontier
	}
}

// Rules resolves the ForkRules the VM consumes directly from the block
// number and timestamp, without the caller needing to resolve a SpecID
// first.
func (c *ChainConfig) Rules(num *big.Int, time uint64) vm.ForkRules {
	return params.RulesFor(c.Spec(num, time))
}

func newUint64(v uint64) *uint64 { return &v }

// MainnetConfig is the chain config for Ethereum mainnet.
var MainnetConfig = &ChainConfig{
	ChainID:                 big.NewInt(1),
	HomesteadBlock:          big.NewInt(1_150_000),
	EIP150Block:             big.NewInt(2_463_000),
	EIP155Block:             big.NewInt(2_675_000),
	EIP158Block:             big.NewInt(2_675_000),
	ByzantiumBlock:          big.NewInt(4_370_000),
	ConstantinopleBlock:     big.NewInt(7_280_000),
	PetersburgBlock:         big.NewInt(7_280_000),
	IstanbulBlock:           big.NewInt(9_069_000),
	BerlinBlock:             big.NewInt(12_244_000),
	LondonBlock:             big.NewInt(12_965_000),
	TerminalTotalDifficulty: new(big.Int).SetUint64(58_750_000_000_000_000),
	ShanghaiTime:            newUint64(1681338455),
	CancunTime:              newUint64(1710338135),
	PragueTime:              nil, // not yet scheduled
}

// TestConfig is a chain config with every fork active at genesis (block 0,
// time 0). Used by fixture-driven tests that want the newest rule set
// without reasoning about fork transitions.
var TestConfig = &ChainConfig{
	ChainID:                 big.NewInt(1337),
	HomesteadBlock:          big.NewInt(0),
	EIP150Block:             big.NewInt(0),
	EIP155Block:             big.NewInt(0),
	EIP158Block:             big.NewInt(0),
	ByzantiumBlock:          big.NewInt(0),
	ConstantinopleBlock:     big.NewInt(0),
	PetersburgBlock:         big.NewInt(0),
	IstanbulBlock:           big.NewInt(0),
	BerlinBlock:             big.NewInt(0),
	LondonBlock:             big.NewInt(0),
	TerminalTotalDifficulty: big.NewInt(0),
	ShanghaiTime:            newUint64(0),
	CancunTime:              newUint64(0),
	PragueTime:              newUint64(0),
}
