package params

import "github.com/ethcore/coreevm/core/vm"

// RulesFor derives the boolean fork-activation flags the interpreter and gas
// schedule consume from a single ordered SpecID. IsVerkle/IsGlamsterdan/
// IsEIP7708/IsEIP7954 have no SpecID past Prague to activate them and are
// left false; they exist on ForkRules only because the interpreter's
// dispatch tables already branch on them for forks beyond this engine's
// scope.
func RulesFor(spec SpecID) vm.ForkRules {
	return vm.ForkRules{
		IsPrague:         spec.IsEnabledIn(Prague),
		IsCancun:         spec.IsEnabledIn(Cancun),
		IsShanghai:       spec.IsEnabledIn(Shanghai),
		IsMerge:          spec.IsEnabledIn(Paris),
		IsLondon:         spec.IsEnabledIn(London),
		IsBerlin:         spec.IsEnabledIn(Berlin),
		IsIstanbul:       spec.IsEnabledIn(Istanbul),
		IsConstantinople: spec.IsEnabledIn(Constantinople),
		IsByzantium:      spec.IsEnabledIn(Byzantium),
		IsHomestead:      spec.IsEnabledIn(Homestead),
		IsEIP158:         spec.IsEnabledIn(SpuriousDragon),
	}
}
