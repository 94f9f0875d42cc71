package state

import (
	"math/big"

	"github.com/ethcore/coreevm/core/types"
)

// journalEntry is a revertible state change.
type journalEntry interface {
	revert(s *MemoryStateDB)
}

// journal tracks state modifications for snapshot/revert. It is the single
// journal implementation MemoryStateDB's Snapshot/RevertToSnapshot pair is
// built on.
type journal struct {
	entries   []journalEntry
	snapshots map[int]int // snapshot ID -> entry index
	nextID    int
}

func newJournal() *journal {
	return &journal{
		snapshots: make(map[int]int),
	}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) length() int {
	return len(j.entries)
}

func (j *journal) snapshot() int {
	id := j.nextID
	j.nextID++
	j.snapshots[id] = len(j.entries)
	return id
}

func (j *journal) revertToSnapshot(id int, s *MemoryStateDB) {
	idx, ok := j.snapshots[id]
	if !ok {
		return
	}
	// Revert in reverse order.
	for i := len(j.entries) - 1; i >= idx; i-- {
		j.entries[i].revert(s)
	}
	j.entries = j.entries[:idx]

	// Remove invalidated snapshots.
	for sid := range j.snapshots {
		if sid >= id {
			delete(j.snapshots, sid)
		}
	}
}

// --- Concrete journal entries ---
//
// These map onto the ten-variant JournalEntry taxonomy: AccountWarmed,
// AccountTouched, AccountCreated, AccountDestroyed, BalanceTransfer,
// NonceChange, CodeChange, StorageWarmed, StorageChanged,
// TransientStorageChange, each carrying exactly the fields needed for its
// revert action. Entries stay unexported and lowercase, matching the
// teacher's convention — the diff structs in state_diff.go already claim
// the exported BalanceChange/NonceChange/CodeChange/StorageChange names for
// a different purpose (From/To pairs for diff output), so the journal's own
// entries cannot reuse those identifiers.
//
// balanceChange is journaled once per SubBalance/AddBalance call rather
// than as a single paired BalanceTransfer entry: the StateDB interface
// (and every test double implementing it across core/vm) exposes
// SubBalance/AddBalance as two independent calls with no shared call site
// to hook a combined entry into. Reverting the journal's two legs in LIFO
// order undoes a transfer exactly as atomically as a single paired entry
// would — the balance is restored to the pre-transfer value on both
// accounts before the snapshot point is reached either way.

// accountCreated records that an address gained a fresh state object
// (CreateAccount), possibly replacing whatever was there before.
type accountCreated struct {
	addr types.Address
	prev *stateObject // nil if the account didn't exist before
}

func (ch accountCreated) revert(s *MemoryStateDB) {
	if ch.prev == nil {
		delete(s.stateObjects, ch.addr)
	} else {
		s.stateObjects[ch.addr] = ch.prev
	}
}

// accountTouched records that an address was accessed without being
// otherwise modified. EIP-161 relies on the set of touched accounts to
// decide which empty accounts get deleted at the end of a transaction;
// touching is otherwise a no-op on revert.
type accountTouched struct {
	addr types.Address
}

func (ch accountTouched) revert(s *MemoryStateDB) {}

// balanceChange records one leg of a balance adjustment (debit or
// credit) on a single account.
type balanceChange struct {
	addr types.Address
	prev *big.Int
}

func (ch balanceChange) revert(s *MemoryStateDB) {
	if obj := s.getStateObject(ch.addr); obj != nil {
		obj.account.Balance = ch.prev
	}
}

// nonceChange records an account's nonce before a SetNonce call.
type nonceChange struct {
	addr types.Address
	prev uint64
}

func (ch nonceChange) revert(s *MemoryStateDB) {
	if obj := s.getStateObject(ch.addr); obj != nil {
		obj.account.Nonce = ch.prev
	}
}

// codeChange records an account's code and code hash before a SetCode
// call.
type codeChange struct {
	addr     types.Address
	prevCode []byte
	prevHash []byte
}

func (ch codeChange) revert(s *MemoryStateDB) {
	if obj := s.getStateObject(ch.addr); obj != nil {
		obj.code = ch.prevCode
		obj.account.CodeHash = ch.prevHash
	}
}

// storageChanged records a single storage slot's value before a SetState
// call.
type storageChanged struct {
	addr       types.Address
	key        types.Hash
	prev       types.Hash
	prevExists bool // true if the key was present in dirtyStorage before
}

func (ch storageChanged) revert(s *MemoryStateDB) {
	if obj := s.getStateObject(ch.addr); obj != nil {
		if ch.prevExists {
			obj.dirtyStorage[ch.key] = ch.prev
		} else {
			// The slot was not in dirtyStorage before this write;
			// remove it so committed storage is visible again.
			delete(obj.dirtyStorage, ch.key)
		}
	}
}

// accountDestroyed captures an account's full state (balance, nonce,
// code, and dirty storage) immediately before SELFDESTRUCT runs, so a
// revert restores it exactly as it stood — not just the destruct flag
// and balance, but every dirty slot written earlier in the same
// transaction. target and hadBalance record the beneficiary of the
// destruct's value transfer and whether any value actually moved; the
// call-frame scheduler's EIP-6780 same-transaction-create rule uses that
// to decide whether the destruct also wipes the account's code. target is
// the zero address when the caller (StateDB.SelfDestruct takes no
// beneficiary parameter) didn't have one available to record.
type accountDestroyed struct {
	addr          types.Address
	target        types.Address
	hadBalance    bool
	wasDestructed bool
	prevAccount   types.Account
	prevCode      []byte
	prevCodeHash  []byte
	prevStorage   map[types.Hash]types.Hash
}

func (ch accountDestroyed) revert(s *MemoryStateDB) {
	obj := s.getStateObject(ch.addr)
	if obj == nil {
		obj = newStateObject()
		s.stateObjects[ch.addr] = obj
	}
	obj.account.Nonce = ch.prevAccount.Nonce
	obj.account.Balance = new(big.Int).Set(ch.prevAccount.Balance)
	obj.account.Root = ch.prevAccount.Root
	obj.account.CodeHash = make([]byte, len(ch.prevCodeHash))
	copy(obj.account.CodeHash, ch.prevCodeHash)
	obj.code = make([]byte, len(ch.prevCode))
	copy(obj.code, ch.prevCode)
	obj.selfDestructed = ch.wasDestructed

	obj.dirtyStorage = make(map[types.Hash]types.Hash, len(ch.prevStorage))
	for k, v := range ch.prevStorage {
		obj.dirtyStorage[k] = v
	}
}

// captureAccountDestroyed builds an accountDestroyed entry capturing the
// full current state of addr, to be journaled before SelfDestruct mutates
// it.
func captureAccountDestroyed(s *MemoryStateDB, addr, target types.Address, hadBalance bool) accountDestroyed {
	ch := accountDestroyed{
		addr:       addr,
		target:     target,
		hadBalance: hadBalance,
	}

	obj := s.getStateObject(addr)
	if obj == nil {
		ch.prevAccount = types.NewAccount()
		ch.prevCodeHash = types.EmptyCodeHash.Bytes()
		return ch
	}

	ch.wasDestructed = obj.selfDestructed
	ch.prevAccount = types.Account{
		Nonce:    obj.account.Nonce,
		Balance:  new(big.Int).Set(obj.account.Balance),
		Root:     obj.account.Root,
		CodeHash: make([]byte, len(obj.account.CodeHash)),
	}
	copy(ch.prevAccount.CodeHash, obj.account.CodeHash)

	ch.prevCode = make([]byte, len(obj.code))
	copy(ch.prevCode, obj.code)

	ch.prevCodeHash = make([]byte, len(obj.account.CodeHash))
	copy(ch.prevCodeHash, obj.account.CodeHash)

	ch.prevStorage = make(map[types.Hash]types.Hash, len(obj.dirtyStorage))
	for k, v := range obj.dirtyStorage {
		ch.prevStorage[k] = v
	}

	return ch
}

// accountWarmed records that an address was newly added to the EIP-2929
// access list.
type accountWarmed struct {
	addr types.Address
}

func (ch accountWarmed) revert(s *MemoryStateDB) {
	s.accessList.DeleteAddress(ch.addr)
}

// storageWarmed records that a storage slot was newly added to the
// EIP-2929 access list.
type storageWarmed struct {
	addr types.Address
	slot types.Hash
}

func (ch storageWarmed) revert(s *MemoryStateDB) {
	s.accessList.DeleteSlot(ch.addr, ch.slot)
}

// transientStorageChange records a transient (EIP-1153) slot's value
// before a SetTransientState call.
type transientStorageChange struct {
	addr types.Address
	key  types.Hash
	prev types.Hash
}

func (ch transientStorageChange) revert(s *MemoryStateDB) {
	if ch.prev == (types.Hash{}) {
		delete(s.transientStorage[ch.addr], ch.key)
		if len(s.transientStorage[ch.addr]) == 0 {
			delete(s.transientStorage, ch.addr)
		}
	} else {
		s.transientStorage[ch.addr][ch.key] = ch.prev
	}
}

// logChange and refundChange are not named by the ten-variant taxonomy,
// but both are required to revert side effects the call-frame scheduler
// produces on a frame revert (§4.F): dropping either would leave reverted
// frames with logs or a refund counter that survived the revert.

type logChange struct {
	txHash  types.Hash
	prevLen int
}

func (ch logChange) revert(s *MemoryStateDB) {
	logs := s.logs[ch.txHash]
	s.logs[ch.txHash] = logs[:ch.prevLen]
	if ch.prevLen == 0 {
		delete(s.logs, ch.txHash)
	}
}

type refundChange struct {
	prev uint64
}

func (ch refundChange) revert(s *MemoryStateDB) {
	s.refund = ch.prev
}
