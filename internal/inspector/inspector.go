// Package inspector implements the Access Inspector: an observe-only
// component that watches an EVM execution through go-ethereum's live-tracing
// hooks and records which contract addresses and storage slots the
// execution touched, without itself fetching or mutating anything. The
// Simulation Driver consults it after each pass to decide whether another
// hydrate-and-retry round is needed.
package inspector

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/vm"
)

// StorageAccess identifies a single (contract, slot) pair touched by SLOAD.
type StorageAccess struct {
	Address common.Address
	Slot    common.Hash
}

// Inspector accumulates the contracts and storage slots touched by the EVM
// calls it is attached to. A single Inspector is reused across every
// fixpoint iteration of one simulation: ArchiveAndReset lets the Driver
// fold "already hydrated" addresses into a persistent archive set so they
// are never re-requested, while "current" tracks only what this iteration's
// pass newly touched.
type Inspector struct {
	callStack []common.Address

	currentContracts map[common.Address]struct{}
	currentStorage   map[StorageAccess]struct{}

	archiveContracts map[common.Address]struct{}
	archiveStorage   map[StorageAccess]struct{}
}

// New returns an empty Inspector.
func New() *Inspector {
	return &Inspector{
		currentContracts: make(map[common.Address]struct{}),
		currentStorage:   make(map[StorageAccess]struct{}),
		archiveContracts: make(map[common.Address]struct{}),
		archiveStorage:   make(map[StorageAccess]struct{}),
	}
}

// Hooks returns the tracing.Hooks value to pass into vm.Config when
// constructing the EVM for a pass. The Inspector itself carries no EVM
// dependency beyond these three callbacks.
func (ins *Inspector) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnEnter:  ins.onEnter,
		OnExit:   ins.onExit,
		OnOpcode: ins.onOpcode,
	}
}

func (ins *Inspector) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	ins.callStack = append(ins.callStack, to)

	switch vm.OpCode(typ) {
	case vm.CALL, vm.CALLCODE, vm.DELEGATECALL, vm.STATICCALL:
		if _, archived := ins.archiveContracts[to]; !archived {
			ins.currentContracts[to] = struct{}{}
		}
	}
}

func (ins *Inspector) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	if len(ins.callStack) > 0 {
		ins.callStack = ins.callStack[:len(ins.callStack)-1]
	}
}

func (ins *Inspector) onOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	opcode := vm.OpCode(op)
	stack := scope.StackData()
	if len(stack) == 0 {
		return
	}

	switch opcode {
	case vm.SLOAD:
		slot := common.Hash(stack[len(stack)-1].Bytes32())
		// Attribution deliberately uses our own call stack, not
		// scope.Address(): for DELEGATECALL frames this disagrees with the
		// EVM-correct storage owner (the caller). That divergence is kept
		// on purpose; see the storage-attribution design note.
		owner := ins.currentFrame()
		access := StorageAccess{Address: owner, Slot: slot}
		if _, archived := ins.archiveStorage[access]; !archived {
			ins.currentStorage[access] = struct{}{}
		}
	case vm.EXTCODESIZE, vm.EXTCODEHASH, vm.EXTCODECOPY:
		addr := common.Address(stack[len(stack)-1].Bytes20())
		if _, archived := ins.archiveContracts[addr]; !archived {
			ins.currentContracts[addr] = struct{}{}
		}
	}
}

func (ins *Inspector) currentFrame() common.Address {
	if len(ins.callStack) == 0 {
		return common.Address{}
	}
	return ins.callStack[len(ins.callStack)-1]
}

// HasNewAccesses reports whether the current (not-yet-archived) pass
// touched any contract or slot not already in the archive.
func (ins *Inspector) HasNewAccesses() bool {
	return len(ins.currentContracts) > 0 || len(ins.currentStorage) > 0
}

// NewContracts returns the contract addresses touched this pass that are
// not yet archived.
func (ins *Inspector) NewContracts() []common.Address {
	out := make([]common.Address, 0, len(ins.currentContracts))
	for addr := range ins.currentContracts {
		out = append(out, addr)
	}
	return out
}

// NewStorageAccesses returns the (address, slot) pairs touched this pass
// that are not yet archived.
func (ins *Inspector) NewStorageAccesses() []StorageAccess {
	out := make([]StorageAccess, 0, len(ins.currentStorage))
	for acc := range ins.currentStorage {
		out = append(out, acc)
	}
	return out
}

// MarkArchived pre-seeds the archive so the Driver never re-hydrates
// addresses it already populated before the first pass (the tx's sender
// and recipient).
func (ins *Inspector) MarkArchived(addrs ...common.Address) {
	for _, a := range addrs {
		ins.archiveContracts[a] = struct{}{}
	}
}

// ArchiveAndReset folds this pass's new accesses into the archive and
// clears the current sets, ready for the next pass. Calling it twice in a
// row with no EVM run in between is a no-op the second time, since the
// current sets are already empty — ArchiveAndReset is idempotent.
func (ins *Inspector) ArchiveAndReset() {
	for addr := range ins.currentContracts {
		ins.archiveContracts[addr] = struct{}{}
	}
	for acc := range ins.currentStorage {
		ins.archiveStorage[acc] = struct{}{}
	}
	ins.currentContracts = make(map[common.Address]struct{})
	ins.currentStorage = make(map[StorageAccess]struct{})
	ins.callStack = ins.callStack[:0]
}
