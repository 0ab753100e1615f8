// Package backend implements the State Backend component: an in-memory,
// per-request EVM state store that never reaches out to the network on its
// own. Callers (the Hydrator and the Simulation Driver) are responsible for
// populating it; a read of an address or slot the backend has never seen
// simply returns the EVM's defined zero value.
package backend

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// AccountInfo is the backend's view of a single account: balance, nonce and
// (if it is a contract) its code. CodeHash is always keccak256(Code); for an
// account with no code it is the well-known empty-code hash.
type AccountInfo struct {
	Balance  *big.Int
	Nonce    uint64
	CodeHash common.Hash
	Code     []byte
}

// Backend wraps a go-ethereum StateDB opened over an in-memory trie
// database. It is the State Backend of the simulation pipeline.
type Backend struct {
	db *state.StateDB
}

// New returns a Backend with empty state, ready for the Driver to pre-seed.
func New() (*Backend, error) {
	db, err := state.New(types.EmptyRootHash, state.NewDatabase(rawdb.NewMemoryDatabase()), nil)
	if err != nil {
		return nil, err
	}
	return &Backend{db: db}, nil
}

// StateDB exposes the underlying go-ethereum StateDB for use in
// vm.NewEVM(...) construction by the Simulation Driver.
func (b *Backend) StateDB() *state.StateDB { return b.db }

// InsertAccount idempotently sets an account's balance and nonce. It is safe
// to call multiple times with the same values.
func (b *Backend) InsertAccount(addr common.Address, balance *big.Int, nonce uint64) {
	if !b.db.Exist(addr) {
		b.db.CreateAccount(addr)
	}
	if balance == nil {
		balance = new(big.Int)
	}
	b.db.SetBalance(addr, uint256.MustFromBig(balance), tracing.BalanceChangeUnspecified)
	b.db.SetNonce(addr, nonce, tracing.NonceChangeUnspecified)
}

// InsertCode idempotently sets an account's bytecode. The account's
// CodeHash is always derived from the code itself, never supplied by the
// caller, preserving CodeHash = keccak256(Code).
func (b *Backend) InsertCode(addr common.Address, code []byte) {
	if !b.db.Exist(addr) {
		b.db.CreateAccount(addr)
	}
	b.db.SetCode(addr, code)
}

// InsertStorage idempotently sets a single storage slot on addr.
func (b *Backend) InsertStorage(addr common.Address, slot, value common.Hash) {
	if !b.db.Exist(addr) {
		b.db.CreateAccount(addr)
	}
	b.db.SetState(addr, slot, value)
}

// LoadAccount returns the backend's current view of addr. Addresses the
// backend has never seen come back as the zero AccountInfo: zero balance,
// zero nonce, empty code hash, nil code — never a network round-trip.
func (b *Backend) LoadAccount(addr common.Address) AccountInfo {
	codeHash := b.db.GetCodeHash(addr)
	if codeHash == (common.Hash{}) {
		codeHash = types.EmptyCodeHash
	}
	return AccountInfo{
		Balance:  b.db.GetBalance(addr).ToBig(),
		Nonce:    b.db.GetNonce(addr),
		CodeHash: codeHash,
		Code:     b.db.GetCode(addr),
	}
}

// GetStorage returns the value stored at slot on addr, or the zero hash if
// unset.
func (b *Backend) GetStorage(addr common.Address, slot common.Hash) common.Hash {
	return b.db.GetState(addr, slot)
}

// HasCode reports whether addr currently has non-empty code in the backend.
func (b *Backend) HasCode(addr common.Address) bool {
	return b.db.GetCodeHash(addr) != types.EmptyCodeHash && b.db.GetCodeHash(addr) != (common.Hash{})
}

// Clone returns an isolated copy of the backend's current state, structurally
// sharing unmodified data with the original via StateDB.Copy(). The
// Simulation Driver takes a Clone() at the start of each fixpoint iteration
// so a reverted or still-incomplete pass never corrupts state a later pass
// depends on.
func (b *Backend) Clone() *Backend {
	return &Backend{db: b.db.Copy()}
}
