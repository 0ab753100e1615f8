package backend

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAccountAndLoad(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	addr := common.HexToAddress("0x1")
	b.InsertAccount(addr, big.NewInt(1_000), 7)

	info := b.LoadAccount(addr)
	assert.Equal(t, big.NewInt(1_000), info.Balance)
	assert.Equal(t, uint64(7), info.Nonce)
}

func TestInsertAccountIsIdempotent(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	addr := common.HexToAddress("0x1")
	b.InsertAccount(addr, big.NewInt(1_000), 7)
	b.InsertAccount(addr, big.NewInt(1_000), 7)

	info := b.LoadAccount(addr)
	assert.Equal(t, big.NewInt(1_000), info.Balance)
	assert.Equal(t, uint64(7), info.Nonce)
}

func TestLoadAccountNeverSeenReturnsZeroValue(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	addr := common.HexToAddress("0xdead")
	info := b.LoadAccount(addr)
	assert.Equal(t, "0", info.Balance.String())
	assert.Equal(t, uint64(0), info.Nonce)
	assert.False(t, b.HasCode(addr))
}

func TestInsertCodeSetsHasCode(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	addr := common.HexToAddress("0x2")
	assert.False(t, b.HasCode(addr))

	b.InsertCode(addr, []byte{0x60, 0x00})
	assert.True(t, b.HasCode(addr))

	info := b.LoadAccount(addr)
	assert.Equal(t, []byte{0x60, 0x00}, info.Code)
}

func TestInsertAndGetStorage(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	addr := common.HexToAddress("0x3")
	slot := common.HexToHash("0x1")
	value := common.HexToHash("0x2a")

	assert.Equal(t, common.Hash{}, b.GetStorage(addr, slot))

	b.InsertStorage(addr, slot, value)
	assert.Equal(t, value, b.GetStorage(addr, slot))
}

func TestCloneIsIsolated(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	addr := common.HexToAddress("0x4")
	b.InsertAccount(addr, big.NewInt(5), 0)

	clone := b.Clone()
	clone.InsertAccount(addr, big.NewInt(999), 1)

	// The original backend must not observe the clone's mutation.
	original := b.LoadAccount(addr)
	assert.Equal(t, big.NewInt(5), original.Balance)
	assert.Equal(t, uint64(0), original.Nonce)

	cloned := clone.LoadAccount(addr)
	assert.Equal(t, big.NewInt(999), cloned.Balance)
	assert.Equal(t, uint64(1), cloned.Nonce)
}
