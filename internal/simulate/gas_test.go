package simulate

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalldataCostMixedBytes(t *testing.T) {
	// Two zero bytes (4 each) + two non-zero bytes (16 each) = 8 + 32 = 40.
	data := []byte{0x00, 0x01, 0x00, 0xff}
	assert.Equal(t, uint64(40), CalldataCost(data))
}

func TestCalldataCostEmpty(t *testing.T) {
	assert.Equal(t, uint64(0), CalldataCost(nil))
}

func TestContractCreationCost(t *testing.T) {
	// 32,000 base + 200 * 10 bytes = 34,000.
	assert.Equal(t, uint64(34_000), ContractCreationCost(10))
	assert.Equal(t, uint64(32_000), ContractCreationCost(0))
}

func TestBaseCostDefault(t *testing.T) {
	assert.Equal(t, uint64(21_000), BaseCost(1, true))
	assert.Equal(t, uint64(21_000), BaseCost(1, false))
}

func TestBaseCostWaivedOnDevnetContractTarget(t *testing.T) {
	assert.Equal(t, uint64(0), BaseCost(31337, true))
	assert.Equal(t, uint64(21_000), BaseCost(31337, false))
}

func TestBreakdownSum(t *testing.T) {
	b := Breakdown{BaseCost: 21_000, DataCost: 100, ContractCreationCost: 0, ExecutionCost: 5_000}
	assert.Equal(t, uint64(26_100), b.Sum())
}

func TestComposeEstimateTotalCostWei(t *testing.T) {
	b := Breakdown{BaseCost: 21_000}
	gasPrice := big.NewInt(20_000_000_000) // S1 literal: 20 Gwei
	est := ComposeEstimate(b, gasPrice)

	assert.Equal(t, uint64(21_000), est.EstimatedGas)
	assert.Equal(t, "420000000000000", est.TotalCostWei.String())
}
