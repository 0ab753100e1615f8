package simulate

import (
	"math/big"
)

const (
	// baseCostDefault is the intrinsic transaction gas floor.
	baseCostDefault uint64 = 21_000

	// devnetChainID is the well-known local Anvil/Hardhat chain id for
	// which base_cost is waived against a contract target.
	devnetChainID uint64 = 31337

	calldataZeroByteCost    uint64 = 4
	calldataNonZeroByteCost uint64 = 16

	contractCreationBaseCost    uint64 = 32_000
	contractCreationPerByteCost uint64 = 200
)

// Breakdown is the four-term decomposition of an estimated_gas figure.
type Breakdown struct {
	BaseCost             uint64
	DataCost             uint64
	ContractCreationCost uint64
	ExecutionCost        uint64
}

// Sum returns the total of the breakdown's four terms.
func (b Breakdown) Sum() uint64 {
	return b.BaseCost + b.DataCost + b.ContractCreationCost + b.ExecutionCost
}

// Estimate is the full result of an estimate_gas call.
type Estimate struct {
	EstimatedGas uint64
	GasPrice     *big.Int
	TotalCostWei *big.Int
	Breakdown    Breakdown
}

// CalldataCost sums 4 gas per zero byte and 16 gas per non-zero byte, the
// post-EIP-2028 calldata pricing rule.
func CalldataCost(data []byte) uint64 {
	var cost uint64
	for _, b := range data {
		if b == 0 {
			cost += calldataZeroByteCost
		} else {
			cost += calldataNonZeroByteCost
		}
	}
	return cost
}

// ContractCreationCost returns the gas cost of deploying initCode of the
// given length: a flat 32,000 base plus 200 gas per byte.
func ContractCreationCost(initCodeLen int) uint64 {
	return contractCreationBaseCost + contractCreationPerByteCost*uint64(initCodeLen)
}

// BaseCost returns the intrinsic 21,000 gas floor, waived to zero on the
// devnet chain id when the target is a contract — a known devnet
// accommodation carried over from the original estimator.
func BaseCost(chainID uint64, toIsContract bool) uint64 {
	if chainID == devnetChainID && toIsContract {
		return 0
	}
	return baseCostDefault
}

// ComposeEstimate assembles the final Estimate from its components.
// breakdown.ExecutionCost is the Driver's converged result for a contract
// call, or zero for transfers and contract creations (spec.md §6.3).
func ComposeEstimate(breakdown Breakdown, gasPrice *big.Int) Estimate {
	total := breakdown.Sum()
	wei := new(big.Int).Mul(new(big.Int).SetUint64(total), gasPrice)
	return Estimate{
		EstimatedGas: total,
		GasPrice:     gasPrice,
		TotalCostWei: wei,
		Breakdown:    breakdown,
	}
}
