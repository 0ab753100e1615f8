package simulate

import (
	"context"
	"fmt"
	"math/big"

	"github.com/lazovicff/gas-estimator/internal/hydrator"
)

// Estimator is the top-level entry point the JSON-RPC facade calls: it
// routes a Tx to the cheap paths (transfer, contract creation) or to the
// Simulation Driver (contract call), then composes the final Estimate.
type Estimator struct {
	driver   *Driver
	hydrator *hydrator.Hydrator
}

// NewEstimator wires a Driver and Hydrator into an Estimator.
func NewEstimator(driver *Driver, h *hydrator.Hydrator) *Estimator {
	return &Estimator{driver: driver, hydrator: h}
}

// Estimate computes the full gas Estimate for tx, per spec.md §6.3.
func (e *Estimator) Estimate(ctx context.Context, tx Tx) (Estimate, error) {
	chainID := uint64(1)
	if tx.ChainID != nil {
		chainID = *tx.ChainID
	}

	gasPrice, err := e.resolveGasPrice(ctx, tx)
	if err != nil {
		return Estimate{}, fmt.Errorf("simulate: resolving gas price: %w", err)
	}

	if tx.To == nil {
		breakdown := Breakdown{
			BaseCost:             BaseCost(chainID, false),
			ContractCreationCost: ContractCreationCost(len(tx.Data)),
		}
		return ComposeEstimate(breakdown, gasPrice), nil
	}

	if tx.From == nil {
		return Estimate{}, fmt.Errorf("simulate: tx.from is required for a contract-call or transfer estimate")
	}

	code, err := e.hydrator.CodeAt(ctx, *tx.To)
	if err != nil {
		return Estimate{}, err
	}
	toIsContract := len(code) > 0

	breakdown := Breakdown{
		BaseCost: BaseCost(chainID, toIsContract),
	}

	if toIsContract {
		breakdown.DataCost = CalldataCost(tx.Data)
	}

	if toIsContract && tx.Data != nil {
		result, err := e.driver.EstimateCallGas(ctx, tx, chainID, gasPrice)
		if err != nil {
			return Estimate{}, err
		}
		breakdown.ExecutionCost = result.ExecutionGas
	}

	return ComposeEstimate(breakdown, gasPrice), nil
}

// resolveGasPrice returns tx.GasPrice if set, otherwise the network's
// current gas price.
func (e *Estimator) resolveGasPrice(ctx context.Context, tx Tx) (*big.Int, error) {
	if tx.GasPrice != nil {
		return tx.GasPrice, nil
	}
	return e.hydrator.GasPrice(ctx)
}
