// Package hydrator implements the Hydrator: it turns Access Inspector
// observations into State Backend writes by fetching the missing data from
// a remote Ethereum JSON-RPC endpoint. It makes the policy calls around
// precompiles and missing code; it never decides *when* to fetch, only
// *how*.
package hydrator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/lazovicff/gas-estimator/internal/backend"
	"github.com/lazovicff/gas-estimator/internal/rpcclient"
)

// fallbackBalance is substituted for the caller's balance when the remote
// node cannot be reached: 1000 ETH, in wei.
var fallbackBalance = new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))

// HydrationFatal signals that simulation cannot proceed: a non-precompile
// callee has no deployed code. It wraps no transport/RPC error of its own —
// the underlying fetch succeeded, the *result* is what's fatal.
type HydrationFatal struct {
	Address common.Address
	Reason  string
}

func (e *HydrationFatal) Error() string {
	return fmt.Sprintf("hydrator: fatal for %s: %s", e.Address.Hex(), e.Reason)
}

// Hydrator fetches account/code/storage data from a remote node and writes
// it into a Backend.
type Hydrator struct {
	rpc *rpcclient.Client
}

// New returns a Hydrator fetching from client.
func New(client *rpcclient.Client) *Hydrator {
	return &Hydrator{rpc: client}
}

// HydrateAccount fetches balance and nonce for address and inserts an
// account with empty code and the KECCAK_EMPTY code hash. Used for the
// transaction's caller. On fetch error, balance falls back to 1000 ETH and
// nonce falls back to 0 rather than propagating — per the documented
// failure semantics, only code and storage fetches are hard failures.
func (h *Hydrator) HydrateAccount(ctx context.Context, be *backend.Backend, address common.Address) {
	balance, err := h.rpc.GetBalance(ctx, address, "")
	if err != nil {
		balance = new(big.Int).Set(fallbackBalance)
	}
	nonce, err := h.rpc.GetTransactionCount(ctx, address, "")
	if err != nil {
		nonce = 0
	}
	be.InsertAccount(address, balance, nonce)
}

// HydrateCode fetches bytecode for address. Precompiles are skipped
// silently: their behavior is built into the EVM itself, and precompile
// addresses legitimately carry no deployed code. A non-precompile address
// with empty code is a HydrationFatal: simulation against a nonexistent
// contract cannot produce a meaningful gas figure.
func (h *Hydrator) HydrateCode(ctx context.Context, be *backend.Backend, address common.Address) error {
	if IsPrecompile(address) {
		return nil
	}

	code, err := h.rpc.GetCode(ctx, address, "")
	if err != nil {
		return err
	}
	if len(code) == 0 {
		return &HydrationFatal{Address: address, Reason: "no code at non-precompile address"}
	}

	be.InsertCode(address, code)
	return nil
}

// CodeAt fetches an address's deployed bytecode directly, with none of
// HydrateCode's precompile-skip/HydrationFatal policy applied. It is used
// by the top-level estimator to decide whether a transaction's target is a
// contract before routing to the Driver.
func (h *Hydrator) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	return h.rpc.GetCode(ctx, address, "")
}

// HydrateStorage fetches a single storage slot and inserts it.
func (h *Hydrator) HydrateStorage(ctx context.Context, be *backend.Backend, address common.Address, slot common.Hash) error {
	value, err := h.rpc.GetStorageAt(ctx, address, slot, "")
	if err != nil {
		return err
	}
	be.InsertStorage(address, slot, value)
	return nil
}

// GasPrice fetches the network's current gas price, used when the
// transaction under simulation doesn't specify one.
func (h *Hydrator) GasPrice(ctx context.Context) (*big.Int, error) {
	return h.rpc.GasPrice(ctx)
}

// NetworkInfo is a small supplementary snapshot of chain conditions, used by
// the CLI's startup connectivity check. It is not served over the JSON-RPC
// endpoint, which exposes only estimate_gas.
type NetworkInfo struct {
	CurrentGasPrice  *big.Int
	BaseFeePerGas    *big.Int
	BlockUtilization float64
	LatestBlock      uint64
}

// FetchNetworkInfo gathers the network's current gas price and latest
// block's fee/utilization figures.
func (h *Hydrator) FetchNetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	price, err := h.rpc.GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	block, err := h.rpc.GetBlockByNumber(ctx, "latest")
	if err != nil {
		return nil, err
	}

	info := &NetworkInfo{
		CurrentGasPrice: price,
		BaseFeePerGas:   block.BaseFee,
		LatestBlock:     block.Number.Uint64(),
	}
	if block.GasLimit > 0 {
		info.BlockUtilization = float64(block.GasUsed) / float64(block.GasLimit)
	}
	return info, nil
}

// IsPrecompile reports whether address falls in the standard Ethereum
// precompile range: the upper 19 bytes are zero and the last byte is
// between 1 and 9 inclusive.
func IsPrecompile(address common.Address) bool {
	for _, b := range address[:19] {
		if b != 0 {
			return false
		}
	}
	last := address[19]
	return last >= 1 && last <= 9
}

// KeccakEmpty is the code hash every empty-code account carries.
var KeccakEmpty = crypto.Keccak256Hash(nil)
