package simulate

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// AccessTuple is a single entry of an EIP-2930 access list.
type AccessTuple struct {
	Address     common.Address `json:"address"`
	StorageKeys []common.Hash  `json:"storage_keys"`
}

// Tx is the transaction description accepted by estimate_gas. All fields
// except Value are optional; JSON decoding (UnmarshalJSON, via rawTx)
// accepts both the snake_case names in the tags below and the camelCase
// aliases listed on rawTx.
type Tx struct {
	From *common.Address `json:"from"`
	To   *common.Address `json:"to"`
	Value *big.Int       `json:"value"`
	Data  []byte         `json:"data"`

	Nonce   *uint64 `json:"nonce"`
	ChainID *uint64 `json:"chain_id"`

	GasLimit             *uint64  `json:"gas_limit"`
	GasPrice             *big.Int `json:"gas_price"`
	MaxFeePerGas         *big.Int `json:"max_fee_per_gas"`
	MaxPriorityFeePerGas *big.Int `json:"max_priority_fee_per_gas"`

	AccessList []AccessTuple `json:"access_list"`

	Type *uint64 `json:"type"`
}

// rawTx mirrors Tx field-for-field using string/hex wire types plus every
// alias spec.md lists, so UnmarshalJSON can accept either convention.
type rawTx struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Value *bigString      `json:"value"`
	Data  *hexBytes       `json:"data"`
	Input *hexBytes       `json:"input"`

	Nonce *uint64 `json:"nonce"`

	ChainID  *uint64 `json:"chain_id"`
	ChainIDA *uint64 `json:"chainId"`

	GasLimit *uint64 `json:"gas_limit"`

	GasPrice  *bigString `json:"gas_price"`
	GasPriceA *bigString `json:"gasPrice"`

	MaxFeePerGas  *bigString `json:"max_fee_per_gas"`
	MaxFeePerGasA *bigString `json:"maxFeePerGas"`

	MaxPriorityFeePerGas  *bigString `json:"max_priority_fee_per_gas"`
	MaxPriorityFeePerGasA *bigString `json:"maxPriorityFeePerGas"`

	AccessList  []AccessTuple `json:"access_list"`
	AccessListA []AccessTuple `json:"accessList"`

	Type  *uint64 `json:"type"`
	TypeA *uint64 `json:"transaction_type"`
}

// hexBytes decodes a hex string, with or without a "0x" prefix; an
// odd-length string gets one leading zero nibble. Non-string JSON values
// (such as an array of bytes) are rejected.
type hexBytes []byte

func (h *hexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decoding hex bytes: %w", err)
	}
	*h = b
	return nil
}

// bigString decodes a decimal or "0x"-prefixed hex string into a *big.Int,
// matching spec.md's "decimal or hex string of a 256-bit unsigned" contract.
type bigString big.Int

func (b *bigString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n := new(big.Int)
	var ok bool
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		n, ok = n.SetString(s[2:], 16)
	} else {
		n, ok = n.SetString(s, 10)
	}
	if !ok {
		return fmt.Errorf("invalid numeric string %q", s)
	}
	*(*big.Int)(b) = *n
	return nil
}

func (b *bigString) big() *big.Int {
	if b == nil {
		return nil
	}
	return (*big.Int)(b)
}

// UnmarshalJSON implements the full alias-matrix of spec.md §6.1 for Tx.
func (t *Tx) UnmarshalJSON(data []byte) error {
	var raw rawTx
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	t.From = raw.From
	t.To = raw.To

	if raw.Value != nil {
		t.Value = raw.Value.big()
	} else {
		t.Value = new(big.Int)
	}

	if raw.Data != nil {
		t.Data = []byte(*raw.Data)
	} else if raw.Input != nil {
		t.Data = []byte(*raw.Input)
	}

	t.Nonce = raw.Nonce

	t.ChainID = firstNonNil(raw.ChainID, raw.ChainIDA)
	t.GasLimit = raw.GasLimit
	t.GasPrice = firstBig(raw.GasPrice, raw.GasPriceA)
	t.MaxFeePerGas = firstBig(raw.MaxFeePerGas, raw.MaxFeePerGasA)
	t.MaxPriorityFeePerGas = firstBig(raw.MaxPriorityFeePerGas, raw.MaxPriorityFeePerGasA)

	if raw.AccessList != nil {
		t.AccessList = raw.AccessList
	} else {
		t.AccessList = raw.AccessListA
	}

	t.Type = firstNonNil(raw.Type, raw.TypeA)

	return nil
}

func firstNonNil(a, b *uint64) *uint64 {
	if a != nil {
		return a
	}
	return b
}

func firstBig(a, b *bigString) *big.Int {
	if a != nil {
		return a.big()
	}
	if b != nil {
		return b.big()
	}
	return nil
}

// ToAccessList converts the Tx's access list into go-ethereum's native
// representation, for inclusion in the EVM's TxContext.
func (t Tx) ToAccessList() types.AccessList {
	if len(t.AccessList) == 0 {
		return nil
	}
	out := make(types.AccessList, len(t.AccessList))
	for i, at := range t.AccessList {
		out[i] = types.AccessTuple{Address: at.Address, StorageKeys: at.StorageKeys}
	}
	return out
}
