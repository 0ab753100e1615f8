// Package rpcclient implements a minimal JSON-RPC 2.0 client against an
// Ethereum node, exposing exactly the methods the simulation driver needs to
// hydrate state: eth_gasPrice, eth_getBalance, eth_getTransactionCount,
// eth_getCode, eth_getStorageAt and eth_getBlockByNumber.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// defaultTimeout bounds every single RPC round-trip; a shorter deadline on
// the caller's context still applies on top of it.
const defaultTimeout = 10 * time.Second

// Client is a thin HTTP JSON-RPC client. It is safe for concurrent use.
type Client struct {
	Endpoint string
	http     *http.Client
}

// NewClient returns a Client posting requests to endpoint.
func NewClient(endpoint string) *Client {
	return &Client{
		Endpoint: endpoint,
		http:     &http.Client{Timeout: defaultTimeout},
	}
}

// TransportError wraps a failure to reach the remote node at all: DNS,
// connection refused, timeout, malformed HTTP response.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rpcclient: transport error calling %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RpcError wraps a well-formed JSON-RPC response carrying a non-nil "error"
// field: the node understood the request and rejected it.
type RpcError struct {
	Method  string
	Code    int64
	Message string
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("rpcclient: %s returned rpc error %d: %s", e.Method, e.Code, e.Message)
}

type rpcRequest struct {
	ID      int           `json:"id"`
	JSONRpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID      int             `json:"id"`
	JSONRpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *errResponse    `json:"error,omitempty"`
}

type errResponse struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	payload := rpcRequest{ID: 1, JSONRpc: "2.0", Method: method, Params: params}
	data, err := json.Marshal(&payload)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: encoding request for %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewBuffer(data))
	if err != nil {
		return nil, &TransportError{Endpoint: c.Endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: c.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: c.Endpoint, Err: err}
	}

	var result rpcResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &TransportError{Endpoint: c.Endpoint, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if result.Error != nil {
		return nil, &RpcError{Method: method, Code: result.Error.Code, Message: result.Error.Message}
	}
	return result.Result, nil
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("rpcclient: decoding string result: %w", err)
	}
	return s, nil
}

// GasPrice calls eth_gasPrice and returns the result as wei.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	raw, err := c.call(ctx, "eth_gasPrice", nil)
	if err != nil {
		return nil, err
	}
	s, err := decodeString(raw)
	if err != nil {
		return nil, err
	}
	return hexutil.DecodeBig(s)
}

// GetBalance calls eth_getBalance at the given block tag ("latest" if blk is empty).
func (c *Client) GetBalance(ctx context.Context, address common.Address, blk string) (*big.Int, error) {
	raw, err := c.call(ctx, "eth_getBalance", []interface{}{address.Hex(), blockTagOrLatest(blk)})
	if err != nil {
		return nil, err
	}
	s, err := decodeString(raw)
	if err != nil {
		return nil, err
	}
	return hexutil.DecodeBig(s)
}

// GetTransactionCount calls eth_getTransactionCount, returning the account nonce.
func (c *Client) GetTransactionCount(ctx context.Context, address common.Address, blk string) (uint64, error) {
	raw, err := c.call(ctx, "eth_getTransactionCount", []interface{}{address.Hex(), blockTagOrLatest(blk)})
	if err != nil {
		return 0, err
	}
	s, err := decodeString(raw)
	if err != nil {
		return 0, err
	}
	n, err := hexutil.DecodeUint64(s)
	if err != nil {
		return 0, fmt.Errorf("rpcclient: decoding nonce: %w", err)
	}
	return n, nil
}

// GetCode calls eth_getCode and returns the raw deployed bytecode.
func (c *Client) GetCode(ctx context.Context, address common.Address, blk string) ([]byte, error) {
	raw, err := c.call(ctx, "eth_getCode", []interface{}{address.Hex(), blockTagOrLatest(blk)})
	if err != nil {
		return nil, err
	}
	s, err := decodeString(raw)
	if err != nil {
		return nil, err
	}
	return hexutil.Decode(s)
}

// GetStorageAt calls eth_getStorageAt for a single 32-byte slot.
func (c *Client) GetStorageAt(ctx context.Context, address common.Address, slot common.Hash, blk string) (common.Hash, error) {
	raw, err := c.call(ctx, "eth_getStorageAt", []interface{}{address.Hex(), slot.Hex(), blockTagOrLatest(blk)})
	if err != nil {
		return common.Hash{}, err
	}
	s, err := decodeString(raw)
	if err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(s), nil
}

// BlockHeader is the subset of eth_getBlockByNumber's result this package needs.
type BlockHeader struct {
	Number     *big.Int
	BaseFee    *big.Int
	GasLimit   uint64
	GasUsed    uint64
	Difficulty *big.Int
}

// GetBlockByNumber calls eth_getBlockByNumber(blk, false) and decodes the
// header fields relevant to building a simulation environment.
func (c *Client) GetBlockByNumber(ctx context.Context, blk string) (*BlockHeader, error) {
	raw, err := c.call(ctx, "eth_getBlockByNumber", []interface{}{blockTagOrLatest(blk), false})
	if err != nil {
		return nil, err
	}
	var block struct {
		Number     hexutil.Big    `json:"number"`
		BaseFee    *hexutil.Big   `json:"baseFeePerGas"`
		GasLimit   hexutil.Uint64 `json:"gasLimit"`
		GasUsed    hexutil.Uint64 `json:"gasUsed"`
		Difficulty hexutil.Big    `json:"difficulty"`
	}
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, fmt.Errorf("rpcclient: decoding block: %w", err)
	}
	h := &BlockHeader{
		Number:     (*big.Int)(&block.Number),
		GasLimit:   uint64(block.GasLimit),
		GasUsed:    uint64(block.GasUsed),
		Difficulty: (*big.Int)(&block.Difficulty),
	}
	if block.BaseFee != nil {
		h.BaseFee = (*big.Int)(block.BaseFee)
	}
	return h, nil
}

func blockTagOrLatest(blk string) string {
	if blk == "" {
		return "latest"
	}
	return blk
}
