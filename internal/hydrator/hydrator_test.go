package hydrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazovicff/gas-estimator/internal/backend"
	"github.com/lazovicff/gas-estimator/internal/rpcclient"
)

func fakeNode(t *testing.T, responses map[string]string, errors map[string]bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int    `json:"id"`
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		if errors[req.Method] {
			resp := map[string]interface{}{
				"id": req.ID, "jsonrpc": "2.0",
				"error": map[string]interface{}{"code": -32000, "message": "boom"},
			}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
			return
		}
		result, ok := responses[req.Method]
		require.True(t, ok, "unexpected method %q", req.Method)
		resp := map[string]interface{}{
			"id": req.ID, "jsonrpc": "2.0", "result": json.RawMessage(result),
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestHydrateAccountSuccess(t *testing.T) {
	srv := fakeNode(t, map[string]string{
		"eth_getBalance":          `"0xde0b6b3a7640000"`, // 1 ether
		"eth_getTransactionCount": `"0x3"`,
	}, nil)
	defer srv.Close()

	h := New(rpcclient.NewClient(srv.URL))
	be, err := backend.New()
	require.NoError(t, err)

	addr := common.HexToAddress("0x1")
	h.HydrateAccount(context.Background(), be, addr)

	info := be.LoadAccount(addr)
	assert.Equal(t, "1000000000000000000", info.Balance.String())
	assert.Equal(t, uint64(3), info.Nonce)
}

func TestHydrateAccountFallsBackOnRpcError(t *testing.T) {
	srv := fakeNode(t, nil, map[string]bool{
		"eth_getBalance":          true,
		"eth_getTransactionCount": true,
	})
	defer srv.Close()

	h := New(rpcclient.NewClient(srv.URL))
	be, err := backend.New()
	require.NoError(t, err)

	addr := common.HexToAddress("0x1")
	h.HydrateAccount(context.Background(), be, addr)

	info := be.LoadAccount(addr)
	assert.Equal(t, fallbackBalance.String(), info.Balance.String())
	assert.Equal(t, uint64(0), info.Nonce)
}

func TestHydrateCodeSkipsPrecompile(t *testing.T) {
	srv := fakeNode(t, nil, nil)
	defer srv.Close()

	h := New(rpcclient.NewClient(srv.URL))
	be, err := backend.New()
	require.NoError(t, err)

	// address 0x...01 is the ecrecover precompile.
	addr := common.HexToAddress("0x1")
	require.NoError(t, h.HydrateCode(context.Background(), be, addr))
	assert.False(t, be.HasCode(addr))
}

func TestHydrateCodeFatalOnEmptyCodeForNonPrecompile(t *testing.T) {
	srv := fakeNode(t, map[string]string{"eth_getCode": `"0x"`}, nil)
	defer srv.Close()

	h := New(rpcclient.NewClient(srv.URL))
	be, err := backend.New()
	require.NoError(t, err)

	addr := common.HexToAddress("0xdead")
	err = h.HydrateCode(context.Background(), be, addr)
	require.Error(t, err)
	var fatal *HydrationFatal
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, addr, fatal.Address)
}

func TestHydrateCodeInsertsCode(t *testing.T) {
	srv := fakeNode(t, map[string]string{"eth_getCode": `"0x6001"`}, nil)
	defer srv.Close()

	h := New(rpcclient.NewClient(srv.URL))
	be, err := backend.New()
	require.NoError(t, err)

	addr := common.HexToAddress("0xdead")
	require.NoError(t, h.HydrateCode(context.Background(), be, addr))
	assert.True(t, be.HasCode(addr))
}

func TestHydrateStorageInsertsSlot(t *testing.T) {
	want := common.HexToHash("0x2a")
	srv := fakeNode(t, map[string]string{"eth_getStorageAt": `"` + want.Hex() + `"`}, nil)
	defer srv.Close()

	h := New(rpcclient.NewClient(srv.URL))
	be, err := backend.New()
	require.NoError(t, err)

	addr := common.HexToAddress("0x1")
	slot := common.HexToHash("0x1")
	require.NoError(t, h.HydrateStorage(context.Background(), be, addr, slot))
	assert.Equal(t, want, be.GetStorage(addr, slot))
}

func TestIsPrecompileRange(t *testing.T) {
	assert.True(t, IsPrecompile(common.HexToAddress("0x1")))
	assert.True(t, IsPrecompile(common.HexToAddress("0x9")))
	assert.False(t, IsPrecompile(common.HexToAddress("0xa")))
	assert.False(t, IsPrecompile(common.HexToAddress("0x0")))
	assert.False(t, IsPrecompile(common.HexToAddress("0x0100000000000000000000000000000000000001")))
}

func TestFetchNetworkInfo(t *testing.T) {
	srv := fakeNode(t, map[string]string{
		"eth_gasPrice": `"0x4a817c800"`,
		"eth_getBlockByNumber": `{
			"number": "0x112a880",
			"baseFeePerGas": "0x3b9aca00",
			"gasLimit": "0x1c9c380",
			"gasUsed": "0xe4e1c0",
			"difficulty": "0x0"
		}`,
	}, nil)
	defer srv.Close()

	h := New(rpcclient.NewClient(srv.URL))
	info, err := h.FetchNetworkInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0x112a880), info.LatestBlock)
	assert.Greater(t, info.BlockUtilization, 0.0)
}
