// Package gasrpc exposes the estimate_gas JSON-RPC method over HTTP. The
// request/response shapes and the single supported method name are fixed
// by spec.md §6.1; this package owns only the wire-level concerns
// (decoding, dispatch, error formatting, CORS) and delegates the actual
// estimate to internal/simulate.
package gasrpc

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"

	"github.com/lazovicff/gas-estimator/internal/hydrator"
	"github.com/lazovicff/gas-estimator/internal/rpcclient"
	"github.com/lazovicff/gas-estimator/internal/simulate"
)

// internalErrorCode is the JSON-RPC 2.0 code every error this server
// produces carries, per spec.md §6.1.
const internalErrorCode = -32603

type request struct {
	ID      json.RawMessage `json:"id"`
	JSONRpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	ID      json.RawMessage `json:"id"`
	JSONRpc string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// estimateGasParams is the single-object parameter shape of spec.md §6.1:
// { transaction: Tx, rpc_url: optional string }.
type estimateGasParams struct {
	Transaction simulate.Tx `json:"transaction"`
	RPCURL      *string     `json:"rpc_url"`
}

type estimateGasResult struct {
	Estimate estimateDTO `json:"estimate"`
}

type estimateDTO struct {
	EstimatedGas string       `json:"estimated_gas"`
	GasPrice     string       `json:"gas_price"`
	TotalCostWei string       `json:"total_cost_wei"`
	Breakdown    breakdownDTO `json:"breakdown"`
}

type breakdownDTO struct {
	BaseCost             string `json:"base_cost"`
	DataCost             string `json:"data_cost"`
	ContractCreationCost string `json:"contract_creation_cost"`
	ExecutionCost        string `json:"execution_cost"`
}

// Server handles estimate_gas requests, delegating to a simulate.Estimator.
type Server struct {
	estimator *simulate.Estimator
}

// NewServer wires an Estimator into a Server.
func NewServer(estimator *simulate.Estimator) *Server {
	return &Server{estimator: estimator}
}

// Handler returns an http.Handler for the JSON-RPC endpoint, CORS-wrapped
// to allow any origin, header and method, matching the original's
// tower_http CORS policy. rs/cors has no "*" wildcard case for
// AllowedMethods, so cors.AllowAll lists the standard methods (HEAD, GET,
// POST, PUT, PATCH, DELETE) explicitly.
func (s *Server) Handler() http.Handler {
	return cors.AllowAll().Handler(http.HandlerFunc(s.serveHTTP))
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, fmt.Errorf("decoding request: %w", err))
		return
	}

	if req.Method != "estimate_gas" {
		writeError(w, req.ID, fmt.Errorf("unknown method %q", req.Method))
		return
	}

	var params estimateGasParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, req.ID, fmt.Errorf("decoding params: %w", err))
		return
	}

	estimator := s.estimator
	if params.RPCURL != nil {
		h := hydrator.New(rpcclient.NewClient(*params.RPCURL))
		estimator = simulate.NewEstimator(simulate.NewDriver(h), h)
	}

	estimate, err := estimator.Estimate(r.Context(), params.Transaction)
	if err != nil {
		log.Error("estimate_gas failed", "err", err)
		writeError(w, req.ID, err)
		return
	}

	writeResult(w, req.ID, estimateGasResult{Estimate: toDTO(estimate)})
}

func toDTO(e simulate.Estimate) estimateDTO {
	return estimateDTO{
		EstimatedGas: fmt.Sprintf("%d", e.EstimatedGas),
		GasPrice:     e.GasPrice.String(),
		TotalCostWei: e.TotalCostWei.String(),
		Breakdown: breakdownDTO{
			BaseCost:             fmt.Sprintf("%d", e.Breakdown.BaseCost),
			DataCost:             fmt.Sprintf("%d", e.Breakdown.DataCost),
			ContractCreationCost: fmt.Sprintf("%d", e.Breakdown.ContractCreationCost),
			ExecutionCost:        fmt.Sprintf("%d", e.Breakdown.ExecutionCost),
		},
	}
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response{ID: id, JSONRpc: "2.0", Result: result})
}

func writeError(w http.ResponseWriter, id json.RawMessage, err error) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response{
		ID:      id,
		JSONRpc: "2.0",
		Error:   &rpcError{Code: internalErrorCode, Message: err.Error()},
	})
}
