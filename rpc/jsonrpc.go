package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"claimlink/core"
	"claimlink/native/assets"
	"claimlink/native/claimlink"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
)

// Escrow failure codes, one per error category.
const (
	codeClaimlinkAuthorization = -32031
	codeClaimlinkRole          = -32032
	codeClaimlinkTemporal      = -32033
	codeClaimlinkState         = -32034
	codeClaimlinkValue         = -32035
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// errorData is attached to escrow failures so clients can branch on a stable
// reason instead of the message.
type errorData struct {
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeNodeError maps an escrow or ledger failure onto a JSON-RPC error.
func writeNodeError(w http.ResponseWriter, id interface{}, err error) {
	if errors.Is(err, core.ErrFeeNotQuoted) {
		writeError(w, http.StatusBadRequest, id, codeClaimlinkValue, err.Error(), errorData{Category: string(claimlink.CategoryValue), Reason: "fee_not_quoted"})
		return
	}
	if errors.Is(err, core.ErrNodeClosed) {
		writeError(w, http.StatusServiceUnavailable, id, codeServerError, err.Error(), nil)
		return
	}
	category := claimlink.CategoryOf(err)
	reason := claimlink.ReasonOf(err)
	if category == claimlink.CategoryInternal && isLedgerRejection(err) {
		category = claimlink.CategoryValue
		reason = "asset_rejected"
	}
	status, code := statusForCategory(category)
	writeError(w, status, id, code, err.Error(), errorData{Category: string(category), Reason: reason})
}

// isLedgerRejection reports failures raised by an asset ledger for a caller
// mistake (balance, approval, ownership) rather than a node fault.
func isLedgerRejection(err error) bool {
	for _, target := range []error{
		assets.ErrUnknownAsset,
		assets.ErrInsufficientBalance,
		assets.ErrInsufficientAllowance,
		assets.ErrNotTokenOwner,
		assets.ErrNotApproved,
		assets.ErrInvalidAmount,
		assets.ErrZeroAddress,
		assets.ErrTokenExists,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func statusForCategory(category claimlink.Category) (int, int) {
	switch category {
	case claimlink.CategoryAuthorization:
		return http.StatusForbidden, codeClaimlinkAuthorization
	case claimlink.CategoryRole:
		return http.StatusForbidden, codeClaimlinkRole
	case claimlink.CategoryTemporal:
		return http.StatusConflict, codeClaimlinkTemporal
	case claimlink.CategoryState:
		return http.StatusConflict, codeClaimlinkState
	case claimlink.CategoryValue:
		return http.StatusBadRequest, codeClaimlinkValue
	default:
		return http.StatusInternalServerError, codeServerError
	}
}
