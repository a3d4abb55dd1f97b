package rpc

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"claimlink/core"
	"claimlink/native/claimlink"
	"claimlink/observability/logging"
	"claimlink/rpc/middleware"
	"claimlink/storage"
)

const maxEventPage = 500

type depositParams struct {
	Asset            string `json:"asset"`
	TransferID       string `json:"transferId"`
	Amount           string `json:"amount"`
	Expiration       uint64 `json:"expiration"`
	FeeAsset         string `json:"feeAsset"`
	FeeAmount        string `json:"feeAmount"`
	FeeAuthorization string `json:"feeAuthorization"`
	Message          string `json:"message,omitempty"`
	Value            string `json:"value,omitempty"`
}

type depositNFTParams struct {
	Asset            string `json:"asset"`
	TransferID       string `json:"transferId"`
	TokenID          string `json:"tokenId"`
	Amount           string `json:"amount,omitempty"`
	Expiration       uint64 `json:"expiration"`
	FeeAmount        string `json:"feeAmount"`
	FeeAuthorization string `json:"feeAuthorization"`
	Message          string `json:"message,omitempty"`
	Value            string `json:"value,omitempty"`
}

type depositWithAuthorizationParams struct {
	Asset         string `json:"asset"`
	TransferID    string `json:"transferId"`
	Expiration    uint64 `json:"expiration"`
	Selector      string `json:"selector"`
	FeeAmount     string `json:"feeAmount"`
	Authorization string `json:"authorization"`
	Message       string `json:"message,omitempty"`
}

type redeemParams struct {
	Receiver    string `json:"receiver"`
	Sender      string `json:"sender"`
	Asset       string `json:"asset"`
	ReceiverSig string `json:"receiverSig"`
}

type redeemRecoveredParams struct {
	Receiver    string `json:"receiver"`
	Sender      string `json:"sender"`
	Asset       string `json:"asset"`
	TransferID  string `json:"transferId"`
	ReceiverSig string `json:"receiverSig"`
	SenderSig   string `json:"senderSig"`
}

type depositKeyParams struct {
	Sender     string `json:"sender"`
	Asset      string `json:"asset"`
	TransferID string `json:"transferId"`
}

type denominationParams struct {
	Denomination string `json:"denomination"`
}

type transferOwnershipParams struct {
	NewOwner string `json:"newOwner"`
}

type quoteFeeParams struct {
	Sender     string `json:"sender,omitempty"`
	Asset      string `json:"asset"`
	TransferID string `json:"transferId"`
	TokenID    string `json:"tokenId,omitempty"`
	Amount     string `json:"amount,omitempty"`
	Expiration uint64 `json:"expiration"`
	FeeAsset   string `json:"feeAsset"`
}

type listEventsParams struct {
	After int64  `json:"after"`
	Limit int    `json:"limit"`
	Type  string `json:"type,omitempty"`
}

type okResult struct {
	OK bool `json:"ok"`
}

type depositJSON struct {
	Asset      string `json:"asset"`
	Sender     string `json:"sender"`
	TransferID string `json:"transferId"`
	TokenID    string `json:"tokenId"`
	Amount     string `json:"amount"`
	Expiration uint64 `json:"expiration"`
	Live       bool   `json:"live"`
}

type feesJSON struct {
	Denomination string `json:"denomination"`
	Amount       string `json:"amount"`
}

type quoteJSON struct {
	Sender     string `json:"sender"`
	Asset      string `json:"asset"`
	TransferID string `json:"transferId"`
	TokenID    string `json:"tokenId"`
	Amount     string `json:"amount"`
	Expiration uint64 `json:"expiration"`
	FeeAsset   string `json:"feeAsset"`
	FeeAmount  string `json:"feeAmount"`
	Signature  string `json:"signature"`
}

type eventsJSON struct {
	Events []storage.EventRecord `json:"events"`
	Next   int64                 `json:"next"`
}

type domainJSON struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           string `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
	Escrow            string `json:"escrow"`
	Relayer           string `json:"relayer"`
	Owner             string `json:"owner"`
}

func (s *Server) requireCaller(w http.ResponseWriter, r *http.Request, req *RPCRequest) (common.Address, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "bearer token naming the caller required", nil)
		return common.Address{}, false
	}
	return caller, true
}

func (s *Server) invalidParams(w http.ResponseWriter, req *RPCRequest, err error) {
	s.logger.Debug("rpc params rejected",
		slog.String("method", req.Method),
		slog.Any("error", err),
		slog.Attr{Key: "params", Value: slog.GroupValue(maskedParams(req)...)})
	writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
}

// maskedParams flattens the first params object for logging. Signatures,
// authorizations and other non-allowlisted fields are redacted.
func maskedParams(req *RPCRequest) []slog.Attr {
	if len(req.Params) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(req.Params[0], &fields); err != nil {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, key := range keys {
		value := strings.Trim(string(fields[key]), `"`)
		attrs = append(attrs, logging.MaskField(key, value))
	}
	return attrs
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params depositParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	deposit, value, err := params.toRequest()
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.Deposit(r.Context(), claimlink.Call{Caller: caller, Value: value}, deposit); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (p depositParams) toRequest() (claimlink.DepositRequest, *big.Int, error) {
	var out claimlink.DepositRequest
	var err error
	if out.Asset, err = parseOptionalAddress("asset", p.Asset); err != nil {
		return out, nil, err
	}
	if out.TransferID, err = parseAddressParam("transferId", p.TransferID); err != nil {
		return out, nil, err
	}
	if out.Amount, err = parseAmountParam("amount", p.Amount); err != nil {
		return out, nil, err
	}
	if out.FeeAsset, err = parseOptionalAddress("feeAsset", p.FeeAsset); err != nil {
		return out, nil, err
	}
	if out.FeeAmount, err = parseAmountParam("feeAmount", p.FeeAmount); err != nil {
		return out, nil, err
	}
	if out.FeeAuthorization, err = parseBytesParam("feeAuthorization", p.FeeAuthorization); err != nil {
		return out, nil, err
	}
	if out.Message, err = parseBytesParam("message", p.Message); err != nil {
		return out, nil, err
	}
	value, err := parseAmountParam("value", p.Value)
	if err != nil {
		return out, nil, err
	}
	out.Expiration = p.Expiration
	return out, value, nil
}

func (s *Server) handleDepositNFT(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params depositNFTParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	deposit, value, err := params.toRequest()
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.DepositNFT(r.Context(), claimlink.Call{Caller: caller, Value: value}, deposit); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (p depositNFTParams) toRequest() (claimlink.NFTDepositRequest, *big.Int, error) {
	var out claimlink.NFTDepositRequest
	var err error
	if out.Asset, err = parseAddressParam("asset", p.Asset); err != nil {
		return out, nil, err
	}
	if out.TransferID, err = parseAddressParam("transferId", p.TransferID); err != nil {
		return out, nil, err
	}
	if out.TokenID, err = parseAmountParam("tokenId", p.TokenID); err != nil {
		return out, nil, err
	}
	if out.Amount, err = parseAmountParam("amount", p.Amount); err != nil {
		return out, nil, err
	}
	if out.FeeAmount, err = parseAmountParam("feeAmount", p.FeeAmount); err != nil {
		return out, nil, err
	}
	if out.FeeAuthorization, err = parseBytesParam("feeAuthorization", p.FeeAuthorization); err != nil {
		return out, nil, err
	}
	if out.Message, err = parseBytesParam("message", p.Message); err != nil {
		return out, nil, err
	}
	value, err := parseAmountParam("value", p.Value)
	if err != nil {
		return out, nil, err
	}
	out.Expiration = p.Expiration
	return out, value, nil
}

func (s *Server) handleDepositWithAuthorization(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params depositWithAuthorizationParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	var (
		deposit claimlink.AuthorizedDepositRequest
		err     error
	)
	if deposit.Asset, err = parseAddressParam("asset", params.Asset); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if deposit.TransferID, err = parseAddressParam("transferId", params.TransferID); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if deposit.Selector, err = parseSelectorParam(params.Selector); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if deposit.FeeAmount, err = parseAmountParam("feeAmount", params.FeeAmount); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if deposit.Authorization, err = parseBytesParam("authorization", params.Authorization); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if deposit.Message, err = parseBytesParam("message", params.Message); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	deposit.Expiration = params.Expiration
	if err := s.node.DepositWithAuthorization(r.Context(), deposit); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params redeemParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	var (
		redeem claimlink.RedeemRequest
		err    error
	)
	if redeem.Receiver, err = parseAddressParam("receiver", params.Receiver); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if redeem.Sender, err = parseAddressParam("sender", params.Sender); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if redeem.Asset, err = parseOptionalAddress("asset", params.Asset); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if redeem.ReceiverSig, err = parseBytesParam("receiverSig", params.ReceiverSig); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.Redeem(r.Context(), redeem); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleRedeemRecovered(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params redeemRecoveredParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	var (
		redeem claimlink.RecoveredRedeemRequest
		err    error
	)
	if redeem.Receiver, err = parseAddressParam("receiver", params.Receiver); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if redeem.Sender, err = parseAddressParam("sender", params.Sender); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if redeem.Asset, err = parseOptionalAddress("asset", params.Asset); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if redeem.TransferID, err = parseAddressParam("transferId", params.TransferID); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if redeem.ReceiverSig, err = parseBytesParam("receiverSig", params.ReceiverSig); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if redeem.SenderSig, err = parseBytesParam("senderSig", params.SenderSig); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.RedeemRecovered(r.Context(), redeem); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (p depositKeyParams) parse() (sender, asset, transferID common.Address, err error) {
	if sender, err = parseAddressParam("sender", p.Sender); err != nil {
		return
	}
	if asset, err = parseOptionalAddress("asset", p.Asset); err != nil {
		return
	}
	transferID, err = parseAddressParam("transferId", p.TransferID)
	return
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params depositKeyParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	sender, asset, transferID, err := params.parse()
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.Refund(r.Context(), sender, asset, transferID); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleWithdrawAccruedFees(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params denominationParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	denom, err := parseOptionalAddress("denomination", params.Denomination)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	amount, err := s.node.WithdrawAccruedFees(r.Context(), caller, denom)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, feesJSON{Denomination: denom.Hex(), Amount: formatBig(amount)})
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params transferOwnershipParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	next, err := parseAddressParam("newOwner", params.NewOwner)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.TransferOwnership(r.Context(), caller, next); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleGetDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params depositKeyParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	sender, asset, transferID, err := params.parse()
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	d, err := s.node.GetDeposit(asset, sender, transferID)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, depositJSON{
		Asset:      d.Asset.Hex(),
		Sender:     d.Sender.Hex(),
		TransferID: d.TransferID.Hex(),
		TokenID:    formatBig(d.TokenID),
		Amount:     formatBig(d.Amount),
		Expiration: d.Expiration,
		Live:       d.Live(),
	})
}

func (s *Server) handleAccruedFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params denominationParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	denom, err := parseOptionalAddress("denomination", params.Denomination)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	amount, err := s.node.AccruedFees(denom)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, feesJSON{Denomination: denom.Hex(), Amount: formatBig(amount)})
}

func (s *Server) handleQuoteFee(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params quoteFeeParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	var (
		quoteReq core.QuoteRequest
		err      error
	)
	if params.Sender != "" {
		if quoteReq.Sender, err = parseAddressParam("sender", params.Sender); err != nil {
			s.invalidParams(w, req, err)
			return
		}
	} else if caller, ok := middleware.CallerFromContext(r.Context()); ok {
		quoteReq.Sender = caller
	}
	if quoteReq.Asset, err = parseOptionalAddress("asset", params.Asset); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if quoteReq.TransferID, err = parseAddressParam("transferId", params.TransferID); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if quoteReq.TokenID, err = parseAmountParam("tokenId", params.TokenID); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if quoteReq.Amount, err = parseAmountParam("amount", params.Amount); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if quoteReq.FeeAsset, err = parseOptionalAddress("feeAsset", params.FeeAsset); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	quoteReq.Expiration = params.Expiration
	quote, err := s.node.QuoteFee(quoteReq)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, quoteJSON{
		Sender:     quote.Sender.Hex(),
		Asset:      quote.Asset.Hex(),
		TransferID: quote.TransferID.Hex(),
		TokenID:    formatBig(quote.TokenID),
		Amount:     formatBig(quote.Amount),
		Expiration: quote.Expiration,
		FeeAsset:   quote.FeeAsset.Hex(),
		FeeAmount:  formatBig(quote.FeeAmount),
		Signature:  hexutil.Encode(quote.Signature),
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params listEventsParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			s.invalidParams(w, req, err)
			return
		}
	}
	if params.After < 0 {
		params.After = 0
	}
	if params.Limit <= 0 || params.Limit > maxEventPage {
		params.Limit = 100
	}
	records, err := s.node.Events(r.Context(), params.After, params.Limit, params.Type)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to read events", err.Error())
		return
	}
	next := params.After
	if len(records) > 0 {
		next = records[len(records)-1].Sequence
	}
	if records == nil {
		records = []storage.EventRecord{}
	}
	writeResult(w, req.ID, eventsJSON{Events: records, Next: next})
}

func (s *Server) handleDomain(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	domain := s.node.Domain()
	owner, err := s.node.Owner()
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, domainJSON{
		Name:              domain.Name,
		Version:           domain.Version,
		ChainID:           formatBig(domain.ChainID),
		VerifyingContract: domain.VerifyingContract.Hex(),
		Escrow:            s.node.Escrow().Hex(),
		Relayer:           s.node.Relayer().Hex(),
		Owner:             owner.Hex(),
	})
}

type stateRootJSON struct {
	Root string `json:"root"`
}

func (s *Server) handleStateRoot(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	root, err := s.node.StateRoot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to compute state root", err.Error())
		return
	}
	writeResult(w, req.ID, stateRootJSON{Root: root.Hex()})
}
