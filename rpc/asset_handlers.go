package rpc

import (
	"net/http"
	"sort"
)

type assetJSON struct {
	Address string `json:"address"`
	Kind    string `json:"kind"`
}

type balanceParams struct {
	Asset   string `json:"asset"`
	Holder  string `json:"holder"`
	TokenID string `json:"tokenId,omitempty"`
}

type balanceJSON struct {
	Asset   string `json:"asset"`
	Holder  string `json:"holder"`
	TokenID string `json:"tokenId"`
	Balance string `json:"balance"`
}

type approveParams struct {
	Asset   string `json:"asset"`
	Spender string `json:"spender"`
	TokenID string `json:"tokenId,omitempty"`
	Amount  string `json:"amount,omitempty"`
}

type approvalForAllParams struct {
	Asset    string `json:"asset"`
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

type assetTransferParams struct {
	Asset   string `json:"asset"`
	To      string `json:"to"`
	TokenID string `json:"tokenId,omitempty"`
	Amount  string `json:"amount,omitempty"`
	Data    string `json:"data,omitempty"`
}

func (s *Server) handleAssetList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	registered := s.node.Assets()
	out := make([]assetJSON, 0, len(registered))
	for addr, kind := range registered {
		out = append(out, assetJSON{Address: addr.Hex(), Kind: kind.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	writeResult(w, req.ID, out)
}

func (s *Server) handleAssetBalanceOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseOptionalAddress("asset", params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	holder, err := parseAddressParam("holder", params.Holder)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	tokenID, err := parseAmountParam("tokenId", params.TokenID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	balance, err := s.node.BalanceOf(asset, holder, tokenID)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceJSON{
		Asset:   asset.Hex(),
		Holder:  holder.Hex(),
		TokenID: formatBig(tokenID),
		Balance: formatBig(balance),
	})
}

func (s *Server) handleAssetApprove(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params approveParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddressParam("asset", params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	spender, err := parseAddressParam("spender", params.Spender)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	tokenID, err := parseAmountParam("tokenId", params.TokenID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	amount, err := parseAmountParam("amount", params.Amount)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.Approve(r.Context(), caller, asset, spender, tokenID, amount); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAssetSetApprovalForAll(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params approvalForAllParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddressParam("asset", params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	operator, err := parseAddressParam("operator", params.Operator)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.SetApprovalForAll(r.Context(), caller, asset, operator, params.Approved); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAssetTransfer(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params assetTransferParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseOptionalAddress("asset", params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	to, err := parseAddressParam("to", params.To)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	tokenID, err := parseAmountParam("tokenId", params.TokenID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	amount, err := parseAmountParam("amount", params.Amount)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	data, err := parseBytesParam("data", params.Data)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.Transfer(r.Context(), caller, asset, to, tokenID, amount, data); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}
