package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"claimlink/native/claimlink"
)

// ErrFeeNotQuoted is returned when the schedule has no fee for the requested
// fee asset.
var ErrFeeNotQuoted = errors.New("core: no fee configured for asset")

// FeeSchedule is the relayer's quoting policy. Sponsored quotes a zero fee for
// every deposit; otherwise Flat holds the fee per fee asset.
type FeeSchedule struct {
	Sponsored bool
	Flat      map[common.Address]*big.Int
}

func (s FeeSchedule) clone() FeeSchedule {
	out := FeeSchedule{Sponsored: s.Sponsored, Flat: make(map[common.Address]*big.Int, len(s.Flat))}
	for asset, amount := range s.Flat {
		if amount != nil {
			out.Flat[asset] = new(big.Int).Set(amount)
		}
	}
	return out
}

func (s FeeSchedule) feeFor(feeAsset common.Address) (*big.Int, error) {
	if s.Sponsored {
		return big.NewInt(0), nil
	}
	fee, ok := s.Flat[feeAsset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeeNotQuoted, feeAsset.Hex())
	}
	return new(big.Int).Set(fee), nil
}

// QuoteRequest describes the deposit a sender wants a fee authorization for.
type QuoteRequest struct {
	Sender     common.Address
	Asset      common.Address
	TransferID common.Address
	TokenID    *big.Int
	Amount     *big.Int
	Expiration uint64
	FeeAsset   common.Address
}

// Quote is a fee authorization signed by the relayer.
type Quote struct {
	claimlink.FeeQuote
	Signature []byte
}

// QuoteFee prices a deposit from the fee schedule and signs the resulting fee
// authorization with the relayer key. NFT deposits always pay in native.
func (n *Node) QuoteFee(req QuoteRequest) (*Quote, error) {
	backend, err := n.assets.Backend(req.Asset)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", claimlink.ErrUnsupportedAsset, req.Asset.Hex())
	}
	kind := backend.Kind()
	if req.TransferID == (common.Address{}) || req.Sender == (common.Address{}) {
		return nil, claimlink.ErrZeroAddress
	}
	amount := req.Amount
	if kind == claimlink.KindSingleNFT && (amount == nil || amount.Sign() == 0) {
		amount = big.NewInt(1)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, claimlink.ErrInvalidAmount
	}
	switch {
	case kind.IsNFT(), kind == claimlink.KindNative:
		if req.FeeAsset != claimlink.NativeAsset {
			return nil, claimlink.ErrInvalidFeeAsset
		}
	case req.FeeAsset != req.Asset && req.FeeAsset != claimlink.NativeAsset:
		return nil, claimlink.ErrInvalidFeeAsset
	}

	fee, err := n.fees.feeFor(req.FeeAsset)
	if err != nil {
		return nil, err
	}
	// Fees netted from the deposit must leave something to claim.
	if !kind.IsNFT() && req.FeeAsset == req.Asset && fee.Cmp(amount) >= 0 {
		return nil, claimlink.ErrFeeExceedsAmount
	}

	tokenID := big.NewInt(0)
	if kind.IsNFT() && req.TokenID != nil {
		tokenID = new(big.Int).Set(req.TokenID)
	}
	quote := claimlink.FeeQuote{
		Sender:     req.Sender,
		Asset:      req.Asset,
		TransferID: req.TransferID,
		TokenID:    tokenID,
		Amount:     new(big.Int).Set(amount),
		Expiration: req.Expiration,
		FeeAsset:   req.FeeAsset,
		FeeAmount:  fee,
	}
	sig, err := claimlink.SignFeeAuthorization(n.relayer.PrivateKey, quote)
	if err != nil {
		return nil, err
	}
	return &Quote{FeeQuote: quote, Signature: sig}, nil
}
