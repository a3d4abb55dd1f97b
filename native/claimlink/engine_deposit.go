package claimlink

import (
	"math/big"

	"claimlink/core/events"

	"github.com/ethereum/go-ethereum/common"
)

// Deposit locks a native or fungible amount from the caller under
// req.TransferID. A fee in the deposited asset is netted from the amount; a
// native fee on a fungible deposit is paid as call value.
func (e *Engine) Deposit(call Call, req DepositRequest) error {
	return e.execute(func() error { return e.deposit(call, req) })
}

func (e *Engine) deposit(call Call, req DepositRequest) error {
	backend, err := e.backend(req.Asset)
	if err != nil {
		return err
	}
	kind := backend.Kind()
	if kind != KindNative && kind != KindFungible {
		return ErrAssetKind
	}
	if req.TransferID == (common.Address{}) {
		return ErrZeroAddress
	}
	amount := bigOrZero(req.Amount)
	fee := bigOrZero(req.FeeAmount)
	if amount.Sign() <= 0 || fee.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := checkWidth(amount, maxAmount); err != nil {
		return err
	}
	if err := checkWidth(fee, maxAmount); err != nil {
		return err
	}
	if err := e.checkExpiration(req.Expiration); err != nil {
		return err
	}
	sender := call.Caller
	quote := FeeQuote{
		Sender:     sender,
		Asset:      req.Asset,
		TransferID: req.TransferID,
		TokenID:    big.NewInt(0),
		Amount:     amount,
		Expiration: req.Expiration,
		FeeAsset:   req.FeeAsset,
		FeeAmount:  fee,
	}
	if err := e.verifyFeeAuthorization(quote, req.FeeAuthorization); err != nil {
		return err
	}

	value := call.value()
	net := new(big.Int).Set(amount)
	switch {
	case kind == KindNative:
		if req.FeeAsset != NativeAsset {
			return ErrInvalidFeeAsset
		}
		if value.Cmp(amount) != 0 {
			return ErrValueMismatch
		}
		net.Sub(net, fee)
	case req.FeeAsset == req.Asset:
		if value.Sign() != 0 {
			return ErrValueMismatch
		}
		net.Sub(net, fee)
	case req.FeeAsset == NativeAsset:
		if value.Cmp(fee) != 0 {
			return ErrValueMismatch
		}
	default:
		return ErrInvalidFeeAsset
	}
	if net.Sign() < 0 {
		return ErrFeeExceedsAmount
	}
	if net.Sign() == 0 {
		return ErrInvalidAmount
	}

	record := &Deposit{
		Asset:      req.Asset,
		Sender:     sender,
		TransferID: req.TransferID,
		TokenID:    big.NewInt(0),
		Amount:     net,
		Expiration: req.Expiration,
	}
	if err := e.state.DepositPut(record); err != nil {
		return err
	}
	if err := e.creditFee(req.FeeAsset, fee); err != nil {
		return err
	}

	if value.Sign() > 0 {
		native, err := e.backend(NativeAsset)
		if err != nil {
			return err
		}
		if err := pull(native, sender, big.NewInt(0), value); err != nil {
			return err
		}
	}
	if kind == KindFungible {
		if err := pull(backend, sender, big.NewInt(0), amount); err != nil {
			return err
		}
	}
	e.queueDeposit(kind, record, req.FeeAsset, fee, req.Message)
	return nil
}

// DepositNFT locks a single NFT or a multi-token quantity from the caller.
// The fee is native and attached as call value on top of the asset.
func (e *Engine) DepositNFT(call Call, req NFTDepositRequest) error {
	return e.execute(func() error { return e.depositNFT(call, req) })
}

func (e *Engine) depositNFT(call Call, req NFTDepositRequest) error {
	backend, err := e.backend(req.Asset)
	if err != nil {
		return err
	}
	kind := backend.Kind()
	if !kind.IsNFT() {
		return ErrAssetKind
	}
	if req.TransferID == (common.Address{}) {
		return ErrZeroAddress
	}
	tokenID := bigOrZero(req.TokenID)
	amount, err := nftAmount(kind, req.Amount)
	if err != nil {
		return err
	}
	if err := checkWidth(tokenID, maxWord); err != nil {
		return err
	}
	fee := bigOrZero(req.FeeAmount)
	if fee.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := checkWidth(fee, maxAmount); err != nil {
		return err
	}
	if err := e.checkExpiration(req.Expiration); err != nil {
		return err
	}
	sender := call.Caller
	quote := FeeQuote{
		Sender:     sender,
		Asset:      req.Asset,
		TransferID: req.TransferID,
		TokenID:    tokenID,
		Amount:     amount,
		Expiration: req.Expiration,
		FeeAsset:   NativeAsset,
		FeeAmount:  fee,
	}
	if err := e.verifyFeeAuthorization(quote, req.FeeAuthorization); err != nil {
		return err
	}
	value := call.value()
	if value.Cmp(fee) != 0 {
		return ErrValueMismatch
	}

	record := &Deposit{
		Asset:      req.Asset,
		Sender:     sender,
		TransferID: req.TransferID,
		TokenID:    new(big.Int).Set(tokenID),
		Amount:     amount,
		Expiration: req.Expiration,
	}
	if err := e.state.DepositPut(record); err != nil {
		return err
	}
	if err := e.creditFee(NativeAsset, fee); err != nil {
		return err
	}

	if value.Sign() > 0 {
		native, err := e.backend(NativeAsset)
		if err != nil {
			return err
		}
		if err := pull(native, sender, big.NewInt(0), value); err != nil {
			return err
		}
	}
	if err := pull(backend, sender, tokenID, amount); err != nil {
		return err
	}
	e.queueDeposit(kind, record, NativeAsset, fee, req.Message)
	return nil
}

// OnERC721Received records a deposit for an NFT delivered to the escrow by a
// safe transfer. data carries the hook payload; from becomes the sender.
// Returning an error rejects the inbound transfer.
func (e *Engine) OnERC721Received(asset, operator, from common.Address, tokenID *big.Int, data []byte) error {
	return e.execute(func() error {
		return e.onReceived(KindSingleNFT, asset, from, tokenID, big.NewInt(1), data)
	})
}

// OnERC1155Received is the multi-token counterpart of OnERC721Received.
func (e *Engine) OnERC1155Received(asset, operator, from common.Address, id, value *big.Int, data []byte) error {
	return e.execute(func() error {
		return e.onReceived(KindMultiToken, asset, from, id, value, data)
	})
}

// OnERC1155BatchReceived rejects batch deliveries: one transfer id cannot
// cover several token ids.
func (e *Engine) OnERC1155BatchReceived(asset, operator, from common.Address, ids, values []*big.Int, data []byte) error {
	return ErrBatchUnsupported
}

func (e *Engine) onReceived(want AssetKind, asset, from common.Address, tokenID, amount *big.Int, data []byte) error {
	backend, err := e.backend(asset)
	if err != nil {
		return err
	}
	if backend.Kind() != want {
		return ErrAssetKind
	}
	payload, err := DecodeHookPayload(data)
	if err != nil {
		return err
	}
	if payload.TransferID == (common.Address{}) {
		return ErrZeroAddress
	}
	fee := bigOrZero(payload.FeeAmount)
	if fee.Sign() != 0 {
		return ErrFeeNotAllowed
	}
	tokenID = bigOrZero(tokenID)
	amount, err = nftAmount(want, amount)
	if err != nil {
		return err
	}
	if err := e.checkExpiration(payload.Expiration); err != nil {
		return err
	}
	quote := FeeQuote{
		Sender:     from,
		Asset:      asset,
		TransferID: payload.TransferID,
		TokenID:    tokenID,
		Amount:     amount,
		Expiration: payload.Expiration,
		FeeAsset:   NativeAsset,
		FeeAmount:  fee,
	}
	if err := e.verifyFeeAuthorization(quote, payload.FeeAuthorization); err != nil {
		return err
	}
	record := &Deposit{
		Asset:      asset,
		Sender:     from,
		TransferID: payload.TransferID,
		TokenID:    new(big.Int).Set(tokenID),
		Amount:     amount,
		Expiration: payload.Expiration,
	}
	if err := e.state.DepositPut(record); err != nil {
		return err
	}
	e.queueDeposit(want, record, NativeAsset, fee, nil)
	return nil
}

// DepositWithAuthorization executes a gasless deposit on behalf of the signer
// of req.Authorization. Only the relayer may submit it. The fee is netted from
// the authorized value and credited in the deposited asset.
func (e *Engine) DepositWithAuthorization(call Call, req AuthorizedDepositRequest) error {
	return e.execute(func() error { return e.depositWithAuthorization(call, req) })
}

func (e *Engine) depositWithAuthorization(call Call, req AuthorizedDepositRequest) error {
	if err := e.requireRelayer(call); err != nil {
		return err
	}
	if call.value().Sign() != 0 {
		return ErrValueMismatch
	}
	backend, err := e.backend(req.Asset)
	if err != nil {
		return err
	}
	authBackend, ok := backend.(AuthorizationBackend)
	if !ok || backend.Kind() != KindFungible {
		return ErrAssetKind
	}
	kind, err := AuthorizationKindFromSelector(req.Selector)
	if err != nil {
		return err
	}
	recipient, err := AuthorizationRecipient(req.Authorization)
	if err != nil {
		return err
	}
	if recipient != e.address {
		return ErrAuthorizationRecipient
	}
	auth, err := DecodeAuthorization(req.Authorization)
	if err != nil {
		return err
	}
	if req.TransferID == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := e.checkExpiration(req.Expiration); err != nil {
		return err
	}
	amount := bigOrZero(auth.Value)
	fee := bigOrZero(req.FeeAmount)
	if amount.Sign() <= 0 || fee.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := checkWidth(amount, maxAmount); err != nil {
		return err
	}
	if err := checkWidth(fee, maxAmount); err != nil {
		return err
	}
	if AuthorizationNonce(auth.From, req.TransferID, amount, req.Expiration, fee) != auth.Nonce {
		return ErrAuthorizationNonce
	}
	net := new(big.Int).Sub(amount, fee)
	if net.Sign() < 0 {
		return ErrFeeExceedsAmount
	}
	if net.Sign() == 0 {
		return ErrInvalidAmount
	}

	record := &Deposit{
		Asset:      req.Asset,
		Sender:     auth.From,
		TransferID: req.TransferID,
		TokenID:    big.NewInt(0),
		Amount:     net,
		Expiration: req.Expiration,
	}
	if err := e.state.DepositPut(record); err != nil {
		return err
	}
	if err := e.creditFee(req.Asset, fee); err != nil {
		return err
	}

	switch kind {
	case AuthorizationReceive:
		if err := authBackend.ReceiveWithAuthorization(auth); err != nil {
			return errWrapTransfer(err)
		}
	case AuthorizationApprove:
		if err := authBackend.ApproveWithAuthorization(auth); err != nil {
			return errWrapTransfer(err)
		}
		if err := pull(backend, auth.From, big.NewInt(0), amount); err != nil {
			return err
		}
	}
	e.queueDeposit(KindFungible, record, req.Asset, fee, req.Message)
	return nil
}

func (e *Engine) creditFee(denom common.Address, fee *big.Int) error {
	if fee == nil || fee.Sign() == 0 {
		return nil
	}
	return e.state.FeeCredit(denom, fee)
}

func (e *Engine) queueDeposit(kind AssetKind, d *Deposit, feeAsset common.Address, fee *big.Int, message []byte) {
	e.queue(events.DepositCreated{
		Asset:      d.Asset,
		Kind:       kind.String(),
		Sender:     d.Sender,
		TransferID: d.TransferID,
		TokenID:    cloneBigInt(d.TokenID),
		Amount:     cloneBigInt(d.Amount),
		Expiration: d.Expiration,
		FeeAsset:   feeAsset,
		FeeAmount:  cloneBigInt(fee),
	})
	if len(message) > 0 {
		e.queue(events.SenderMessage{
			Sender:     d.Sender,
			TransferID: d.TransferID,
			Message:    append([]byte(nil), message...),
		})
	}
}

func nftAmount(kind AssetKind, amount *big.Int) (*big.Int, error) {
	if kind == KindSingleNFT {
		if amount != nil && amount.Sign() != 0 && amount.Cmp(big.NewInt(1)) != 0 {
			return nil, ErrInvalidAmount
		}
		return big.NewInt(1), nil
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := checkWidth(amount, maxAmount); err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}
