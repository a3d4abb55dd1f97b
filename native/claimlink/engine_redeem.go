package claimlink

import (
	"claimlink/core/events"

	"github.com/ethereum/go-ethereum/common"
)

// Redeem releases a deposit to req.Receiver. The transfer id is the signer of
// the receiver signature, so only the holder of the original link key can
// produce a redeemable request. Relayer only.
func (e *Engine) Redeem(call Call, req RedeemRequest) error {
	return e.execute(func() error {
		if err := e.requireRelayer(call); err != nil {
			return err
		}
		if req.Receiver == (common.Address{}) {
			return ErrZeroAddress
		}
		transferID, ok := e.verifier.RecoverHash(ReceiverMessage(req.Receiver), req.ReceiverSig)
		if !ok {
			return ErrInvalidReceiverSignature
		}
		return e.release(req.Asset, req.Sender, transferID, req.Receiver, false)
	})
}

// RedeemRecovered releases a deposit using a replacement link key. The
// receiver signature names the replacement key; the sender signature is the
// re-key proof binding that key to req.TransferID. Relayer only.
func (e *Engine) RedeemRecovered(call Call, req RecoveredRedeemRequest) error {
	return e.execute(func() error {
		if err := e.requireRelayer(call); err != nil {
			return err
		}
		if req.Receiver == (common.Address{}) {
			return ErrZeroAddress
		}
		linkKeyID, ok := e.verifier.RecoverHash(ReceiverMessage(req.Receiver), req.ReceiverSig)
		if !ok {
			return ErrInvalidReceiverSignature
		}
		typed := TransferTypedData(e.domain, linkKeyID, req.TransferID)
		if !e.verifier.VerifyStructured(typed, req.SenderSig, req.Sender) {
			return ErrInvalidSenderSignature
		}
		return e.release(req.Asset, req.Sender, req.TransferID, req.Receiver, true)
	})
}

func (e *Engine) release(asset, sender, transferID, receiver common.Address, recovered bool) error {
	deposit, err := e.state.DepositGet(asset, sender, transferID)
	if err != nil {
		return err
	}
	if !deposit.Live() {
		return ErrDepositNotFound
	}
	now := e.now()
	if now >= 0 && uint64(now) >= deposit.Expiration {
		return ErrDepositExpired
	}
	backend, err := e.backend(asset)
	if err != nil {
		return err
	}
	if err := e.state.DepositClear(asset, sender, transferID); err != nil {
		return err
	}
	if err := push(backend, receiver, deposit.TokenID, deposit.Amount); err != nil {
		return err
	}
	e.queue(events.Redeemed{
		Asset:      asset,
		Sender:     sender,
		Receiver:   receiver,
		TransferID: transferID,
		TokenID:    cloneBigInt(deposit.TokenID),
		Amount:     cloneBigInt(deposit.Amount),
		Recovered:  recovered,
	})
	return nil
}

// Refund returns an expired deposit to its sender. Relayer only. Fees already
// credited for the deposit are not returned.
func (e *Engine) Refund(call Call, sender, asset, transferID common.Address) error {
	return e.execute(func() error {
		if err := e.requireRelayer(call); err != nil {
			return err
		}
		deposit, err := e.state.DepositGet(asset, sender, transferID)
		if err != nil {
			return err
		}
		if !deposit.Live() {
			return ErrDepositNotFound
		}
		now := e.now()
		if now < 0 || uint64(now) < deposit.Expiration {
			return ErrNotYetExpired
		}
		backend, err := e.backend(asset)
		if err != nil {
			return err
		}
		if err := e.state.DepositClear(asset, sender, transferID); err != nil {
			return err
		}
		if err := push(backend, sender, deposit.TokenID, deposit.Amount); err != nil {
			return err
		}
		e.queue(events.Refunded{
			Asset:      asset,
			Sender:     sender,
			TransferID: transferID,
			TokenID:    cloneBigInt(deposit.TokenID),
			Amount:     cloneBigInt(deposit.Amount),
		})
		return nil
	})
}
