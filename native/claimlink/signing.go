package claimlink

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"claimlink/crypto"

	"github.com/ethereum/go-ethereum/common"
)

// SignReceiver produces the receiver signature a link key holder submits to
// redeem to receiver.
func SignReceiver(linkKey *ecdsa.PrivateKey, receiver common.Address) ([]byte, error) {
	return crypto.SignPersonal(linkKey, ReceiverMessage(receiver))
}

// SignFeeAuthorization produces the relayer signature over q.
func SignFeeAuthorization(relayer *ecdsa.PrivateKey, q FeeQuote) ([]byte, error) {
	msg, err := FeeAuthorizationMessage(q)
	if err != nil {
		return nil, err
	}
	return crypto.SignPersonal(relayer, msg)
}

// SignTransfer produces the sender's re-key proof authorizing linkKeyID.
func SignTransfer(sender *ecdsa.PrivateKey, domain Domain, linkKeyID, transferID common.Address) ([]byte, error) {
	return crypto.SignTypedData(sender, TransferTypedData(domain, linkKeyID, transferID))
}

// AuthorizationParams are the inputs of a gasless deposit authorization.
type AuthorizationParams struct {
	Kind        AuthorizationKind
	TokenDomain Domain
	Escrow      common.Address
	TransferID  common.Address
	Value       *big.Int
	Expiration  uint64
	Fee         *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
}

// SignAuthorization builds and signs a gasless authorization for holder and
// returns its ABI encoding, ready to submit with the matching selector.
func SignAuthorization(holder *ecdsa.PrivateKey, p AuthorizationParams) ([]byte, error) {
	if holder == nil {
		return nil, errors.New("claimlink: nil authorization signer")
	}
	from := (&crypto.PrivateKey{PrivateKey: holder}).Address()
	auth := Authorization{
		From:        from,
		To:          p.Escrow,
		Value:       cloneBigInt(p.Value),
		ValidAfter:  cloneBigInt(p.ValidAfter),
		ValidBefore: cloneBigInt(p.ValidBefore),
		Nonce:       AuthorizationNonce(from, p.TransferID, p.Value, p.Expiration, p.Fee),
	}
	typed, err := AuthorizationTypedData(p.Kind, p.TokenDomain, auth)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.SignTypedData(holder, typed)
	if err != nil {
		return nil, err
	}
	if err := auth.SetSignature(sig); err != nil {
		return nil, err
	}
	return EncodeAuthorization(auth)
}
