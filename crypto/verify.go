package crypto

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// SignatureLength is the length of an [R || S || V] recoverable signature.
const SignatureLength = 65

// PersonalHash applies the "\x19Ethereum Signed Message:\n<len>" prefix to
// the raw message and hashes the result.
func PersonalHash(message []byte) []byte {
	return accounts.TextHash(message)
}

// TypedDataHash returns the EIP-712 digest of the typed data.
func TypedDataHash(typed apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, err
	}
	return digest, nil
}

// normalizeSignature accepts V in {0,1,27,28} and rejects malleable high-s
// signatures.
func normalizeSignature(sig []byte) ([]byte, bool) {
	if len(sig) != SignatureLength {
		return nil, false
	}
	out := make([]byte, SignatureLength)
	copy(out, sig)
	if out[64] >= 27 {
		out[64] -= 27
	}
	if out[64] > 1 {
		return nil, false
	}
	r := new(big.Int).SetBytes(out[:32])
	s := new(big.Int).SetBytes(out[32:64])
	if !ethcrypto.ValidateSignatureValues(out[64], r, s, true) {
		return nil, false
	}
	return out, true
}

// RecoverDigest returns the address that produced sig over the 32-byte digest.
func RecoverDigest(digest, sig []byte) (common.Address, bool) {
	if len(digest) != 32 {
		return common.Address{}, false
	}
	normalized, ok := normalizeSignature(sig)
	if !ok {
		return common.Address{}, false
	}
	pub, err := ethcrypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, false
	}
	return ethcrypto.PubkeyToAddress(*pub), true
}

// Verifier checks personal-message and EIP-712 signatures. The zero value is
// ready to use.
type Verifier struct{}

// VerifyStructured reports whether sig is expected's signature over the
// EIP-712 digest of typed.
func (Verifier) VerifyStructured(typed apitypes.TypedData, sig []byte, expected common.Address) bool {
	if expected == (common.Address{}) {
		return false
	}
	digest, err := TypedDataHash(typed)
	if err != nil {
		return false
	}
	signer, ok := RecoverDigest(digest, sig)
	return ok && signer == expected
}

// VerifyHash reports whether sig is expected's personal-message signature
// over raw.
func (v Verifier) VerifyHash(raw, sig []byte, expected common.Address) bool {
	if expected == (common.Address{}) {
		return false
	}
	signer, ok := v.RecoverHash(raw, sig)
	return ok && signer == expected
}

// RecoverHash returns the signer of a personal-message signature over raw.
func (Verifier) RecoverHash(raw, sig []byte) (common.Address, bool) {
	return RecoverDigest(PersonalHash(raw), sig)
}

// SignPersonal produces a personal-message signature over raw with V in
// {27,28}, matching wallet output.
func SignPersonal(key *ecdsa.PrivateKey, raw []byte) ([]byte, error) {
	if key == nil {
		return nil, errors.New("crypto: nil signing key")
	}
	sig, err := ethcrypto.Sign(PersonalHash(raw), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// SignTypedData produces an EIP-712 signature over typed with V in {27,28}.
func SignTypedData(key *ecdsa.PrivateKey, typed apitypes.TypedData) ([]byte, error) {
	if key == nil {
		return nil, errors.New("crypto: nil signing key")
	}
	digest, err := TypedDataHash(typed)
	if err != nil {
		return nil, err
	}
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}
