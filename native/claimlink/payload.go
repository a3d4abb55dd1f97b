package claimlink

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// AuthorizationKind selects how a gasless authorization is executed on the
// token.
type AuthorizationKind uint8

const (
	AuthorizationUnknown AuthorizationKind = iota
	AuthorizationReceive
	AuthorizationApprove
)

var (
	// SelectorReceive is the selector of receiveWithAuthorization.
	SelectorReceive = [4]byte{0xef, 0x55, 0xbe, 0xc6}
	// SelectorApprove is the selector of approveWithAuthorization.
	SelectorApprove = [4]byte{0xe1, 0x56, 0x0f, 0xd3}
)

// AuthorizationKindFromSelector maps a four byte selector to its kind.
func AuthorizationKindFromSelector(sel [4]byte) (AuthorizationKind, error) {
	switch sel {
	case SelectorReceive:
		return AuthorizationReceive, nil
	case SelectorApprove:
		return AuthorizationApprove, nil
	default:
		return AuthorizationUnknown, ErrUnknownSelector
	}
}

// Selector returns the four byte selector for the kind.
func (k AuthorizationKind) Selector() [4]byte {
	if k == AuthorizationApprove {
		return SelectorApprove
	}
	return SelectorReceive
}

// Authorization is a decoded EIP-3009 style authorization. From is the token
// holder and To the escrow.
type Authorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       [32]byte
	V           uint8
	R           [32]byte
	S           [32]byte
}

// Signature returns the 65 byte [R || S || V] form.
func (a Authorization) Signature() []byte {
	sig := make([]byte, 0, 65)
	sig = append(sig, a.R[:]...)
	sig = append(sig, a.S[:]...)
	return append(sig, a.V)
}

// SetSignature splits a 65 byte signature into V, R and S.
func (a *Authorization) SetSignature(sig []byte) error {
	if len(sig) != 65 {
		return fmt.Errorf("claimlink: signature must be 65 bytes, got %d", len(sig))
	}
	copy(a.R[:], sig[:32])
	copy(a.S[:], sig[32:64])
	a.V = sig[64]
	if a.V < 27 {
		a.V += 27
	}
	return nil
}

// HookPayload is the data attached to an inbound NFT safe transfer.
type HookPayload struct {
	TransferID       common.Address
	Expiration       uint64
	FeeAmount        *big.Int
	FeeAuthorization []byte
}

var (
	authorizationArgs abi.Arguments
	hookPayloadArgs   abi.Arguments
)

func init() {
	mustType := func(t string) abi.Type {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		return typ
	}
	address := mustType("address")
	uint256 := mustType("uint256")
	bytes32 := mustType("bytes32")
	authorizationArgs = abi.Arguments{
		{Type: address}, {Type: address},
		{Type: uint256}, {Type: uint256}, {Type: uint256},
		{Type: bytes32}, {Type: mustType("uint8")}, {Type: bytes32}, {Type: bytes32},
	}
	hookPayloadArgs = abi.Arguments{
		{Type: address}, {Type: mustType("uint120")}, {Type: mustType("uint128")}, {Type: mustType("bytes")},
	}
}

// EncodeAuthorization ABI-encodes the authorization tuple.
func EncodeAuthorization(a Authorization) ([]byte, error) {
	return authorizationArgs.Pack(
		a.From, a.To,
		cloneBigInt(a.Value), cloneBigInt(a.ValidAfter), cloneBigInt(a.ValidBefore),
		a.Nonce, a.V, a.R, a.S,
	)
}

// AuthorizationRecipient reads only the recipient word of an encoded
// authorization so a foreign recipient is reported before full decoding.
func AuthorizationRecipient(data []byte) (common.Address, error) {
	if len(data) < 2*wordWidth {
		return common.Address{}, ErrInvalidAuthorization
	}
	word := data[wordWidth : 2*wordWidth]
	if !bytes.Equal(word[:12], make([]byte, 12)) {
		return common.Address{}, ErrInvalidAuthorization
	}
	return common.BytesToAddress(word[12:]), nil
}

// DecodeAuthorization parses an ABI-encoded authorization tuple.
func DecodeAuthorization(data []byte) (Authorization, error) {
	values, err := authorizationArgs.Unpack(data)
	if err != nil {
		return Authorization{}, fmt.Errorf("%w: %v", ErrInvalidAuthorization, err)
	}
	if len(values) != len(authorizationArgs) {
		return Authorization{}, ErrInvalidAuthorization
	}
	var out Authorization
	var ok bool
	if out.From, ok = values[0].(common.Address); !ok {
		return Authorization{}, ErrInvalidAuthorization
	}
	if out.To, ok = values[1].(common.Address); !ok {
		return Authorization{}, ErrInvalidAuthorization
	}
	if out.Value, ok = values[2].(*big.Int); !ok {
		return Authorization{}, ErrInvalidAuthorization
	}
	if out.ValidAfter, ok = values[3].(*big.Int); !ok {
		return Authorization{}, ErrInvalidAuthorization
	}
	if out.ValidBefore, ok = values[4].(*big.Int); !ok {
		return Authorization{}, ErrInvalidAuthorization
	}
	if out.Nonce, ok = values[5].([32]byte); !ok {
		return Authorization{}, ErrInvalidAuthorization
	}
	if out.V, ok = values[6].(uint8); !ok {
		return Authorization{}, ErrInvalidAuthorization
	}
	if out.R, ok = values[7].([32]byte); !ok {
		return Authorization{}, ErrInvalidAuthorization
	}
	if out.S, ok = values[8].([32]byte); !ok {
		return Authorization{}, ErrInvalidAuthorization
	}
	return out, nil
}

// EncodeHookPayload ABI-encodes the receive-hook payload.
func EncodeHookPayload(p HookPayload) ([]byte, error) {
	feeAuth := p.FeeAuthorization
	if feeAuth == nil {
		feeAuth = []byte{}
	}
	return hookPayloadArgs.Pack(p.TransferID, new(big.Int).SetUint64(p.Expiration), cloneBigInt(p.FeeAmount), feeAuth)
}

// DecodeHookPayload parses the receive-hook payload. Malformed input wraps
// ErrInvalidHookPayload; expirations beyond 64 bits are ErrValueOverflow.
func DecodeHookPayload(data []byte) (HookPayload, error) {
	values, err := hookPayloadArgs.Unpack(data)
	if err != nil {
		return HookPayload{}, fmt.Errorf("%w: %v", ErrInvalidHookPayload, err)
	}
	if len(values) != len(hookPayloadArgs) {
		return HookPayload{}, fmt.Errorf("%w: unexpected arity %d", ErrInvalidHookPayload, len(values))
	}
	transferID, ok := values[0].(common.Address)
	if !ok {
		return HookPayload{}, fmt.Errorf("%w: transfer id", ErrInvalidHookPayload)
	}
	expiration, ok := values[1].(*big.Int)
	if !ok {
		return HookPayload{}, fmt.Errorf("%w: expiration", ErrInvalidHookPayload)
	}
	if !expiration.IsUint64() {
		return HookPayload{}, ErrValueOverflow
	}
	fee, ok := values[2].(*big.Int)
	if !ok {
		return HookPayload{}, fmt.Errorf("%w: fee", ErrInvalidHookPayload)
	}
	feeAuth, ok := values[3].([]byte)
	if !ok {
		return HookPayload{}, fmt.Errorf("%w: fee authorization", ErrInvalidHookPayload)
	}
	return HookPayload{
		TransferID:       transferID,
		Expiration:       expiration.Uint64(),
		FeeAmount:        fee,
		FeeAuthorization: feeAuth,
	}, nil
}
