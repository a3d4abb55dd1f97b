package claimlink

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	// DefaultDomainName is the EIP-712 domain name for re-key proofs.
	DefaultDomainName = "LinkdropEscrow"
	// DefaultDomainVersion is the EIP-712 domain version for re-key proofs.
	DefaultDomainVersion = "3.2"
)

// Field widths of the packed fee authorization, in bytes.
const (
	amountWidth     = 16
	expirationWidth = 15
	feeWidth        = 16
	wordWidth       = 32
)

var (
	maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 8*amountWidth), big.NewInt(1))
	maxWord   = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 8*wordWidth), big.NewInt(1))
)

// Domain is the EIP-712 domain separator input.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

func (d Domain) typed() apitypes.TypedDataDomain {
	chainID := bigOrZero(d.ChainID)
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
}

var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// FeeQuote is the tuple a relayer signs to authorize a deposit fee.
type FeeQuote struct {
	Sender     common.Address
	Asset      common.Address
	TransferID common.Address
	TokenID    *big.Int
	Amount     *big.Int
	Expiration uint64
	FeeAsset   common.Address
	FeeAmount  *big.Int
}

// ReceiverMessage returns the raw message a link key signs to name the
// receiver: keccak256 of the 20 address bytes.
func ReceiverMessage(receiver common.Address) []byte {
	return ethcrypto.Keccak256(receiver.Bytes())
}

// FeeAuthorizationMessage returns the raw message the relayer signs for q:
// keccak256 over the tightly packed fields.
func FeeAuthorizationMessage(q FeeQuote) ([]byte, error) {
	if err := checkWidth(q.Amount, maxAmount); err != nil {
		return nil, err
	}
	if err := checkWidth(q.FeeAmount, maxAmount); err != nil {
		return nil, err
	}
	if err := checkWidth(q.TokenID, maxWord); err != nil {
		return nil, err
	}
	packed := make([]byte, 0, 3*common.AddressLength+wordWidth+amountWidth+expirationWidth+common.AddressLength+feeWidth)
	packed = append(packed, q.Sender.Bytes()...)
	packed = append(packed, q.Asset.Bytes()...)
	packed = append(packed, q.TransferID.Bytes()...)
	packed = append(packed, common.LeftPadBytes(bigOrZero(q.TokenID).Bytes(), wordWidth)...)
	packed = append(packed, common.LeftPadBytes(bigOrZero(q.Amount).Bytes(), amountWidth)...)
	packed = append(packed, common.LeftPadBytes(new(big.Int).SetUint64(q.Expiration).Bytes(), expirationWidth)...)
	packed = append(packed, q.FeeAsset.Bytes()...)
	packed = append(packed, common.LeftPadBytes(bigOrZero(q.FeeAmount).Bytes(), feeWidth)...)
	return ethcrypto.Keccak256(packed), nil
}

// TransferTypedData builds the re-key proof a sender signs to authorize
// linkKeyID to redeem the deposit under transferID.
func TransferTypedData(domain Domain, linkKeyID, transferID common.Address) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainFields,
			"Transfer": {
				{Name: "linkKeyId", Type: "address"},
				{Name: "transferId", Type: "address"},
			},
		},
		PrimaryType: "Transfer",
		Domain:      domain.typed(),
		Message: apitypes.TypedDataMessage{
			"linkKeyId":  linkKeyID.Hex(),
			"transferId": transferID.Hex(),
		},
	}
}

// AuthorizationNonce derives the EIP-3009 nonce that binds a gasless
// authorization to its deposit parameters.
func AuthorizationNonce(from, transferID common.Address, value *big.Int, expiration uint64, fee *big.Int) [32]byte {
	packed := make([]byte, 0, 2*common.AddressLength+wordWidth+expirationWidth+feeWidth)
	packed = append(packed, from.Bytes()...)
	packed = append(packed, transferID.Bytes()...)
	packed = append(packed, common.LeftPadBytes(bigOrZero(value).Bytes(), wordWidth)...)
	packed = append(packed, common.LeftPadBytes(new(big.Int).SetUint64(expiration).Bytes(), expirationWidth)...)
	packed = append(packed, common.LeftPadBytes(bigOrZero(fee).Bytes(), feeWidth)...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(packed))
	return out
}

// AuthorizationTypedData builds the token-side EIP-712 message for a gasless
// authorization. tokenDomain must name the token contract as verifier.
func AuthorizationTypedData(kind AuthorizationKind, tokenDomain Domain, auth Authorization) (apitypes.TypedData, error) {
	var (
		primary string
		holder  string
		target  string
	)
	switch kind {
	case AuthorizationReceive:
		primary, holder, target = "ReceiveWithAuthorization", "from", "to"
	case AuthorizationApprove:
		primary, holder, target = "ApproveWithAuthorization", "owner", "spender"
	default:
		return apitypes.TypedData{}, ErrUnknownSelector
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainFields,
			primary: {
				{Name: holder, Type: "address"},
				{Name: target, Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: primary,
		Domain:      tokenDomain.typed(),
		Message: apitypes.TypedDataMessage{
			holder:        auth.From.Hex(),
			target:        auth.To.Hex(),
			"value":       cloneBigInt(auth.Value),
			"validAfter":  cloneBigInt(auth.ValidAfter),
			"validBefore": cloneBigInt(auth.ValidBefore),
			"nonce":       auth.Nonce[:],
		},
	}, nil
}

func checkWidth(v, max *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 || v.Cmp(max) > 0 {
		return ErrValueOverflow
	}
	return nil
}
