package claimlink

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the asset address used for the chain's native value. The same
// address denominates native fees in the fee ledger.
var NativeAsset = common.Address{}

// AssetKind enumerates the asset families the escrow can hold.
type AssetKind uint8

const (
	KindUnknown AssetKind = iota
	KindNative
	KindFungible
	KindSingleNFT
	KindMultiToken
)

func (k AssetKind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindFungible:
		return "fungible"
	case KindSingleNFT:
		return "erc721"
	case KindMultiToken:
		return "erc1155"
	default:
		return "unknown"
	}
}

// ParseAssetKind accepts the String() forms.
func ParseAssetKind(s string) AssetKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native":
		return KindNative
	case "fungible", "erc20":
		return KindFungible
	case "erc721", "nft":
		return KindSingleNFT
	case "erc1155", "multitoken":
		return KindMultiToken
	default:
		return KindUnknown
	}
}

// IsNFT reports whether the kind is addressed by token identifier.
func (k AssetKind) IsNFT() bool {
	return k == KindSingleNFT || k == KindMultiToken
}

// Deposit is the escrowed record keyed by (Asset, Sender, TransferID). A zero
// Amount means no live deposit exists under the key.
type Deposit struct {
	Asset      common.Address
	Sender     common.Address
	TransferID common.Address
	TokenID    *big.Int
	Amount     *big.Int
	Expiration uint64
}

// Live reports whether the record holds an unclaimed deposit.
func (d *Deposit) Live() bool {
	return d != nil && d.Amount != nil && d.Amount.Sign() > 0
}

// Clone returns a deep copy of the deposit.
func (d *Deposit) Clone() *Deposit {
	if d == nil {
		return nil
	}
	out := *d
	out.TokenID = cloneBigInt(d.TokenID)
	out.Amount = cloneBigInt(d.Amount)
	return &out
}

// EmptyDeposit returns the zero record for a key.
func EmptyDeposit(asset, sender, transferID common.Address) *Deposit {
	return &Deposit{
		Asset:      asset,
		Sender:     sender,
		TransferID: transferID,
		TokenID:    big.NewInt(0),
		Amount:     big.NewInt(0),
	}
}

// Call carries the caller identity and the native value attached to an
// escrow entry point.
type Call struct {
	Caller common.Address
	Value  *big.Int
}

func (c Call) value() *big.Int {
	if c.Value == nil {
		return big.NewInt(0)
	}
	return c.Value
}

// DepositRequest describes a fungible or native deposit made by the caller.
type DepositRequest struct {
	Asset      common.Address
	TransferID common.Address
	Amount     *big.Int
	Expiration uint64
	// FeeAsset is either Asset (fee netted from Amount) or NativeAsset (fee
	// paid alongside as call value).
	FeeAsset         common.Address
	FeeAmount        *big.Int
	FeeAuthorization []byte
	Message          []byte
}

// NFTDepositRequest describes a single-NFT or multi-token deposit. Fees are
// native and paid as call value.
type NFTDepositRequest struct {
	Asset            common.Address
	TransferID       common.Address
	TokenID          *big.Int
	Amount           *big.Int
	Expiration       uint64
	FeeAmount        *big.Int
	FeeAuthorization []byte
	Message          []byte
}

// AuthorizedDepositRequest describes a gasless deposit submitted by the
// relayer on behalf of the signer of Authorization.
type AuthorizedDepositRequest struct {
	Asset         common.Address
	TransferID    common.Address
	Expiration    uint64
	Selector      [4]byte
	FeeAmount     *big.Int
	Authorization []byte
	Message       []byte
}

// RedeemRequest redeems with the receiver signature produced by the original
// link key.
type RedeemRequest struct {
	Receiver    common.Address
	Sender      common.Address
	Asset       common.Address
	ReceiverSig []byte
}

// RecoveredRedeemRequest redeems with a replacement link key authorized by the
// sender's re-key proof.
type RecoveredRedeemRequest struct {
	Receiver    common.Address
	Sender      common.Address
	Asset       common.Address
	TransferID  common.Address
	ReceiverSig []byte
	SenderSig   []byte
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
