package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"claimlink/core/types"

	"github.com/ethereum/go-ethereum/common"
)

const (
	TypeDepositCreated       = "claimlink.deposit.created"
	TypeSenderMessage        = "claimlink.sender.message"
	TypeRedeemed             = "claimlink.redeemed"
	TypeRefunded             = "claimlink.refunded"
	TypeFeesWithdrawn        = "claimlink.fees.withdrawn"
	TypeOwnershipTransferred = "claimlink.ownership.transferred"
)

type DepositCreated struct {
	Asset      common.Address
	Kind       string
	Sender     common.Address
	TransferID common.Address
	TokenID    *big.Int
	Amount     *big.Int
	Expiration uint64
	FeeAsset   common.Address
	FeeAmount  *big.Int
}

func (DepositCreated) EventType() string { return TypeDepositCreated }

func (e DepositCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeDepositCreated,
		Attributes: map[string]string{
			"asset":      e.Asset.Hex(),
			"kind":       e.Kind,
			"sender":     e.Sender.Hex(),
			"transferId": e.TransferID.Hex(),
			"tokenId":    formatAmount(e.TokenID),
			"amount":     formatAmount(e.Amount),
			"expiration": strconv.FormatUint(e.Expiration, 10),
			"feeAsset":   e.FeeAsset.Hex(),
			"feeAmount":  formatAmount(e.FeeAmount),
		},
	}
}

// SenderMessage carries the opaque note a sender attached to a deposit.
type SenderMessage struct {
	Sender     common.Address
	TransferID common.Address
	Message    []byte
}

func (SenderMessage) EventType() string { return TypeSenderMessage }

func (e SenderMessage) Event() *types.Event {
	return &types.Event{
		Type: TypeSenderMessage,
		Attributes: map[string]string{
			"sender":     e.Sender.Hex(),
			"transferId": e.TransferID.Hex(),
			"message":    "0x" + hex.EncodeToString(e.Message),
		},
	}
}

type Redeemed struct {
	Asset      common.Address
	Sender     common.Address
	Receiver   common.Address
	TransferID common.Address
	TokenID    *big.Int
	Amount     *big.Int
	// Recovered is set when the redemption used a sender re-key proof.
	Recovered bool
}

func (Redeemed) EventType() string { return TypeRedeemed }

func (e Redeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeRedeemed,
		Attributes: map[string]string{
			"asset":      e.Asset.Hex(),
			"sender":     e.Sender.Hex(),
			"receiver":   e.Receiver.Hex(),
			"transferId": e.TransferID.Hex(),
			"tokenId":    formatAmount(e.TokenID),
			"amount":     formatAmount(e.Amount),
			"recovered":  strconv.FormatBool(e.Recovered),
		},
	}
}

type Refunded struct {
	Asset      common.Address
	Sender     common.Address
	TransferID common.Address
	TokenID    *big.Int
	Amount     *big.Int
}

func (Refunded) EventType() string { return TypeRefunded }

func (e Refunded) Event() *types.Event {
	return &types.Event{
		Type: TypeRefunded,
		Attributes: map[string]string{
			"asset":      e.Asset.Hex(),
			"sender":     e.Sender.Hex(),
			"transferId": e.TransferID.Hex(),
			"tokenId":    formatAmount(e.TokenID),
			"amount":     formatAmount(e.Amount),
		},
	}
}

type FeesWithdrawn struct {
	Denomination common.Address
	Owner        common.Address
	Amount       *big.Int
}

func (FeesWithdrawn) EventType() string { return TypeFeesWithdrawn }

func (e FeesWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeFeesWithdrawn,
		Attributes: map[string]string{
			"denomination": e.Denomination.Hex(),
			"owner":        e.Owner.Hex(),
			"amount":       formatAmount(e.Amount),
		},
	}
}

type OwnershipTransferred struct {
	Previous common.Address
	Next     common.Address
}

func (OwnershipTransferred) EventType() string { return TypeOwnershipTransferred }

func (e OwnershipTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnershipTransferred,
		Attributes: map[string]string{
			"previous": e.Previous.Hex(),
			"next":     e.Next.Hex(),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
