package claimlink

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Verifier checks the signatures the escrow relies on. Malformed input must
// yield false rather than an error.
type Verifier interface {
	VerifyStructured(typed apitypes.TypedData, sig []byte, expected common.Address) bool
	VerifyHash(raw, sig []byte, expected common.Address) bool
	RecoverHash(raw, sig []byte) (common.Address, bool)
}

// State is the persistence the engine needs: the deposit store, the fee
// ledger, role storage and a journal for all-or-nothing calls.
type State interface {
	DepositPut(d *Deposit) error
	DepositGet(asset, sender, transferID common.Address) (*Deposit, error)
	DepositClear(asset, sender, transferID common.Address) error

	FeeCredit(denom common.Address, amount *big.Int) error
	FeeWithdrawAll(denom common.Address) (*big.Int, error)
	AccruedFees(denom common.Address) (*big.Int, error)

	RoleGet(role string) (common.Address, bool, error)
	RoleSet(role string, addr common.Address) error

	Snapshot() int
	RevertToSnapshot(id int)
}

// Backend moves one asset between holders and the escrow. Pull takes from a
// holder into the escrow; Push releases from the escrow.
type Backend interface {
	Kind() AssetKind
	Pull(from common.Address, tokenID, amount *big.Int) error
	Push(to common.Address, tokenID, amount *big.Int) error
	BalanceOf(holder common.Address, tokenID *big.Int) (*big.Int, error)
}

// AuthorizationBackend is implemented by fungible assets that accept gasless
// EIP-3009 authorizations.
type AuthorizationBackend interface {
	Backend
	// ReceiveWithAuthorization moves auth.Value from auth.From to the escrow;
	// the escrow must be both the caller and auth.To.
	ReceiveWithAuthorization(auth Authorization) error
	// ApproveWithAuthorization sets the escrow's allowance from auth.From.
	ApproveWithAuthorization(auth Authorization) error
}

// AssetRegistry resolves the backend for an asset address. NativeAsset must
// resolve to the native backend.
type AssetRegistry interface {
	Backend(asset common.Address) (Backend, error)
}
