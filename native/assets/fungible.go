package assets

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"claimlink/native/claimlink"
)

// Fungible is an allowance-based token that also accepts EIP-3009 style
// authorizations.
type Fungible struct {
	registry *Registry
	address  common.Address
	meta     Metadata
}

func (f *Fungible) Kind() claimlink.AssetKind { return claimlink.KindFungible }

// Address returns the token address.
func (f *Fungible) Address() common.Address { return f.address }

// Metadata returns the token metadata.
func (f *Fungible) Metadata() Metadata { return f.meta }

// Domain returns the EIP-712 domain holders sign authorizations under.
func (f *Fungible) Domain() claimlink.Domain {
	return claimlink.Domain{
		Name:              f.meta.Name,
		Version:           f.meta.Version,
		ChainID:           new(big.Int).Set(f.registry.chainID),
		VerifyingContract: f.address,
	}
}

// Pull spends the escrow's allowance over from.
func (f *Fungible) Pull(from common.Address, _ *big.Int, amount *big.Int) error {
	return f.TransferFrom(f.registry.escrow, from, f.registry.escrow, amount)
}

// Push transfers from the escrow's balance.
func (f *Fungible) Push(to common.Address, _ *big.Int, amount *big.Int) error {
	return f.Transfer(f.registry.escrow, to, amount)
}

func (f *Fungible) BalanceOf(holder common.Address, _ *big.Int) (*big.Int, error) {
	return f.registry.ledger.AssetBalance(f.address, holder, zeroID())
}

// Mint credits amount to an account (development faucet).
func (f *Fungible) Mint(to common.Address, amount *big.Int) error {
	return f.registry.mint(f.address, zeroID(), to, amount)
}

// Transfer moves amount from the caller's balance.
func (f *Fungible) Transfer(from, to common.Address, amount *big.Int) error {
	return f.registry.move(f.address, zeroID(), from, to, amount)
}

// Approve sets spender's allowance over owner's balance.
func (f *Fungible) Approve(owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if spender == (common.Address{}) {
		return ErrZeroAddress
	}
	return f.registry.ledger.SetAssetAllowance(f.address, owner, spender, amount)
}

// Allowance returns spender's remaining allowance over owner.
func (f *Fungible) Allowance(owner, spender common.Address) (*big.Int, error) {
	return f.registry.ledger.AssetAllowance(f.address, owner, spender)
}

// TransferFrom moves amount from from to to on behalf of spender.
func (f *Fungible) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	return f.registry.atomically(func() error {
		allowance, err := f.registry.ledger.AssetAllowance(f.address, from, spender)
		if err != nil {
			return err
		}
		if amount == nil || allowance.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
		if err := f.registry.ledger.SetAssetAllowance(f.address, from, spender, new(big.Int).Sub(allowance, amount)); err != nil {
			return err
		}
		return f.registry.move(f.address, zeroID(), from, to, amount)
	})
}

// ReceiveWithAuthorization moves auth.Value from auth.From to the escrow. The
// escrow is the caller and must be the payee.
func (f *Fungible) ReceiveWithAuthorization(auth claimlink.Authorization) error {
	return f.registry.atomically(func() error {
		if auth.To != f.registry.escrow {
			return ErrAuthorizationCaller
		}
		if err := f.consumeAuthorization(claimlink.AuthorizationReceive, auth); err != nil {
			return err
		}
		return f.registry.move(f.address, zeroID(), auth.From, auth.To, auth.Value)
	})
}

// ApproveWithAuthorization sets the allowance of auth.To over auth.From.
func (f *Fungible) ApproveWithAuthorization(auth claimlink.Authorization) error {
	return f.registry.atomically(func() error {
		if err := f.consumeAuthorization(claimlink.AuthorizationApprove, auth); err != nil {
			return err
		}
		return f.Approve(auth.From, auth.To, auth.Value)
	})
}

func (f *Fungible) consumeAuthorization(kind claimlink.AuthorizationKind, auth claimlink.Authorization) error {
	now := big.NewInt(f.registry.nowFn())
	if auth.ValidAfter != nil && now.Cmp(auth.ValidAfter) <= 0 {
		return ErrAuthorizationWindow
	}
	if auth.ValidBefore == nil || now.Cmp(auth.ValidBefore) >= 0 {
		return ErrAuthorizationWindow
	}
	used, err := f.registry.ledger.AuthorizationUsed(f.address, auth.From, auth.Nonce)
	if err != nil {
		return err
	}
	if used {
		return ErrAuthorizationUsed
	}
	typed, err := claimlink.AuthorizationTypedData(kind, f.Domain(), auth)
	if err != nil {
		return err
	}
	if f.registry.verifier == nil || !f.registry.verifier.VerifyStructured(typed, auth.Signature(), auth.From) {
		return ErrAuthorizationSignature
	}
	return f.registry.ledger.MarkAuthorizationUsed(f.address, auth.From, auth.Nonce)
}
