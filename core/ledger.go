package core

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"claimlink/native/assets"
	"claimlink/native/claimlink"
)

var seededKey = []byte("claimlink/genesis/seeded")

// AssetSpec registers an asset ledger with the node.
type AssetSpec struct {
	Address common.Address
	Kind    claimlink.AssetKind
	Meta    assets.Metadata
}

// Allocation credits a starting balance. For single NFTs TokenID is minted
// to Holder and Amount is ignored.
type Allocation struct {
	Asset   common.Address
	Holder  common.Address
	TokenID *big.Int
	Amount  *big.Int
}

// RegisterAsset adds an asset ledger. Registrations are not persisted and must
// be repeated on every start.
func (n *Node) RegisterAsset(spec AssetSpec) error {
	var err error
	switch spec.Kind {
	case claimlink.KindFungible:
		_, err = n.assets.RegisterFungible(spec.Address, spec.Meta)
	case claimlink.KindSingleNFT:
		_, err = n.assets.RegisterSingleNFT(spec.Address)
	case claimlink.KindMultiToken:
		_, err = n.assets.RegisterMultiToken(spec.Address)
	default:
		return fmt.Errorf("%w: kind %s", claimlink.ErrUnsupportedAsset, spec.Kind)
	}
	return err
}

// Assets lists the registered assets by kind, including native.
func (n *Node) Assets() map[common.Address]claimlink.AssetKind {
	return n.assets.Assets()
}

// Seed mints the allocations once. Later calls are no-ops so restarts keep
// the live balances.
func (n *Node) Seed(ctx context.Context, allocations []Allocation) (bool, error) {
	seeded := false
	err := n.apply(ctx, "seed", func() error {
		var done bool
		found, err := n.state.KVGet(seededKey, &done)
		if err != nil {
			return err
		}
		if found && done {
			return nil
		}
		for i, alloc := range allocations {
			if err := n.mint(alloc); err != nil {
				return fmt.Errorf("core: allocation %d: %w", i, err)
			}
		}
		seeded = true
		return n.state.KVPut(seededKey, true)
	})
	return seeded, err
}

func (n *Node) mint(alloc Allocation) error {
	backend, err := n.assets.Backend(alloc.Asset)
	if err != nil {
		return err
	}
	amount := alloc.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}
	tokenID := alloc.TokenID
	if tokenID == nil {
		tokenID = big.NewInt(0)
	}
	switch b := backend.(type) {
	case *assets.Native:
		return b.Mint(alloc.Holder, amount)
	case *assets.Fungible:
		return b.Mint(alloc.Holder, amount)
	case *assets.SingleNFT:
		return b.Mint(alloc.Holder, tokenID)
	case *assets.MultiToken:
		return b.Mint(alloc.Holder, tokenID, amount)
	default:
		return fmt.Errorf("%w: %s", claimlink.ErrUnsupportedAsset, alloc.Asset.Hex())
	}
}

// BalanceOf reports the holder's balance of asset (and tokenID for NFTs).
func (n *Node) BalanceOf(asset, holder common.Address, tokenID *big.Int) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	backend, err := n.assets.Backend(asset)
	if err != nil {
		return nil, err
	}
	if tokenID == nil {
		tokenID = big.NewInt(0)
	}
	return backend.BalanceOf(holder, tokenID)
}

// Approve grants spender an allowance on a fungible asset, or approves a
// single NFT token for spender.
func (n *Node) Approve(ctx context.Context, caller, asset, spender common.Address, tokenID, amount *big.Int) error {
	return n.apply(ctx, "asset_approve", func() error {
		backend, err := n.assets.Backend(asset)
		if err != nil {
			return err
		}
		switch b := backend.(type) {
		case *assets.Fungible:
			return b.Approve(caller, spender, amount)
		case *assets.SingleNFT:
			return b.Approve(caller, spender, tokenID)
		default:
			return fmt.Errorf("%w: approve on %s", claimlink.ErrAssetKind, backend.Kind())
		}
	})
}

// SetApprovalForAll toggles an operator for every token of an NFT asset.
func (n *Node) SetApprovalForAll(ctx context.Context, caller, asset, operator common.Address, approved bool) error {
	return n.apply(ctx, "asset_set_approval_for_all", func() error {
		backend, err := n.assets.Backend(asset)
		if err != nil {
			return err
		}
		switch b := backend.(type) {
		case *assets.SingleNFT:
			return b.SetApprovalForAll(caller, operator, approved)
		case *assets.MultiToken:
			return b.SetApprovalForAll(caller, operator, approved)
		default:
			return fmt.Errorf("%w: operator approval on %s", claimlink.ErrAssetKind, backend.Kind())
		}
	})
}

// Transfer moves caller's asset to to. NFT transfers are safe transfers: when
// to is the escrow, data is the receive-hook payload and the transfer becomes
// a deposit.
func (n *Node) Transfer(ctx context.Context, caller, asset, to common.Address, tokenID, amount *big.Int, data []byte) error {
	if tokenID == nil {
		tokenID = big.NewInt(0)
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	return n.apply(ctx, "asset_transfer", func() error {
		backend, err := n.assets.Backend(asset)
		if err != nil {
			return err
		}
		switch b := backend.(type) {
		case *assets.Native:
			return b.Transfer(caller, to, amount)
		case *assets.Fungible:
			return b.Transfer(caller, to, amount)
		case *assets.SingleNFT:
			return b.SafeTransferFrom(caller, caller, to, tokenID, data)
		case *assets.MultiToken:
			return b.SafeTransferFrom(caller, caller, to, tokenID, amount, data)
		default:
			return errors.New("core: unsupported asset backend")
		}
	})
}
