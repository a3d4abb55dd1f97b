package assets

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"claimlink/native/claimlink"
)

// SingleNFT is a collection of uniquely owned tokens.
type SingleNFT struct {
	registry *Registry
	address  common.Address
}

func (n *SingleNFT) Kind() claimlink.AssetKind { return claimlink.KindSingleNFT }

// Address returns the collection address.
func (n *SingleNFT) Address() common.Address { return n.address }

// Pull moves tokenID from from into the escrow without a receive hook. The
// escrow must be approved for the token or as operator.
func (n *SingleNFT) Pull(from common.Address, tokenID, _ *big.Int) error {
	return n.TransferFrom(n.registry.escrow, from, n.registry.escrow, tokenID)
}

// Push safe-transfers tokenID from the escrow to to.
func (n *SingleNFT) Push(to common.Address, tokenID, _ *big.Int) error {
	return n.SafeTransferFrom(n.registry.escrow, n.registry.escrow, to, tokenID, nil)
}

func (n *SingleNFT) BalanceOf(holder common.Address, tokenID *big.Int) (*big.Int, error) {
	owner, ok, err := n.registry.ledger.NFTOwner(n.address, tokenID)
	if err != nil {
		return nil, err
	}
	if ok && owner == holder {
		return big.NewInt(1), nil
	}
	return big.NewInt(0), nil
}

// OwnerOf returns the owner of tokenID.
func (n *SingleNFT) OwnerOf(tokenID *big.Int) (common.Address, error) {
	owner, ok, err := n.registry.ledger.NFTOwner(n.address, tokenID)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, ErrNotTokenOwner
	}
	return owner, nil
}

// Mint creates tokenID owned by to.
func (n *SingleNFT) Mint(to common.Address, tokenID *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, ok, err := n.registry.ledger.NFTOwner(n.address, tokenID); err != nil {
		return err
	} else if ok {
		return ErrTokenExists
	}
	return n.registry.ledger.SetNFTOwner(n.address, tokenID, to)
}

// Approve lets approved move tokenID. Only the owner or an operator may call.
func (n *SingleNFT) Approve(caller, approved common.Address, tokenID *big.Int) error {
	owner, err := n.OwnerOf(tokenID)
	if err != nil {
		return err
	}
	if caller != owner {
		ok, err := n.registry.ledger.OperatorApproved(n.address, owner, caller)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotApproved
		}
	}
	return n.registry.ledger.SetNFTApproved(n.address, tokenID, approved)
}

// SetApprovalForAll grants or revokes operator over all of owner's tokens.
func (n *SingleNFT) SetApprovalForAll(owner, operator common.Address, approved bool) error {
	return n.registry.ledger.SetOperatorApproval(n.address, owner, operator, approved)
}

// TransferFrom moves tokenID without invoking a receive hook.
func (n *SingleNFT) TransferFrom(operator, from, to common.Address, tokenID *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	owner, err := n.OwnerOf(tokenID)
	if err != nil {
		return err
	}
	if owner != from {
		return ErrNotTokenOwner
	}
	if operator != owner {
		approved, err := n.registry.ledger.NFTApproved(n.address, tokenID)
		if err != nil {
			return err
		}
		if approved != operator {
			isOperator, err := n.registry.ledger.OperatorApproved(n.address, owner, operator)
			if err != nil {
				return err
			}
			if !isOperator {
				return ErrNotApproved
			}
		}
	}
	if err := n.registry.ledger.SetNFTApproved(n.address, tokenID, common.Address{}); err != nil {
		return err
	}
	return n.registry.ledger.SetNFTOwner(n.address, tokenID, to)
}

// SafeTransferFrom moves tokenID and notifies a registered receiver. A hook
// error rolls the transfer back.
func (n *SingleNFT) SafeTransferFrom(operator, from, to common.Address, tokenID *big.Int, data []byte) error {
	return n.registry.atomically(func() error {
		if err := n.TransferFrom(operator, from, to, tokenID); err != nil {
			return err
		}
		if recv := n.registry.receiver(to); recv != nil {
			return recv.OnERC721Received(n.address, operator, from, new(big.Int).Set(tokenID), data)
		}
		return nil
	})
}
