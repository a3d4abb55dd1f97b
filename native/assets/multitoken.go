package assets

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"claimlink/native/claimlink"
)

// MultiToken is a collection of fungible quantities per token id.
type MultiToken struct {
	registry *Registry
	address  common.Address
}

func (m *MultiToken) Kind() claimlink.AssetKind { return claimlink.KindMultiToken }

// Address returns the collection address.
func (m *MultiToken) Address() common.Address { return m.address }

// Pull moves amount of id from from into the escrow without a receive hook.
// The escrow must be an approved operator of from.
func (m *MultiToken) Pull(from common.Address, id, amount *big.Int) error {
	escrow := m.registry.escrow
	if err := m.authorize(escrow, from); err != nil {
		return err
	}
	return m.registry.move(m.address, id, from, escrow, amount)
}

// Push safe-transfers amount of id from the escrow.
func (m *MultiToken) Push(to common.Address, id, amount *big.Int) error {
	escrow := m.registry.escrow
	return m.SafeTransferFrom(escrow, escrow, to, id, amount, nil)
}

func (m *MultiToken) BalanceOf(holder common.Address, id *big.Int) (*big.Int, error) {
	return m.registry.ledger.AssetBalance(m.address, holder, id)
}

// Mint credits amount of id to to.
func (m *MultiToken) Mint(to common.Address, id, amount *big.Int) error {
	return m.registry.mint(m.address, id, to, amount)
}

// SetApprovalForAll grants or revokes operator over owner's balances.
func (m *MultiToken) SetApprovalForAll(owner, operator common.Address, approved bool) error {
	return m.registry.ledger.SetOperatorApproval(m.address, owner, operator, approved)
}

func (m *MultiToken) authorize(operator, from common.Address) error {
	if operator == from {
		return nil
	}
	ok, err := m.registry.ledger.OperatorApproved(m.address, from, operator)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotApproved
	}
	return nil
}

// SafeTransferFrom moves amount of id and notifies a registered receiver. A
// hook error rolls the transfer back.
func (m *MultiToken) SafeTransferFrom(operator, from, to common.Address, id, amount *big.Int, data []byte) error {
	return m.registry.atomically(func() error {
		if err := m.authorize(operator, from); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if err := m.registry.move(m.address, id, from, to, amount); err != nil {
			return err
		}
		if recv := m.registry.receiver(to); recv != nil {
			return recv.OnERC1155Received(m.address, operator, from, new(big.Int).Set(id), new(big.Int).Set(amount), data)
		}
		return nil
	})
}

// SafeBatchTransferFrom moves several ids at once and notifies a registered
// receiver with the batch hook.
func (m *MultiToken) SafeBatchTransferFrom(operator, from, to common.Address, ids, amounts []*big.Int, data []byte) error {
	if len(ids) != len(amounts) {
		return errors.New("assets: ids and amounts length mismatch")
	}
	return m.registry.atomically(func() error {
		if err := m.authorize(operator, from); err != nil {
			return err
		}
		for i := range ids {
			if err := m.registry.move(m.address, ids[i], from, to, amounts[i]); err != nil {
				return err
			}
		}
		if recv := m.registry.receiver(to); recv != nil {
			return recv.OnERC1155BatchReceived(m.address, operator, from, ids, amounts, data)
		}
		return nil
	})
}
