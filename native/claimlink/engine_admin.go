package claimlink

import (
	"math/big"

	"claimlink/core/events"

	"github.com/ethereum/go-ethereum/common"
)

// WithdrawAccruedFees sends the whole accrued balance of denom to the owner.
// A zero balance succeeds without moving anything.
func (e *Engine) WithdrawAccruedFees(call Call, denom common.Address) (*big.Int, error) {
	var withdrawn *big.Int
	err := e.execute(func() error {
		owner, err := e.requireOwner(call)
		if err != nil {
			return err
		}
		amount, err := e.state.FeeWithdrawAll(denom)
		if err != nil {
			return err
		}
		if amount.Sign() > 0 {
			backend, err := e.backend(denom)
			if err != nil {
				return err
			}
			if err := push(backend, owner, big.NewInt(0), amount); err != nil {
				return err
			}
		}
		e.queue(events.FeesWithdrawn{Denomination: denom, Owner: owner, Amount: cloneBigInt(amount)})
		withdrawn = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// TransferOwnership hands fee withdrawal rights to next.
func (e *Engine) TransferOwnership(call Call, next common.Address) error {
	return e.execute(func() error {
		owner, err := e.requireOwner(call)
		if err != nil {
			return err
		}
		if next == (common.Address{}) {
			return ErrZeroAddress
		}
		if err := e.state.RoleSet(RoleOwner, next); err != nil {
			return err
		}
		e.queue(events.OwnershipTransferred{Previous: owner, Next: next})
		return nil
	})
}

// GetDeposit returns the record under the key; an absent deposit is returned
// as a zero record rather than an error.
func (e *Engine) GetDeposit(asset, sender, transferID common.Address) (*Deposit, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateUnavailable
	}
	d, err := e.state.DepositGet(asset, sender, transferID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return EmptyDeposit(asset, sender, transferID), nil
	}
	return d, nil
}

// AccruedFees returns the withdrawable fee balance for denom.
func (e *Engine) AccruedFees(denom common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateUnavailable
	}
	return e.state.AccruedFees(denom)
}
