package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"claimlink/native/claimlink"
)

var (
	depositPrefix = []byte("claimlink/deposit/")
	feePrefix     = []byte("claimlink/fees/")
	rolePrefix    = []byte("role:")
)

func depositKey(asset, sender, transferID common.Address) []byte {
	buf := make([]byte, 0, len(depositPrefix)+3*common.AddressLength)
	buf = append(buf, depositPrefix...)
	buf = append(buf, asset.Bytes()...)
	buf = append(buf, sender.Bytes()...)
	buf = append(buf, transferID.Bytes()...)
	return buf
}

func feeKey(denom common.Address) []byte {
	buf := make([]byte, 0, len(feePrefix)+common.AddressLength)
	buf = append(buf, feePrefix...)
	return append(buf, denom.Bytes()...)
}

func roleKey(role string) []byte {
	buf := make([]byte, len(rolePrefix)+len(role))
	copy(buf, rolePrefix)
	copy(buf[len(rolePrefix):], role)
	return buf
}

type storedDeposit struct {
	Asset      common.Address
	Sender     common.Address
	TransferID common.Address
	TokenID    *big.Int
	Amount     *big.Int
	Expiration uint64
}

func newStoredDeposit(d *claimlink.Deposit) *storedDeposit {
	tokenID := big.NewInt(0)
	if d.TokenID != nil {
		tokenID = new(big.Int).Set(d.TokenID)
	}
	amount := big.NewInt(0)
	if d.Amount != nil {
		amount = new(big.Int).Set(d.Amount)
	}
	return &storedDeposit{
		Asset:      d.Asset,
		Sender:     d.Sender,
		TransferID: d.TransferID,
		TokenID:    tokenID,
		Amount:     amount,
		Expiration: d.Expiration,
	}
}

func (s *storedDeposit) toDeposit() *claimlink.Deposit {
	out := claimlink.EmptyDeposit(s.Asset, s.Sender, s.TransferID)
	if s.TokenID != nil {
		out.TokenID = new(big.Int).Set(s.TokenID)
	}
	if s.Amount != nil {
		out.Amount = new(big.Int).Set(s.Amount)
	}
	out.Expiration = s.Expiration
	return out
}

// DepositPut stores d. A live deposit under the same key is never
// overwritten.
func (m *Manager) DepositPut(d *claimlink.Deposit) error {
	if d == nil {
		return fmt.Errorf("claimlink: nil deposit")
	}
	if !d.Live() {
		return claimlink.ErrInvalidAmount
	}
	existing, err := m.DepositGet(d.Asset, d.Sender, d.TransferID)
	if err != nil {
		return err
	}
	if existing.Live() {
		return claimlink.ErrDepositExists
	}
	return m.KVPut(depositKey(d.Asset, d.Sender, d.TransferID), newStoredDeposit(d))
}

// DepositGet returns the deposit under the key, or the zero record when none
// exists.
func (m *Manager) DepositGet(asset, sender, transferID common.Address) (*claimlink.Deposit, error) {
	var stored storedDeposit
	ok, err := m.KVGet(depositKey(asset, sender, transferID), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return claimlink.EmptyDeposit(asset, sender, transferID), nil
	}
	return stored.toDeposit(), nil
}

// DepositClear removes the deposit under the key.
func (m *Manager) DepositClear(asset, sender, transferID common.Address) error {
	return m.KVDelete(depositKey(asset, sender, transferID))
}

// FeeCredit adds amount to the accrued balance of denom. Balances are bounded
// by 256 bits.
func (m *Manager) FeeCredit(denom common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return claimlink.ErrInvalidAmount
	}
	current, err := m.AccruedFees(denom)
	if err != nil {
		return err
	}
	a, overflow := uint256.FromBig(current)
	if overflow {
		return claimlink.ErrFeeOverflow
	}
	b, overflow := uint256.FromBig(amount)
	if overflow {
		return claimlink.ErrFeeOverflow
	}
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return claimlink.ErrFeeOverflow
	}
	return m.storeBigInt(feeKey(denom), sum.ToBig())
}

// FeeWithdrawAll zeroes the accrued balance of denom and returns what it held.
func (m *Manager) FeeWithdrawAll(denom common.Address) (*big.Int, error) {
	current, err := m.AccruedFees(denom)
	if err != nil {
		return nil, err
	}
	if current.Sign() == 0 {
		return current, nil
	}
	if err := m.storeBigInt(feeKey(denom), nil); err != nil {
		return nil, err
	}
	return current, nil
}

// AccruedFees returns the accrued balance of denom.
func (m *Manager) AccruedFees(denom common.Address) (*big.Int, error) {
	return m.loadBigInt(feeKey(denom))
}

// RoleGet returns the address holding role.
func (m *Manager) RoleGet(role string) (common.Address, bool, error) {
	var addr common.Address
	ok, err := m.KVGet(roleKey(role), &addr)
	if err != nil || !ok {
		return common.Address{}, false, err
	}
	return addr, true, nil
}

// RoleSet assigns role to addr.
func (m *Manager) RoleSet(role string, addr common.Address) error {
	if role == "" {
		return fmt.Errorf("state: empty role")
	}
	return m.KVPut(roleKey(role), addr)
}
