package assets

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"claimlink/native/claimlink"
)

// Native books the chain's native value. Pull models value attached to an
// escrow call.
type Native struct {
	registry *Registry
}

func (n *Native) Kind() claimlink.AssetKind { return claimlink.KindNative }

func (n *Native) Pull(from common.Address, _ *big.Int, amount *big.Int) error {
	return n.registry.move(claimlink.NativeAsset, zeroID(), from, n.registry.escrow, amount)
}

func (n *Native) Push(to common.Address, _ *big.Int, amount *big.Int) error {
	return n.registry.move(claimlink.NativeAsset, zeroID(), n.registry.escrow, to, amount)
}

func (n *Native) BalanceOf(holder common.Address, _ *big.Int) (*big.Int, error) {
	return n.registry.ledger.AssetBalance(claimlink.NativeAsset, holder, zeroID())
}

// Transfer moves native value between accounts.
func (n *Native) Transfer(from, to common.Address, amount *big.Int) error {
	return n.registry.move(claimlink.NativeAsset, zeroID(), from, to, amount)
}

// Mint credits native value to an account (development faucet).
func (n *Native) Mint(to common.Address, amount *big.Int) error {
	return n.registry.mint(claimlink.NativeAsset, zeroID(), to, amount)
}
