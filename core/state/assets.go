package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	assetBalancePrefix   = []byte("assets/balance/")
	assetAllowancePrefix = []byte("assets/allowance/")
	nftOwnerPrefix       = []byte("assets/nft/owner/")
	nftApprovalPrefix    = []byte("assets/nft/approval/")
	operatorPrefix       = []byte("assets/operator/")
	authNoncePrefix      = []byte("assets/authorization/")
)

func assetKey(prefix []byte, asset common.Address, parts ...[]byte) []byte {
	size := len(prefix) + common.AddressLength
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	buf = append(buf, asset.Bytes()...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

func tokenIDBytes(tokenID *big.Int) []byte {
	if tokenID == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(tokenID.Bytes(), 32)
}

// AssetBalance returns holder's balance of asset. Fungible and native assets
// use token id zero.
func (m *Manager) AssetBalance(asset, holder common.Address, tokenID *big.Int) (*big.Int, error) {
	return m.loadBigInt(assetKey(assetBalancePrefix, asset, holder.Bytes(), tokenIDBytes(tokenID)))
}

// SetAssetBalance overwrites holder's balance of asset.
func (m *Manager) SetAssetBalance(asset, holder common.Address, tokenID, amount *big.Int) error {
	return m.storeBigInt(assetKey(assetBalancePrefix, asset, holder.Bytes(), tokenIDBytes(tokenID)), amount)
}

// AssetAllowance returns the amount spender may pull from owner.
func (m *Manager) AssetAllowance(asset, owner, spender common.Address) (*big.Int, error) {
	return m.loadBigInt(assetKey(assetAllowancePrefix, asset, owner.Bytes(), spender.Bytes()))
}

// SetAssetAllowance overwrites the allowance of spender over owner's balance.
func (m *Manager) SetAssetAllowance(asset, owner, spender common.Address, amount *big.Int) error {
	return m.storeBigInt(assetKey(assetAllowancePrefix, asset, owner.Bytes(), spender.Bytes()), amount)
}

// NFTOwner returns the owner of a single-NFT token.
func (m *Manager) NFTOwner(asset common.Address, tokenID *big.Int) (common.Address, bool, error) {
	var owner common.Address
	ok, err := m.KVGet(assetKey(nftOwnerPrefix, asset, tokenIDBytes(tokenID)), &owner)
	if err != nil || !ok {
		return common.Address{}, false, err
	}
	return owner, true, nil
}

// SetNFTOwner records the owner of a single-NFT token.
func (m *Manager) SetNFTOwner(asset common.Address, tokenID *big.Int, owner common.Address) error {
	key := assetKey(nftOwnerPrefix, asset, tokenIDBytes(tokenID))
	if owner == (common.Address{}) {
		return m.KVDelete(key)
	}
	return m.KVPut(key, owner)
}

// NFTApproved returns the address approved to move a single-NFT token.
func (m *Manager) NFTApproved(asset common.Address, tokenID *big.Int) (common.Address, error) {
	var approved common.Address
	_, err := m.KVGet(assetKey(nftApprovalPrefix, asset, tokenIDBytes(tokenID)), &approved)
	return approved, err
}

// SetNFTApproved sets or clears (zero address) the per-token approval.
func (m *Manager) SetNFTApproved(asset common.Address, tokenID *big.Int, approved common.Address) error {
	key := assetKey(nftApprovalPrefix, asset, tokenIDBytes(tokenID))
	if approved == (common.Address{}) {
		return m.KVDelete(key)
	}
	return m.KVPut(key, approved)
}

// OperatorApproved reports whether operator may move all of owner's tokens.
func (m *Manager) OperatorApproved(asset, owner, operator common.Address) (bool, error) {
	return m.KVGet(assetKey(operatorPrefix, asset, owner.Bytes(), operator.Bytes()), nil)
}

// SetOperatorApproval grants or revokes an operator.
func (m *Manager) SetOperatorApproval(asset, owner, operator common.Address, approved bool) error {
	key := assetKey(operatorPrefix, asset, owner.Bytes(), operator.Bytes())
	if !approved {
		return m.KVDelete(key)
	}
	return m.KVPut(key, true)
}

// AuthorizationUsed reports whether authorizer already consumed nonce on asset.
func (m *Manager) AuthorizationUsed(asset, authorizer common.Address, nonce [32]byte) (bool, error) {
	return m.KVGet(assetKey(authNoncePrefix, asset, authorizer.Bytes(), nonce[:]), nil)
}

// MarkAuthorizationUsed consumes nonce for authorizer.
func (m *Manager) MarkAuthorizationUsed(asset, authorizer common.Address, nonce [32]byte) error {
	return m.KVPut(assetKey(authNoncePrefix, asset, authorizer.Bytes(), nonce[:]), true)
}
