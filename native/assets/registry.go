package assets

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"claimlink/native/claimlink"
)

var (
	ErrUnknownAsset           = errors.New("assets: unknown asset")
	ErrAssetExists            = errors.New("assets: asset already registered")
	ErrInsufficientBalance    = errors.New("assets: insufficient balance")
	ErrInsufficientAllowance  = errors.New("assets: insufficient allowance")
	ErrNotTokenOwner          = errors.New("assets: sender does not own token")
	ErrNotApproved            = errors.New("assets: caller is not owner nor approved")
	ErrInvalidAmount          = errors.New("assets: invalid amount")
	ErrZeroAddress            = errors.New("assets: zero address")
	ErrTokenExists            = errors.New("assets: token already minted")
	ErrAuthorizationCaller    = fmt.Errorf("%w: caller must be the payee", claimlink.ErrInvalidAuthorization)
	ErrAuthorizationWindow    = fmt.Errorf("%w: authorization not valid at this time", claimlink.ErrInvalidAuthorization)
	ErrAuthorizationUsed      = fmt.Errorf("%w: authorization already used", claimlink.ErrInvalidAuthorization)
	ErrAuthorizationSignature = fmt.Errorf("%w: invalid signature", claimlink.ErrInvalidAuthorization)
)

// Ledger is the state the asset backends keep their books in. Sharing the
// escrow's journaled state makes asset movements part of the same
// all-or-nothing call.
type Ledger interface {
	AssetBalance(asset, holder common.Address, tokenID *big.Int) (*big.Int, error)
	SetAssetBalance(asset, holder common.Address, tokenID, amount *big.Int) error
	AssetAllowance(asset, owner, spender common.Address) (*big.Int, error)
	SetAssetAllowance(asset, owner, spender common.Address, amount *big.Int) error
	NFTOwner(asset common.Address, tokenID *big.Int) (common.Address, bool, error)
	SetNFTOwner(asset common.Address, tokenID *big.Int, owner common.Address) error
	NFTApproved(asset common.Address, tokenID *big.Int) (common.Address, error)
	SetNFTApproved(asset common.Address, tokenID *big.Int, approved common.Address) error
	OperatorApproved(asset, owner, operator common.Address) (bool, error)
	SetOperatorApproval(asset, owner, operator common.Address, approved bool) error
	AuthorizationUsed(asset, authorizer common.Address, nonce [32]byte) (bool, error)
	MarkAuthorizationUsed(asset, authorizer common.Address, nonce [32]byte) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// TokenReceiver is implemented by accounts that react to safe NFT transfers.
// An error rejects the transfer.
type TokenReceiver interface {
	OnERC721Received(asset, operator, from common.Address, tokenID *big.Int, data []byte) error
	OnERC1155Received(asset, operator, from common.Address, id, value *big.Int, data []byte) error
	OnERC1155BatchReceived(asset, operator, from common.Address, ids, values []*big.Int, data []byte) error
}

// Metadata describes a fungible asset; Name and Version form its EIP-712
// domain for gasless authorizations.
type Metadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Version  string `json:"version"`
	Decimals uint8  `json:"decimals"`
}

// Registry resolves asset addresses to ledger-backed backends acting for one
// escrow account.
type Registry struct {
	ledger   Ledger
	escrow   common.Address
	chainID  *big.Int
	verifier claimlink.Verifier
	nowFn    func() int64

	mu        sync.RWMutex
	backends  map[common.Address]claimlink.Backend
	receivers map[common.Address]TokenReceiver
}

// NewRegistry creates a registry with the native backend pre-registered at
// claimlink.NativeAsset.
func NewRegistry(ledger Ledger, escrow common.Address, chainID *big.Int, verifier claimlink.Verifier) *Registry {
	if chainID == nil {
		chainID = big.NewInt(1)
	}
	r := &Registry{
		ledger:    ledger,
		escrow:    escrow,
		chainID:   new(big.Int).Set(chainID),
		verifier:  verifier,
		nowFn:     func() int64 { return time.Now().Unix() },
		backends:  make(map[common.Address]claimlink.Backend),
		receivers: make(map[common.Address]TokenReceiver),
	}
	r.backends[claimlink.NativeAsset] = &Native{registry: r}
	return r
}

// SetNowFunc overrides the clock used for authorization validity windows.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	r.nowFn = now
}

// SetReceiver registers the hook invoked when addr receives a safe transfer.
func (r *Registry) SetReceiver(addr common.Address, recv TokenReceiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if recv == nil {
		delete(r.receivers, addr)
		return
	}
	r.receivers[addr] = recv
}

func (r *Registry) receiver(addr common.Address) TokenReceiver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.receivers[addr]
}

// Escrow returns the account the backends pull into and push from.
func (r *Registry) Escrow() common.Address { return r.escrow }

// Backend implements claimlink.AssetRegistry.
func (r *Registry) Backend(asset common.Address) (claimlink.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[asset]
	if !ok {
		return nil, ErrUnknownAsset
	}
	return b, nil
}

// Assets lists registered assets with their kinds.
func (r *Registry) Assets() map[common.Address]claimlink.AssetKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[common.Address]claimlink.AssetKind, len(r.backends))
	for addr, b := range r.backends {
		out[addr] = b.Kind()
	}
	return out
}

func (r *Registry) register(asset common.Address, b claimlink.Backend) error {
	if asset == claimlink.NativeAsset {
		return ErrAssetExists
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[asset]; exists {
		return ErrAssetExists
	}
	r.backends[asset] = b
	return nil
}

// RegisterFungible adds a fungible asset.
func (r *Registry) RegisterFungible(asset common.Address, meta Metadata) (*Fungible, error) {
	f := &Fungible{registry: r, address: asset, meta: meta}
	if err := r.register(asset, f); err != nil {
		return nil, err
	}
	return f, nil
}

// RegisterSingleNFT adds a single-NFT collection.
func (r *Registry) RegisterSingleNFT(asset common.Address) (*SingleNFT, error) {
	n := &SingleNFT{registry: r, address: asset}
	if err := r.register(asset, n); err != nil {
		return nil, err
	}
	return n, nil
}

// RegisterMultiToken adds a multi-token collection.
func (r *Registry) RegisterMultiToken(asset common.Address) (*MultiToken, error) {
	m := &MultiToken{registry: r, address: asset}
	if err := r.register(asset, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Native returns the native backend.
func (r *Registry) Native() *Native {
	b, _ := r.Backend(claimlink.NativeAsset)
	return b.(*Native)
}

// Fungible returns the fungible backend for asset.
func (r *Registry) Fungible(asset common.Address) (*Fungible, error) {
	b, err := r.Backend(asset)
	if err != nil {
		return nil, err
	}
	f, ok := b.(*Fungible)
	if !ok {
		return nil, claimlink.ErrAssetKind
	}
	return f, nil
}

// SingleNFT returns the single-NFT backend for asset.
func (r *Registry) SingleNFT(asset common.Address) (*SingleNFT, error) {
	b, err := r.Backend(asset)
	if err != nil {
		return nil, err
	}
	n, ok := b.(*SingleNFT)
	if !ok {
		return nil, claimlink.ErrAssetKind
	}
	return n, nil
}

// MultiToken returns the multi-token backend for asset.
func (r *Registry) MultiToken(asset common.Address) (*MultiToken, error) {
	b, err := r.Backend(asset)
	if err != nil {
		return nil, err
	}
	m, ok := b.(*MultiToken)
	if !ok {
		return nil, claimlink.ErrAssetKind
	}
	return m, nil
}

// move transfers amount of (asset, tokenID) between holders.
func (r *Registry) move(asset common.Address, tokenID *big.Int, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount.Sign() == 0 || from == to {
		bal, err := r.ledger.AssetBalance(asset, from, tokenID)
		if err != nil {
			return err
		}
		if bal.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		return nil
	}
	fromBal, err := r.ledger.AssetBalance(asset, from, tokenID)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := r.ledger.AssetBalance(asset, to, tokenID)
	if err != nil {
		return err
	}
	if err := r.ledger.SetAssetBalance(asset, from, tokenID, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return r.ledger.SetAssetBalance(asset, to, tokenID, new(big.Int).Add(toBal, amount))
}

func (r *Registry) mint(asset common.Address, tokenID *big.Int, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	bal, err := r.ledger.AssetBalance(asset, to, tokenID)
	if err != nil {
		return err
	}
	return r.ledger.SetAssetBalance(asset, to, tokenID, new(big.Int).Add(bal, amount))
}

// atomically runs fn under a ledger snapshot.
func (r *Registry) atomically(fn func() error) error {
	snap := r.ledger.Snapshot()
	if err := fn(); err != nil {
		r.ledger.RevertToSnapshot(snap)
		return err
	}
	return nil
}

func zeroID() *big.Int { return big.NewInt(0) }
