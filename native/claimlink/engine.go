package claimlink

import (
	"fmt"
	"math/big"
	"time"

	"claimlink/core/events"

	"github.com/ethereum/go-ethereum/common"
)

// Role names persisted in state.
const (
	RoleOwner   = "claimlink.owner"
	RoleRelayer = "claimlink.relayer"
)

// Config captures the construction-time identity of an escrow.
type Config struct {
	// Address is the escrow's own account on the asset ledgers.
	Address common.Address
	Owner   common.Address
	Relayer common.Address
	// Domain is the EIP-712 domain for re-key proofs. VerifyingContract
	// defaults to Address.
	Domain Domain
}

// Engine executes the escrow operations. It is a single-threaded state
// machine: callers must serialize access, and every call is applied to the
// state journal all-or-nothing. Events are buffered during a call and handed
// to the emitter only when the call succeeds.
type Engine struct {
	state    State
	assets   AssetRegistry
	verifier Verifier
	emitter  events.Emitter
	nowFn    func() int64

	address common.Address
	owner   common.Address
	relayer common.Address
	domain  Domain

	entered bool
	pending []events.Event
}

// NewEngine creates an engine with a no-op emitter and the wall clock.
// State, assets and verifier must be configured before use.
func NewEngine(cfg Config) *Engine {
	domain := cfg.Domain
	if domain.Name == "" {
		domain.Name = DefaultDomainName
	}
	if domain.Version == "" {
		domain.Version = DefaultDomainVersion
	}
	if domain.ChainID == nil {
		domain.ChainID = big.NewInt(1)
	}
	if domain.VerifyingContract == (common.Address{}) {
		domain.VerifyingContract = cfg.Address
	}
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		address: cfg.Address,
		owner:   cfg.Owner,
		relayer: cfg.Relayer,
		domain:  domain,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetAssets configures the asset registry.
func (e *Engine) SetAssets(assets AssetRegistry) { e.assets = assets }

// SetVerifier configures the signature verifier.
func (e *Engine) SetVerifier(v Verifier) { e.verifier = v }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Bootstrap records the configured relayer and persists the configured owner
// when the state has none yet. An owner already in state (for example after a
// transfer) wins.
func (e *Engine) Bootstrap() error {
	if e == nil || e.state == nil {
		return ErrStateUnavailable
	}
	if e.relayer == (common.Address{}) {
		return fmt.Errorf("claimlink: relayer not configured: %w", ErrZeroAddress)
	}
	if err := e.state.RoleSet(RoleRelayer, e.relayer); err != nil {
		return err
	}
	if _, ok, err := e.state.RoleGet(RoleOwner); err != nil || ok {
		return err
	}
	if e.owner == (common.Address{}) {
		return fmt.Errorf("claimlink: owner not configured: %w", ErrZeroAddress)
	}
	return e.state.RoleSet(RoleOwner, e.owner)
}

// Address returns the escrow's account address.
func (e *Engine) Address() common.Address { return e.address }

// Relayer returns the relayer address.
func (e *Engine) Relayer() common.Address { return e.relayer }

// Domain returns the EIP-712 domain used for re-key proofs.
func (e *Engine) Domain() Domain {
	d := e.domain
	d.ChainID = cloneBigInt(e.domain.ChainID)
	return d
}

// Owner returns the current owner.
func (e *Engine) Owner() (common.Address, error) {
	if e == nil || e.state == nil {
		return common.Address{}, ErrStateUnavailable
	}
	owner, ok, err := e.state.RoleGet(RoleOwner)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return e.owner, nil
	}
	return owner, nil
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) queue(evt events.Event) {
	e.pending = append(e.pending, evt)
}

// execute runs fn under a journal snapshot. Any error reverts every state
// change fn made, including asset movements, and drops its events.
func (e *Engine) execute(fn func() error) error {
	if e == nil || e.state == nil || e.assets == nil || e.verifier == nil {
		return ErrStateUnavailable
	}
	if e.entered {
		return ErrReentrantCall
	}
	e.entered = true
	defer func() { e.entered = false }()

	snapshot := e.state.Snapshot()
	mark := len(e.pending)
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snapshot)
		e.pending = e.pending[:mark]
		return err
	}
	queued := e.pending[mark:]
	e.pending = e.pending[:mark]
	for _, evt := range queued {
		e.emitter.Emit(evt)
	}
	return nil
}

func (e *Engine) requireRelayer(call Call) error {
	if e.relayer == (common.Address{}) || call.Caller != e.relayer {
		return ErrNotRelayer
	}
	return nil
}

func (e *Engine) requireOwner(call Call) (common.Address, error) {
	owner, err := e.Owner()
	if err != nil {
		return common.Address{}, err
	}
	if owner == (common.Address{}) || call.Caller != owner {
		return common.Address{}, ErrNotOwner
	}
	return owner, nil
}

func (e *Engine) backend(asset common.Address) (Backend, error) {
	backend, err := e.assets.Backend(asset)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedAsset, asset.Hex(), err)
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, asset.Hex())
	}
	return backend, nil
}

func (e *Engine) verifyFeeAuthorization(q FeeQuote, sig []byte) error {
	msg, err := FeeAuthorizationMessage(q)
	if err != nil {
		return err
	}
	if !e.verifier.VerifyHash(msg, sig, e.relayer) {
		return ErrInvalidFeeAuthorization
	}
	return nil
}

func (e *Engine) checkExpiration(expiration uint64) error {
	now := e.now()
	if now < 0 || expiration <= uint64(now) {
		return ErrInvalidExpiration
	}
	return nil
}

func pull(b Backend, from common.Address, tokenID, amount *big.Int) error {
	if err := b.Pull(from, tokenID, amount); err != nil {
		return errWrapTransfer(err)
	}
	return nil
}

func push(b Backend, to common.Address, tokenID, amount *big.Int) error {
	if err := b.Push(to, tokenID, amount); err != nil {
		return errWrapTransfer(err)
	}
	return nil
}

func errWrapTransfer(err error) error {
	return fmt.Errorf("%w: %w", ErrTransferFailed, err)
}
