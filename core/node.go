package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"claimlink/core/events"
	"claimlink/core/state"
	"claimlink/crypto"
	"claimlink/native/assets"
	"claimlink/native/claimlink"
	"claimlink/observability"
	"claimlink/storage"
	"claimlink/storage/trie"
)

// ErrNodeClosed is returned once Close has been called.
var ErrNodeClosed = errors.New("core: node closed")

// Options configures a Node.
type Options struct {
	DB      storage.Database
	Journal *storage.EventLog
	Escrow  common.Address
	Owner   common.Address
	// RelayerKey signs fee quotes and submits relayer-only calls.
	RelayerKey *crypto.PrivateKey
	ChainID    uint64
	// DomainName and DomainVersion default to the engine's domain.
	DomainName    string
	DomainVersion string
	Fees          FeeSchedule
	Logger        *slog.Logger
	// Now overrides the clock used for expirations and authorization windows.
	Now func() int64
}

// Node is the central controller, wiring the escrow engine to its state,
// asset ledgers and event journal. Calls are serialized: each one either
// commits in full and publishes its events or leaves no trace.
type Node struct {
	mu       sync.Mutex
	db       storage.Database
	state    *state.Manager
	assets   *assets.Registry
	engine   *claimlink.Engine
	recorder *events.Recorder
	relayer  *crypto.PrivateKey
	escrow   common.Address
	chainID  *big.Int
	fees     FeeSchedule
	logger   *slog.Logger
	metrics  *observability.ClaimlinkMetrics
	closed   bool

	feed *eventFeed
}

func NewNode(opts Options) (*Node, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("core: database required")
	}
	if opts.RelayerKey == nil {
		return nil, fmt.Errorf("core: relayer key required")
	}
	if opts.Escrow == (common.Address{}) {
		return nil, fmt.Errorf("core: escrow address: %w", claimlink.ErrZeroAddress)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chainID := new(big.Int).SetUint64(opts.ChainID)

	manager := state.NewManager(opts.DB)
	verifier := crypto.Verifier{}
	registry := assets.NewRegistry(manager, opts.Escrow, chainID, verifier)
	engine := claimlink.NewEngine(claimlink.Config{
		Address: opts.Escrow,
		Owner:   opts.Owner,
		Relayer: opts.RelayerKey.Address(),
		Domain: claimlink.Domain{
			Name:    opts.DomainName,
			Version: opts.DomainVersion,
			ChainID: chainID,
		},
	})
	recorder := &events.Recorder{}
	engine.SetState(manager)
	engine.SetAssets(registry)
	engine.SetVerifier(verifier)
	engine.SetEmitter(recorder)
	if opts.Now != nil {
		engine.SetNowFunc(opts.Now)
		registry.SetNowFunc(opts.Now)
	}
	registry.SetReceiver(opts.Escrow, engine)

	if err := engine.Bootstrap(); err != nil {
		manager.Discard()
		return nil, fmt.Errorf("core: bootstrap escrow: %w", err)
	}
	if err := manager.Commit(); err != nil {
		return nil, fmt.Errorf("core: commit bootstrap: %w", err)
	}

	n := &Node{
		db:       opts.DB,
		state:    manager,
		assets:   registry,
		engine:   engine,
		recorder: recorder,
		relayer:  opts.RelayerKey,
		escrow:   opts.Escrow,
		chainID:  chainID,
		fees:     opts.Fees.clone(),
		logger:   logger,
		metrics:  observability.Claimlink(),
		feed:     newEventFeed(opts.Journal),
	}
	logger.Info("escrow node ready",
		slog.String("escrow", opts.Escrow.Hex()),
		slog.String("relayer", n.relayer.Address().Hex()),
		slog.String("chain_id", chainID.String()))
	return n, nil
}

// apply runs fn against the engine and commits the state journal when it
// succeeds. Events buffered during fn are journaled and published only after
// the commit.
func (n *Node) apply(ctx context.Context, operation string, fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	start := time.Now()

	err := fn()
	if err == nil {
		if commitErr := n.state.Commit(); commitErr != nil {
			err = fmt.Errorf("core: commit %s: %w", operation, commitErr)
		}
	}
	if err != nil {
		n.state.Discard()
		n.recorder.Drain()
		n.metrics.ObserveOperation(operation, string(claimlink.CategoryOf(err)), claimlink.ReasonOf(err), time.Since(start))
		n.logger.Warn("escrow call rejected",
			slog.String("operation", operation),
			slog.String("outcome", string(claimlink.CategoryOf(err))),
			slog.String("reason", claimlink.ReasonOf(err)),
			slog.Any("error", err))
		return err
	}

	emitted := n.recorder.Drain()
	n.metrics.ObserveOperation(operation, "", "", time.Since(start))
	records, journalErr := n.feed.append(ctx, emitted, time.Now())
	if journalErr != nil {
		n.logger.Error("event journal append failed",
			slog.String("operation", operation),
			slog.Any("error", journalErr))
	}
	for _, rec := range records {
		n.metrics.RecordEvent(rec.Type)
	}
	n.refreshFeeGauges()
	n.logger.Info("escrow call committed",
		slog.String("operation", operation),
		slog.Int("events", len(emitted)))
	return nil
}

func (n *Node) refreshFeeGauges() {
	for asset := range n.assets.Assets() {
		amount, err := n.state.AccruedFees(asset)
		if err != nil {
			continue
		}
		value, _ := new(big.Float).SetInt(amount).Float64()
		n.metrics.SetAccruedFees(asset.Hex(), value)
	}
}

func (n *Node) relayerCall() claimlink.Call {
	return claimlink.Call{Caller: n.relayer.Address()}
}

// Deposit locks native value or a fungible token from call.Caller.
func (n *Node) Deposit(ctx context.Context, call claimlink.Call, req claimlink.DepositRequest) error {
	return n.apply(ctx, "deposit", func() error { return n.engine.Deposit(call, req) })
}

// DepositNFT locks a single NFT or a multi-token quantity from call.Caller.
func (n *Node) DepositNFT(ctx context.Context, call claimlink.Call, req claimlink.NFTDepositRequest) error {
	return n.apply(ctx, "deposit_nft", func() error { return n.engine.DepositNFT(call, req) })
}

// DepositWithAuthorization submits a gasless deposit as the relayer.
func (n *Node) DepositWithAuthorization(ctx context.Context, req claimlink.AuthorizedDepositRequest) error {
	return n.apply(ctx, "deposit_with_authorization", func() error {
		return n.engine.DepositWithAuthorization(n.relayerCall(), req)
	})
}

// Redeem releases a deposit to req.Receiver as the relayer.
func (n *Node) Redeem(ctx context.Context, req claimlink.RedeemRequest) error {
	return n.apply(ctx, "redeem", func() error { return n.engine.Redeem(n.relayerCall(), req) })
}

// RedeemRecovered releases a deposit through a replacement link key.
func (n *Node) RedeemRecovered(ctx context.Context, req claimlink.RecoveredRedeemRequest) error {
	return n.apply(ctx, "redeem_recovered", func() error { return n.engine.RedeemRecovered(n.relayerCall(), req) })
}

// Refund returns an expired deposit to its sender as the relayer.
func (n *Node) Refund(ctx context.Context, sender, asset, transferID common.Address) error {
	return n.apply(ctx, "refund", func() error { return n.engine.Refund(n.relayerCall(), sender, asset, transferID) })
}

// WithdrawAccruedFees moves the accrued fees of denom to the owner.
func (n *Node) WithdrawAccruedFees(ctx context.Context, caller, denom common.Address) (*big.Int, error) {
	var withdrawn *big.Int
	err := n.apply(ctx, "withdraw_fees", func() error {
		amount, err := n.engine.WithdrawAccruedFees(claimlink.Call{Caller: caller}, denom)
		withdrawn = amount
		return err
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// TransferOwnership hands the owner role to next.
func (n *Node) TransferOwnership(ctx context.Context, caller, next common.Address) error {
	return n.apply(ctx, "transfer_ownership", func() error {
		return n.engine.TransferOwnership(claimlink.Call{Caller: caller}, next)
	})
}

// GetDeposit returns the deposit record; a missing deposit has a zero amount.
func (n *Node) GetDeposit(asset, sender, transferID common.Address) (*claimlink.Deposit, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetDeposit(asset, sender, transferID)
}

// AccruedFees returns the unwithdrawn fees of denom.
func (n *Node) AccruedFees(denom common.Address) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.AccruedFees(denom)
}

// Owner returns the current owner.
func (n *Node) Owner() (common.Address, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Owner()
}

// StateRoot returns the Merkle root committed over the escrow state.
func (n *Node) StateRoot() (common.Hash, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return trie.Root(n.db, nil)
}

func (n *Node) Relayer() common.Address  { return n.relayer.Address() }
func (n *Node) Escrow() common.Address   { return n.escrow }
func (n *Node) Domain() claimlink.Domain { return n.engine.Domain() }
func (n *Node) ChainID() *big.Int        { return new(big.Int).Set(n.chainID) }

// Close stops event delivery and closes the journal and database.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	err := n.feed.close()
	n.db.Close()
	return err
}
