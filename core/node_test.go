package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"claimlink/core/events"
	"claimlink/crypto"
	"claimlink/native/assets"
	"claimlink/native/claimlink"
	"claimlink/storage"
)

var (
	testEscrow = common.HexToAddress("0x00000000000000000000000000000000000e5c20")
	testToken  = common.HexToAddress("0x0000000000000000000000000000000000007001")
	testNFT    = common.HexToAddress("0x0000000000000000000000000000000000007210")
	testBob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type nodeFixture struct {
	t       *testing.T
	node    *Node
	db      storage.Database
	relayer *crypto.PrivateKey
	owner   *crypto.PrivateKey
	sender  *crypto.PrivateKey
	now     int64
}

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func newNodeFixture(t *testing.T, journal *storage.EventLog) *nodeFixture {
	t.Helper()
	f := &nodeFixture{
		t:       t,
		db:      storage.NewMemDB(),
		relayer: newKey(t),
		owner:   newKey(t),
		sender:  newKey(t),
		now:     1_700_000_000,
	}
	f.node = f.open(journal)
	ctx := context.Background()
	seeded, err := f.node.Seed(ctx, []Allocation{
		{Asset: claimlink.NativeAsset, Holder: f.sender.Address(), Amount: big.NewInt(1_000)},
		{Asset: testToken, Holder: f.sender.Address(), Amount: big.NewInt(500)},
		{Asset: testNFT, Holder: f.sender.Address(), TokenID: big.NewInt(7)},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !seeded {
		t.Fatalf("expected first seed to mint")
	}
	return f
}

func (f *nodeFixture) open(journal *storage.EventLog) *Node {
	f.t.Helper()
	node, err := NewNode(Options{
		DB:         f.db,
		Journal:    journal,
		Escrow:     testEscrow,
		Owner:      f.owner.Address(),
		RelayerKey: f.relayer,
		ChainID:    31337,
		Fees: FeeSchedule{Flat: map[common.Address]*big.Int{
			claimlink.NativeAsset: big.NewInt(10),
			testToken:             big.NewInt(3),
		}},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() int64 { return f.now },
	})
	if err != nil {
		f.t.Fatalf("new node: %v", err)
	}
	if err := node.RegisterAsset(AssetSpec{
		Address: testToken,
		Kind:    claimlink.KindFungible,
		Meta:    assets.Metadata{Name: "Test Dollar", Symbol: "TUSD", Version: "1", Decimals: 6},
	}); err != nil {
		f.t.Fatalf("register token: %v", err)
	}
	if err := node.RegisterAsset(AssetSpec{Address: testNFT, Kind: claimlink.KindSingleNFT}); err != nil {
		f.t.Fatalf("register nft: %v", err)
	}
	return node
}

func (f *nodeFixture) balance(asset, holder common.Address, tokenID int64) int64 {
	f.t.Helper()
	bal, err := f.node.BalanceOf(asset, holder, big.NewInt(tokenID))
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func (f *nodeFixture) depositNative(link *crypto.PrivateKey, amount int64) {
	f.t.Helper()
	exp := uint64(f.now + 3600)
	quote, err := f.node.QuoteFee(QuoteRequest{
		Sender:     f.sender.Address(),
		Asset:      claimlink.NativeAsset,
		TransferID: link.Address(),
		Amount:     big.NewInt(amount),
		Expiration: exp,
		FeeAsset:   claimlink.NativeAsset,
	})
	if err != nil {
		f.t.Fatalf("quote: %v", err)
	}
	err = f.node.Deposit(context.Background(), claimlink.Call{Caller: f.sender.Address(), Value: big.NewInt(amount)}, claimlink.DepositRequest{
		Asset:            claimlink.NativeAsset,
		TransferID:       link.Address(),
		Amount:           big.NewInt(amount),
		Expiration:       exp,
		FeeAsset:         claimlink.NativeAsset,
		FeeAmount:        quote.FeeAmount,
		FeeAuthorization: quote.Signature,
		Message:          []byte("hi"),
	})
	if err != nil {
		f.t.Fatalf("deposit: %v", err)
	}
}

func TestNodeDepositRedeemPublishesEvents(t *testing.T) {
	f := newNodeFixture(t, nil)
	ctx := context.Background()
	stream, cancel := f.node.Subscribe()
	defer cancel()

	link := newKey(t)
	f.depositNative(link, 100)

	sig, err := claimlink.SignReceiver(link.PrivateKey, testBob)
	if err != nil {
		t.Fatalf("sign receiver: %v", err)
	}
	if err := f.node.Redeem(ctx, claimlink.RedeemRequest{
		Receiver: testBob, Sender: f.sender.Address(), Asset: claimlink.NativeAsset, ReceiverSig: sig,
	}); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got := f.balance(claimlink.NativeAsset, testBob, 0); got != 90 {
		t.Fatalf("receiver balance = %d, want 90", got)
	}
	fees, err := f.node.AccruedFees(claimlink.NativeAsset)
	if err != nil || fees.Int64() != 10 {
		t.Fatalf("accrued fees = %v (%v), want 10", fees, err)
	}

	wantTypes := []string{events.TypeDepositCreated, events.TypeSenderMessage, events.TypeRedeemed}
	for i, want := range wantTypes {
		select {
		case rec := <-stream:
			if rec.Type != want || rec.Sequence != int64(i+1) {
				t.Fatalf("event %d = %s/%d, want %s/%d", i, rec.Type, rec.Sequence, want, i+1)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	page, err := f.node.Events(ctx, 1, 10, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(page) != 2 || page[0].Type != events.TypeSenderMessage {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestNodeFailedCallLeavesNoTrace(t *testing.T) {
	f := newNodeFixture(t, nil)
	ctx := context.Background()
	link := newKey(t)
	f.depositNative(link, 100)
	before, _ := f.node.Events(ctx, 0, 100, "")

	wrong := newKey(t)
	sig, err := claimlink.SignReceiver(wrong.PrivateKey, testBob)
	if err != nil {
		t.Fatalf("sign receiver: %v", err)
	}
	err = f.node.Redeem(ctx, claimlink.RedeemRequest{
		Receiver: testBob, Sender: f.sender.Address(), Asset: claimlink.NativeAsset, ReceiverSig: sig,
	})
	if !errors.Is(err, claimlink.ErrInvalidReceiverSignature) {
		t.Fatalf("expected invalid receiver signature, got %v", err)
	}
	after, _ := f.node.Events(ctx, 0, 100, "")
	if len(after) != len(before) {
		t.Fatalf("failed call published events: %d -> %d", len(before), len(after))
	}
	d, err := f.node.GetDeposit(claimlink.NativeAsset, f.sender.Address(), link.Address())
	if err != nil || d.Amount.Int64() != 90 {
		t.Fatalf("deposit = %+v (%v), want 90 locked", d, err)
	}
	if f.node.state.Pending() != 0 {
		t.Fatalf("journal not discarded")
	}
}

func TestNodeStatePersistsAcrossRestart(t *testing.T) {
	f := newNodeFixture(t, nil)
	ctx := context.Background()
	link := newKey(t)
	f.depositNative(link, 100)

	next := newKey(t)
	if err := f.node.TransferOwnership(ctx, f.owner.Address(), next.Address()); err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}

	restarted := f.open(nil)
	f.node = restarted
	d, err := restarted.GetDeposit(claimlink.NativeAsset, f.sender.Address(), link.Address())
	if err != nil || d.Amount.Int64() != 90 {
		t.Fatalf("deposit after restart = %+v (%v)", d, err)
	}
	owner, err := restarted.Owner()
	if err != nil || owner != next.Address() {
		t.Fatalf("owner after restart = %s (%v), want %s", owner.Hex(), err, next.Address().Hex())
	}
	seeded, err := restarted.Seed(ctx, []Allocation{{Asset: claimlink.NativeAsset, Holder: f.sender.Address(), Amount: big.NewInt(1)}})
	if err != nil || seeded {
		t.Fatalf("second seed should be a no-op, got seeded=%v err=%v", seeded, err)
	}
	if got := f.balance(claimlink.NativeAsset, f.sender.Address(), 0); got != 900 {
		t.Fatalf("sender balance = %d, want 900", got)
	}
}

func TestNodeQuoteFee(t *testing.T) {
	f := newNodeFixture(t, nil)
	link := newKey(t)
	base := QuoteRequest{
		Sender:     f.sender.Address(),
		Asset:      testToken,
		TransferID: link.Address(),
		Amount:     big.NewInt(50),
		Expiration: uint64(f.now + 60),
		FeeAsset:   testToken,
	}

	quote, err := f.node.QuoteFee(base)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.FeeAmount.Int64() != 3 {
		t.Fatalf("fee = %s, want 3", quote.FeeAmount)
	}
	msg, err := claimlink.FeeAuthorizationMessage(quote.FeeQuote)
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if !(crypto.Verifier{}).VerifyHash(msg, quote.Signature, f.relayer.Address()) {
		t.Fatalf("quote not signed by relayer")
	}

	small := base
	small.Amount = big.NewInt(3)
	if _, err := f.node.QuoteFee(small); !errors.Is(err, claimlink.ErrFeeExceedsAmount) {
		t.Fatalf("expected fee exceeds amount, got %v", err)
	}
	nft := base
	nft.Asset = testNFT
	nft.TokenID = big.NewInt(7)
	nft.Amount = nil
	if _, err := f.node.QuoteFee(nft); !errors.Is(err, claimlink.ErrInvalidFeeAsset) {
		t.Fatalf("expected native-only fee for nft, got %v", err)
	}
	nft.FeeAsset = claimlink.NativeAsset
	nftQuote, err := f.node.QuoteFee(nft)
	if err != nil {
		t.Fatalf("nft quote: %v", err)
	}
	if nftQuote.Amount.Int64() != 1 || nftQuote.FeeAmount.Int64() != 10 {
		t.Fatalf("unexpected nft quote %+v", nftQuote.FeeQuote)
	}

	f.node.fees = FeeSchedule{}
	if _, err := f.node.QuoteFee(base); !errors.Is(err, ErrFeeNotQuoted) {
		t.Fatalf("expected fee not quoted, got %v", err)
	}
	f.node.fees = FeeSchedule{Sponsored: true}
	sponsored, err := f.node.QuoteFee(base)
	if err != nil || sponsored.FeeAmount.Sign() != 0 {
		t.Fatalf("sponsored quote = %+v (%v)", sponsored, err)
	}
}

func TestNodeNFTTransferToEscrowDeposits(t *testing.T) {
	journal, err := storage.OpenEventLog(":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	f := newNodeFixture(t, journal)
	defer f.node.Close()
	ctx := context.Background()
	link := newKey(t)
	exp := uint64(f.now + 600)

	sig, err := claimlink.SignFeeAuthorization(f.relayer.PrivateKey, claimlink.FeeQuote{
		Sender: f.sender.Address(), Asset: testNFT, TransferID: link.Address(), TokenID: big.NewInt(7),
		Amount: big.NewInt(1), Expiration: exp, FeeAsset: claimlink.NativeAsset, FeeAmount: big.NewInt(0),
	})
	if err != nil {
		t.Fatalf("sign fee: %v", err)
	}
	payload, err := claimlink.EncodeHookPayload(claimlink.HookPayload{
		TransferID: link.Address(), Expiration: exp, FeeAmount: big.NewInt(0), FeeAuthorization: sig,
	})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	if err := f.node.Transfer(ctx, f.sender.Address(), testNFT, testEscrow, big.NewInt(7), nil, payload); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := f.balance(testNFT, testEscrow, 7); got != 1 {
		t.Fatalf("escrow should hold token 7")
	}
	records, err := f.node.Events(ctx, 0, 10, events.TypeDepositCreated)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(records) != 1 || records[0].Attributes["tokenId"] != "7" {
		t.Fatalf("unexpected journal %+v", records)
	}

	if err := f.node.Transfer(ctx, testBob, testNFT, testEscrow, big.NewInt(7), nil, []byte{0x01}); err == nil {
		t.Fatalf("expected transfer from non-owner to fail")
	}
}

func TestNodeWithdrawRequiresOwner(t *testing.T) {
	f := newNodeFixture(t, nil)
	ctx := context.Background()
	f.depositNative(newKey(t), 100)

	if _, err := f.node.WithdrawAccruedFees(ctx, f.sender.Address(), claimlink.NativeAsset); !errors.Is(err, claimlink.ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	amount, err := f.node.WithdrawAccruedFees(ctx, f.owner.Address(), claimlink.NativeAsset)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Int64() != 10 || f.balance(claimlink.NativeAsset, f.owner.Address(), 0) != 10 {
		t.Fatalf("withdrawn %s, owner balance %d", amount, f.balance(claimlink.NativeAsset, f.owner.Address(), 0))
	}
}

func TestNodeClosedRejectsCalls(t *testing.T) {
	f := newNodeFixture(t, nil)
	_, cancel := f.node.Subscribe()
	defer cancel()
	if err := f.node.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	err := f.node.Refund(context.Background(), f.sender.Address(), claimlink.NativeAsset, testBob)
	if !errors.Is(err, ErrNodeClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}
