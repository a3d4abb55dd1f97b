package claimlink_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"claimlink/core/events"
	"claimlink/core/state"
	"claimlink/crypto"
	"claimlink/native/assets"
	"claimlink/native/claimlink"
	"claimlink/storage"
)

const testChainID = 31337

var (
	escrowAddr = common.HexToAddress("0x00000000000000000000000000000000000e5c20")
	tokenAddr  = common.HexToAddress("0x0000000000000000000000000000000000007001")
	nftAddr    = common.HexToAddress("0x0000000000000000000000000000000000007210")
	multiAddr  = common.HexToAddress("0x0000000000000000000000000000000000001155")
	receiver   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type harness struct {
	t       *testing.T
	engine  *claimlink.Engine
	mgr     *state.Manager
	reg     *assets.Registry
	rec     *events.Recorder
	now     int64
	relayer *crypto.PrivateKey
	owner   *crypto.PrivateKey
	sender  *crypto.PrivateKey
	token   *assets.Fungible
	nft     *assets.SingleNFT
	multi   *assets.MultiToken
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		mgr:     state.NewManager(storage.NewMemDB()),
		rec:     &events.Recorder{},
		now:     1_700_000_000,
		relayer: mustKey(t),
		owner:   mustKey(t),
		sender:  mustKey(t),
	}
	clock := func() int64 { return h.now }
	h.reg = assets.NewRegistry(h.mgr, escrowAddr, big.NewInt(testChainID), crypto.Verifier{})
	h.reg.SetNowFunc(clock)

	h.engine = claimlink.NewEngine(claimlink.Config{
		Address: escrowAddr,
		Owner:   h.owner.Address(),
		Relayer: h.relayer.Address(),
		Domain:  claimlink.Domain{ChainID: big.NewInt(testChainID)},
	})
	h.engine.SetState(h.mgr)
	h.engine.SetAssets(h.reg)
	h.engine.SetVerifier(crypto.Verifier{})
	h.engine.SetNowFunc(clock)
	h.engine.SetEmitter(h.rec)
	if err := h.engine.Bootstrap(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	h.reg.SetReceiver(escrowAddr, h.engine)

	var err error
	if h.token, err = h.reg.RegisterFungible(tokenAddr, assets.Metadata{Name: "USD Coin", Symbol: "USDC", Version: "2", Decimals: 6}); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if h.nft, err = h.reg.RegisterSingleNFT(nftAddr); err != nil {
		t.Fatalf("register nft: %v", err)
	}
	if h.multi, err = h.reg.RegisterMultiToken(multiAddr); err != nil {
		t.Fatalf("register multi: %v", err)
	}
	if err := h.reg.Native().Mint(h.sender.Address(), big.NewInt(1000)); err != nil {
		t.Fatalf("mint native: %v", err)
	}
	return h
}

func (h *harness) relayerCall() claimlink.Call {
	return claimlink.Call{Caller: h.relayer.Address()}
}

func (h *harness) senderCall(value int64) claimlink.Call {
	return claimlink.Call{Caller: h.sender.Address(), Value: big.NewInt(value)}
}

func (h *harness) feeAuth(q claimlink.FeeQuote) []byte {
	h.t.Helper()
	sig, err := claimlink.SignFeeAuthorization(h.relayer.PrivateKey, q)
	if err != nil {
		h.t.Fatalf("sign fee authorization: %v", err)
	}
	return sig
}

func (h *harness) balance(asset, holder common.Address, tokenID int64) int64 {
	h.t.Helper()
	backend, err := h.reg.Backend(asset)
	if err != nil {
		h.t.Fatalf("backend: %v", err)
	}
	bal, err := backend.BalanceOf(holder, big.NewInt(tokenID))
	if err != nil {
		h.t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func (h *harness) deposited(asset, sender, transferID common.Address) int64 {
	h.t.Helper()
	d, err := h.engine.GetDeposit(asset, sender, transferID)
	if err != nil {
		h.t.Fatalf("get deposit: %v", err)
	}
	return d.Amount.Int64()
}

func (h *harness) fees(denom common.Address) int64 {
	h.t.Helper()
	fees, err := h.engine.AccruedFees(denom)
	if err != nil {
		h.t.Fatalf("accrued fees: %v", err)
	}
	return fees.Int64()
}

// depositNative locks amount of native value with a native fee netted from it.
func (h *harness) depositNative(link *crypto.PrivateKey, amount, fee int64, expiration uint64) error {
	h.t.Helper()
	req := claimlink.DepositRequest{
		Asset:      claimlink.NativeAsset,
		TransferID: link.Address(),
		Amount:     big.NewInt(amount),
		Expiration: expiration,
		FeeAsset:   claimlink.NativeAsset,
		FeeAmount:  big.NewInt(fee),
	}
	req.FeeAuthorization = h.feeAuth(claimlink.FeeQuote{
		Sender:     h.sender.Address(),
		Asset:      req.Asset,
		TransferID: req.TransferID,
		Amount:     req.Amount,
		Expiration: expiration,
		FeeAsset:   req.FeeAsset,
		FeeAmount:  req.FeeAmount,
	})
	return h.engine.Deposit(h.senderCall(amount), req)
}

func (h *harness) redeem(link *crypto.PrivateKey, asset common.Address, to common.Address) error {
	h.t.Helper()
	sig, err := claimlink.SignReceiver(link.PrivateKey, to)
	if err != nil {
		h.t.Fatalf("sign receiver: %v", err)
	}
	return h.engine.Redeem(h.relayerCall(), claimlink.RedeemRequest{
		Receiver:    to,
		Sender:      h.sender.Address(),
		Asset:       asset,
		ReceiverSig: sig,
	})
}

func TestNativeDepositAndRedeem(t *testing.T) {
	h := newHarness(t)
	link := mustKey(t)
	exp := uint64(h.now + 3600)

	if err := h.depositNative(link, 100, 10, exp); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := h.deposited(claimlink.NativeAsset, h.sender.Address(), link.Address()); got != 90 {
		t.Fatalf("expected deposit of 90, got %d", got)
	}
	if got := h.fees(claimlink.NativeAsset); got != 10 {
		t.Fatalf("expected 10 accrued, got %d", got)
	}
	if got := h.balance(claimlink.NativeAsset, escrowAddr, 0); got != 100 {
		t.Fatalf("expected escrow to hold 100, got %d", got)
	}
	if got := h.balance(claimlink.NativeAsset, h.sender.Address(), 0); got != 900 {
		t.Fatalf("expected sender balance 900, got %d", got)
	}

	if err := h.redeem(link, claimlink.NativeAsset, receiver); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got := h.balance(claimlink.NativeAsset, receiver, 0); got != 90 {
		t.Fatalf("expected receiver to get 90, got %d", got)
	}
	if got := h.deposited(claimlink.NativeAsset, h.sender.Address(), link.Address()); got != 0 {
		t.Fatalf("expected cleared deposit, got %d", got)
	}

	evts := h.rec.Events()
	if len(evts) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evts))
	}
	created, ok := evts[0].(events.DepositCreated)
	if !ok || created.Amount.Int64() != 90 || created.FeeAmount.Int64() != 10 || created.Kind != "native" {
		t.Fatalf("unexpected deposit event %#v", evts[0])
	}
	redeemed, ok := evts[1].(events.Redeemed)
	if !ok || redeemed.Receiver != receiver || redeemed.Recovered {
		t.Fatalf("unexpected redeem event %#v", evts[1])
	}

	if err := h.redeem(link, claimlink.NativeAsset, receiver); !errors.Is(err, claimlink.ErrDepositNotFound) {
		t.Fatalf("expected second redeem to fail with not found, got %v", err)
	}
}

func TestDepositRejections(t *testing.T) {
	h := newHarness(t)
	link := mustKey(t)

	if err := h.depositNative(link, 100, 10, uint64(h.now)); !errors.Is(err, claimlink.ErrInvalidExpiration) {
		t.Fatalf("expected invalid expiration, got %v", err)
	}
	if err := h.depositNative(link, 100, 100, uint64(h.now+60)); !errors.Is(err, claimlink.ErrInvalidAmount) {
		t.Fatalf("expected zero net deposit to fail, got %v", err)
	}
	if err := h.depositNative(link, 100, 101, uint64(h.now+60)); !errors.Is(err, claimlink.ErrFeeExceedsAmount) {
		t.Fatalf("expected fee above amount to fail, got %v", err)
	}

	req := claimlink.DepositRequest{
		Asset:      claimlink.NativeAsset,
		TransferID: link.Address(),
		Amount:     big.NewInt(100),
		Expiration: uint64(h.now + 60),
		FeeAsset:   claimlink.NativeAsset,
		FeeAmount:  big.NewInt(10),
	}
	forged, err := claimlink.SignFeeAuthorization(h.sender.PrivateKey, claimlink.FeeQuote{
		Sender: h.sender.Address(), Asset: req.Asset, TransferID: req.TransferID,
		Amount: req.Amount, Expiration: req.Expiration, FeeAsset: req.FeeAsset, FeeAmount: req.FeeAmount,
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req.FeeAuthorization = forged
	if err := h.engine.Deposit(h.senderCall(100), req); !errors.Is(err, claimlink.ErrInvalidFeeAuthorization) {
		t.Fatalf("expected forged fee authorization to fail, got %v", err)
	}

	// A valid quote does not cover a different fee.
	req.FeeAuthorization = h.feeAuth(claimlink.FeeQuote{
		Sender: h.sender.Address(), Asset: req.Asset, TransferID: req.TransferID,
		Amount: req.Amount, Expiration: req.Expiration, FeeAsset: req.FeeAsset, FeeAmount: big.NewInt(9),
	})
	if err := h.engine.Deposit(h.senderCall(100), req); !errors.Is(err, claimlink.ErrInvalidFeeAuthorization) {
		t.Fatalf("expected mismatched quote to fail, got %v", err)
	}

	if err := h.depositNative(link, 100, 10, uint64(h.now+60)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.depositNative(link, 100, 10, uint64(h.now+60)); !errors.Is(err, claimlink.ErrDepositExists) {
		t.Fatalf("expected duplicate deposit to fail, got %v", err)
	}
	if got := h.balance(claimlink.NativeAsset, h.sender.Address(), 0); got != 900 {
		t.Fatalf("failed deposits moved value: sender has %d", got)
	}
	if h.rec.Len() != 1 {
		t.Fatalf("expected only the successful deposit to emit, got %d events", h.rec.Len())
	}

	unknown := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	req.Asset = unknown
	if err := h.engine.Deposit(h.senderCall(0), req); !errors.Is(err, claimlink.ErrUnsupportedAsset) {
		t.Fatalf("expected unsupported asset, got %v", err)
	}
}

func TestNativeDepositValueMismatch(t *testing.T) {
	h := newHarness(t)
	link := mustKey(t)
	exp := uint64(h.now + 60)
	req := claimlink.DepositRequest{
		Asset:      claimlink.NativeAsset,
		TransferID: link.Address(),
		Amount:     big.NewInt(100),
		Expiration: exp,
		FeeAsset:   claimlink.NativeAsset,
		FeeAmount:  big.NewInt(0),
	}
	req.FeeAuthorization = h.feeAuth(claimlink.FeeQuote{
		Sender: h.sender.Address(), Asset: req.Asset, TransferID: req.TransferID,
		Amount: req.Amount, Expiration: exp, FeeAsset: req.FeeAsset, FeeAmount: req.FeeAmount,
	})
	if err := h.engine.Deposit(h.senderCall(99), req); !errors.Is(err, claimlink.ErrValueMismatch) {
		t.Fatalf("expected value mismatch, got %v", err)
	}
	if err := h.engine.Deposit(h.senderCall(100), req); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := h.deposited(claimlink.NativeAsset, h.sender.Address(), link.Address()); got != 100 {
		t.Fatalf("expected fee-free deposit of 100, got %d", got)
	}
}

func TestFungibleDepositFees(t *testing.T) {
	h := newHarness(t)
	sender := h.sender.Address()
	if err := h.token.Mint(sender, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := h.token.Approve(sender, escrowAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	exp := uint64(h.now + 3600)

	tokenFeeLink := mustKey(t)
	req := claimlink.DepositRequest{
		Asset:      tokenAddr,
		TransferID: tokenFeeLink.Address(),
		Amount:     big.NewInt(200),
		Expiration: exp,
		FeeAsset:   tokenAddr,
		FeeAmount:  big.NewInt(20),
		Message:    []byte("happy birthday"),
	}
	req.FeeAuthorization = h.feeAuth(claimlink.FeeQuote{
		Sender: sender, Asset: tokenAddr, TransferID: req.TransferID,
		Amount: req.Amount, Expiration: exp, FeeAsset: tokenAddr, FeeAmount: req.FeeAmount,
	})
	if err := h.engine.Deposit(h.senderCall(1), req); !errors.Is(err, claimlink.ErrValueMismatch) {
		t.Fatalf("expected attached value to be rejected, got %v", err)
	}
	if err := h.engine.Deposit(h.senderCall(0), req); err != nil {
		t.Fatalf("deposit with token fee: %v", err)
	}
	if got := h.deposited(tokenAddr, sender, tokenFeeLink.Address()); got != 180 {
		t.Fatalf("expected net deposit 180, got %d", got)
	}
	if got := h.fees(tokenAddr); got != 20 {
		t.Fatalf("expected 20 token fees, got %d", got)
	}

	nativeFeeLink := mustKey(t)
	req = claimlink.DepositRequest{
		Asset:      tokenAddr,
		TransferID: nativeFeeLink.Address(),
		Amount:     big.NewInt(300),
		Expiration: exp,
		FeeAsset:   claimlink.NativeAsset,
		FeeAmount:  big.NewInt(5),
	}
	req.FeeAuthorization = h.feeAuth(claimlink.FeeQuote{
		Sender: sender, Asset: tokenAddr, TransferID: req.TransferID,
		Amount: req.Amount, Expiration: exp, FeeAsset: claimlink.NativeAsset, FeeAmount: req.FeeAmount,
	})
	if err := h.engine.Deposit(h.senderCall(4), req); !errors.Is(err, claimlink.ErrValueMismatch) {
		t.Fatalf("expected short native fee to fail, got %v", err)
	}
	if err := h.engine.Deposit(h.senderCall(5), req); err != nil {
		t.Fatalf("deposit with native fee: %v", err)
	}
	if got := h.deposited(tokenAddr, sender, nativeFeeLink.Address()); got != 300 {
		t.Fatalf("expected full deposit 300, got %d", got)
	}
	if got := h.fees(claimlink.NativeAsset); got != 5 {
		t.Fatalf("expected 5 native fees, got %d", got)
	}
	if got := h.balance(tokenAddr, escrowAddr, 0); got != 500 {
		t.Fatalf("expected escrow to hold 500 tokens, got %d", got)
	}

	evts := h.rec.Events()
	if len(evts) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evts))
	}
	msg, ok := evts[1].(events.SenderMessage)
	if !ok || string(msg.Message) != "happy birthday" {
		t.Fatalf("expected sender message event, got %#v", evts[1])
	}

	if err := h.redeem(tokenFeeLink, tokenAddr, receiver); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got := h.balance(tokenAddr, receiver, 0); got != 180 {
		t.Fatalf("expected receiver to get 180 tokens, got %d", got)
	}
}

func TestNFTDepositAndRedeem(t *testing.T) {
	h := newHarness(t)
	sender := h.sender.Address()
	tokenID := big.NewInt(7)
	if err := h.nft.Mint(sender, tokenID); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := h.nft.Approve(sender, escrowAddr, tokenID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	link := mustKey(t)
	exp := uint64(h.now + 3600)
	req := claimlink.NFTDepositRequest{
		Asset:      nftAddr,
		TransferID: link.Address(),
		TokenID:    tokenID,
		Expiration: exp,
		FeeAmount:  big.NewInt(3),
	}
	req.FeeAuthorization = h.feeAuth(claimlink.FeeQuote{
		Sender: sender, Asset: nftAddr, TransferID: req.TransferID, TokenID: tokenID,
		Amount: big.NewInt(1), Expiration: exp, FeeAsset: claimlink.NativeAsset, FeeAmount: req.FeeAmount,
	})
	if err := h.engine.DepositNFT(h.senderCall(0), req); !errors.Is(err, claimlink.ErrValueMismatch) {
		t.Fatalf("expected missing fee value to fail, got %v", err)
	}
	if err := h.engine.DepositNFT(h.senderCall(3), req); err != nil {
		t.Fatalf("deposit nft: %v", err)
	}
	owner, err := h.nft.OwnerOf(tokenID)
	if err != nil || owner != escrowAddr {
		t.Fatalf("expected escrow to own token, got %s (%v)", owner.Hex(), err)
	}
	if got := h.fees(claimlink.NativeAsset); got != 3 {
		t.Fatalf("expected 3 native fees, got %d", got)
	}

	if err := h.redeem(link, nftAddr, receiver); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	owner, err = h.nft.OwnerOf(tokenID)
	if err != nil || owner != receiver {
		t.Fatalf("expected receiver to own token, got %s (%v)", owner.Hex(), err)
	}
}

func TestDepositNFTRejectsFungible(t *testing.T) {
	h := newHarness(t)
	err := h.engine.DepositNFT(h.senderCall(0), claimlink.NFTDepositRequest{
		Asset:      tokenAddr,
		TransferID: mustKey(t).Address(),
		Expiration: uint64(h.now + 60),
	})
	if !errors.Is(err, claimlink.ErrAssetKind) {
		t.Fatalf("expected asset kind error, got %v", err)
	}
}

func (h *harness) hookPayload(asset common.Address, link *crypto.PrivateKey, tokenID, amount, fee int64, exp uint64) []byte {
	h.t.Helper()
	payload, err := claimlink.EncodeHookPayload(claimlink.HookPayload{
		TransferID: link.Address(),
		Expiration: exp,
		FeeAmount:  big.NewInt(fee),
		FeeAuthorization: h.feeAuth(claimlink.FeeQuote{
			Sender: h.sender.Address(), Asset: asset, TransferID: link.Address(), TokenID: big.NewInt(tokenID),
			Amount: big.NewInt(amount), Expiration: exp, FeeAsset: claimlink.NativeAsset, FeeAmount: big.NewInt(fee),
		}),
	})
	if err != nil {
		h.t.Fatalf("encode payload: %v", err)
	}
	return payload
}

func TestMultiTokenDepositViaHook(t *testing.T) {
	h := newHarness(t)
	sender := h.sender.Address()
	id := big.NewInt(3)
	if err := h.multi.Mint(sender, id, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	link := mustKey(t)
	exp := uint64(h.now + 3600)
	payload := h.hookPayload(multiAddr, link, 3, 4, 0, exp)

	if err := h.multi.SafeTransferFrom(sender, sender, escrowAddr, id, big.NewInt(4), payload); err != nil {
		t.Fatalf("safe transfer: %v", err)
	}
	if got := h.deposited(multiAddr, sender, link.Address()); got != 4 {
		t.Fatalf("expected deposit of 4, got %d", got)
	}
	created, ok := h.rec.Events()[0].(events.DepositCreated)
	if !ok || created.Kind != "erc1155" || created.TokenID.Int64() != 3 {
		t.Fatalf("unexpected deposit event %#v", h.rec.Events()[0])
	}

	if err := h.multi.SafeBatchTransferFrom(sender, sender, escrowAddr, []*big.Int{id}, []*big.Int{big.NewInt(1)}, payload); !errors.Is(err, claimlink.ErrBatchUnsupported) {
		t.Fatalf("expected batch receipt to be rejected, got %v", err)
	}
	if got := h.balance(multiAddr, sender, 3); got != 6 {
		t.Fatalf("expected rejected batch to leave 6 with sender, got %d", got)
	}

	if err := h.redeem(link, multiAddr, receiver); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got := h.balance(multiAddr, receiver, 3); got != 4 {
		t.Fatalf("expected receiver to hold 4, got %d", got)
	}
}

func TestHookFailureReturnsToken(t *testing.T) {
	h := newHarness(t)
	sender := h.sender.Address()
	tokenID := big.NewInt(11)
	if err := h.nft.Mint(sender, tokenID); err != nil {
		t.Fatalf("mint: %v", err)
	}
	link := mustKey(t)
	exp := uint64(h.now + 3600)

	withFee := h.hookPayload(nftAddr, link, 11, 1, 5, exp)
	if err := h.nft.SafeTransferFrom(sender, sender, escrowAddr, tokenID, withFee); !errors.Is(err, claimlink.ErrFeeNotAllowed) {
		t.Fatalf("expected fee on hook path to fail, got %v", err)
	}
	expired := h.hookPayload(nftAddr, link, 11, 1, 0, uint64(h.now))
	if err := h.nft.SafeTransferFrom(sender, sender, escrowAddr, tokenID, expired); !errors.Is(err, claimlink.ErrInvalidExpiration) {
		t.Fatalf("expected expired hook deposit to fail, got %v", err)
	}
	err := h.nft.SafeTransferFrom(sender, sender, escrowAddr, tokenID, []byte{0x01})
	if !errors.Is(err, claimlink.ErrInvalidHookPayload) {
		t.Fatalf("expected malformed payload to fail, got %v", err)
	}
	if got := claimlink.CategoryOf(err); got != claimlink.CategoryValue {
		t.Fatalf("malformed payload category = %s", got)
	}
	owner, err := h.nft.OwnerOf(tokenID)
	if err != nil || owner != sender {
		t.Fatalf("expected sender to keep token, got %s (%v)", owner.Hex(), err)
	}
	if h.rec.Len() != 0 {
		t.Fatalf("expected no events, got %d", h.rec.Len())
	}

	valid := h.hookPayload(nftAddr, link, 11, 1, 0, exp)
	if err := h.nft.SafeTransferFrom(sender, sender, escrowAddr, tokenID, valid); err != nil {
		t.Fatalf("safe transfer: %v", err)
	}
	if got := h.deposited(nftAddr, sender, link.Address()); got != 1 {
		t.Fatalf("expected nft deposit, got %d", got)
	}
}

func (h *harness) authorizedDeposit(kind claimlink.AuthorizationKind, link *crypto.PrivateKey, value, fee int64, exp uint64, escrow common.Address) claimlink.AuthorizedDepositRequest {
	h.t.Helper()
	encoded, err := claimlink.SignAuthorization(h.sender.PrivateKey, claimlink.AuthorizationParams{
		Kind:        kind,
		TokenDomain: h.token.Domain(),
		Escrow:      escrow,
		TransferID:  link.Address(),
		Value:       big.NewInt(value),
		Expiration:  exp,
		Fee:         big.NewInt(fee),
		ValidAfter:  big.NewInt(0),
		ValidBefore: big.NewInt(h.now + 600),
	})
	if err != nil {
		h.t.Fatalf("sign authorization: %v", err)
	}
	return claimlink.AuthorizedDepositRequest{
		Asset:         tokenAddr,
		TransferID:    link.Address(),
		Expiration:    exp,
		Selector:      kind.Selector(),
		FeeAmount:     big.NewInt(fee),
		Authorization: encoded,
	}
}

func TestDepositWithAuthorization(t *testing.T) {
	for _, kind := range []claimlink.AuthorizationKind{claimlink.AuthorizationReceive, claimlink.AuthorizationApprove} {
		h := newHarness(t)
		sender := h.sender.Address()
		if err := h.token.Mint(sender, big.NewInt(100)); err != nil {
			t.Fatalf("mint: %v", err)
		}
		link := mustKey(t)
		exp := uint64(h.now + 3600)
		req := h.authorizedDeposit(kind, link, 100, 10, exp, escrowAddr)

		if err := h.engine.DepositWithAuthorization(h.relayerCall(), req); err != nil {
			t.Fatalf("kind %d: deposit with authorization: %v", kind, err)
		}
		if got := h.deposited(tokenAddr, sender, link.Address()); got != 90 {
			t.Fatalf("kind %d: expected deposit 90, got %d", kind, got)
		}
		if got := h.fees(tokenAddr); got != 10 {
			t.Fatalf("kind %d: expected 10 token fees, got %d", kind, got)
		}
		if got := h.balance(tokenAddr, escrowAddr, 0); got != 100 {
			t.Fatalf("kind %d: expected escrow to hold 100, got %d", kind, got)
		}

		if err := h.redeem(link, tokenAddr, receiver); err != nil {
			t.Fatalf("kind %d: redeem: %v", kind, err)
		}
		if got := h.balance(tokenAddr, receiver, 0); got != 90 {
			t.Fatalf("kind %d: expected receiver to get 90, got %d", kind, got)
		}
	}
}

func TestDepositWithAuthorizationRejections(t *testing.T) {
	h := newHarness(t)
	sender := h.sender.Address()
	if err := h.token.Mint(sender, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	link := mustKey(t)
	exp := uint64(h.now + 3600)

	req := h.authorizedDeposit(claimlink.AuthorizationReceive, link, 100, 10, exp, escrowAddr)
	if err := h.engine.DepositWithAuthorization(claimlink.Call{Caller: sender}, req); !errors.Is(err, claimlink.ErrNotRelayer) {
		t.Fatalf("expected relayer check, got %v", err)
	}

	foreign := h.authorizedDeposit(claimlink.AuthorizationReceive, link, 100, 10, exp, receiver)
	if err := h.engine.DepositWithAuthorization(h.relayerCall(), foreign); !errors.Is(err, claimlink.ErrAuthorizationRecipient) {
		t.Fatalf("expected recipient check, got %v", err)
	}

	badSelector := req
	badSelector.Selector = [4]byte{0x01, 0x02, 0x03, 0x04}
	if err := h.engine.DepositWithAuthorization(h.relayerCall(), badSelector); !errors.Is(err, claimlink.ErrUnknownSelector) {
		t.Fatalf("expected unknown selector, got %v", err)
	}

	unbound := req
	unbound.FeeAmount = big.NewInt(11)
	if err := h.engine.DepositWithAuthorization(h.relayerCall(), unbound); !errors.Is(err, claimlink.ErrAuthorizationNonce) {
		t.Fatalf("expected nonce binding check, got %v", err)
	}

	stale := h.authorizedDeposit(claimlink.AuthorizationReceive, link, 100, 10, uint64(h.now), escrowAddr)
	if err := h.engine.DepositWithAuthorization(h.relayerCall(), stale); !errors.Is(err, claimlink.ErrInvalidExpiration) {
		t.Fatalf("expected invalid expiration, got %v", err)
	}

	if err := h.engine.DepositWithAuthorization(h.relayerCall(), req); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.redeem(link, tokenAddr, receiver); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	err := h.engine.DepositWithAuthorization(h.relayerCall(), req)
	if !errors.Is(err, claimlink.ErrTransferFailed) || !errors.Is(err, claimlink.ErrInvalidAuthorization) {
		t.Fatalf("expected replayed authorization to fail, got %v", err)
	}
	if got := h.deposited(tokenAddr, sender, link.Address()); got != 0 {
		t.Fatalf("replay left a deposit of %d", got)
	}
	if got := h.fees(tokenAddr); got != 10 {
		t.Fatalf("replay changed fees to %d", got)
	}
}

func TestRedeemRecovered(t *testing.T) {
	h := newHarness(t)
	link := mustKey(t)
	if err := h.depositNative(link, 50, 0, uint64(h.now+3600)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	replacement := mustKey(t)
	receiverSig, err := claimlink.SignReceiver(replacement.PrivateKey, receiver)
	if err != nil {
		t.Fatalf("sign receiver: %v", err)
	}
	req := claimlink.RecoveredRedeemRequest{
		Receiver:    receiver,
		Sender:      h.sender.Address(),
		Asset:       claimlink.NativeAsset,
		TransferID:  link.Address(),
		ReceiverSig: receiverSig,
	}

	otherChain := h.engine.Domain()
	otherChain.ChainID = big.NewInt(1)
	if req.SenderSig, err = claimlink.SignTransfer(h.sender.PrivateKey, otherChain, replacement.Address(), link.Address()); err != nil {
		t.Fatalf("sign transfer: %v", err)
	}
	if err := h.engine.RedeemRecovered(h.relayerCall(), req); !errors.Is(err, claimlink.ErrInvalidSenderSignature) {
		t.Fatalf("expected foreign-chain proof to fail, got %v", err)
	}
	if req.SenderSig, err = claimlink.SignTransfer(h.relayer.PrivateKey, h.engine.Domain(), replacement.Address(), link.Address()); err != nil {
		t.Fatalf("sign transfer: %v", err)
	}
	if err := h.engine.RedeemRecovered(h.relayerCall(), req); !errors.Is(err, claimlink.ErrInvalidSenderSignature) {
		t.Fatalf("expected proof from non-sender to fail, got %v", err)
	}

	if req.SenderSig, err = claimlink.SignTransfer(h.sender.PrivateKey, h.engine.Domain(), replacement.Address(), link.Address()); err != nil {
		t.Fatalf("sign transfer: %v", err)
	}
	if err := h.engine.RedeemRecovered(claimlink.Call{Caller: receiver}, req); !errors.Is(err, claimlink.ErrNotRelayer) {
		t.Fatalf("expected relayer check, got %v", err)
	}
	if err := h.engine.RedeemRecovered(h.relayerCall(), req); err != nil {
		t.Fatalf("redeem recovered: %v", err)
	}
	if got := h.balance(claimlink.NativeAsset, receiver, 0); got != 50 {
		t.Fatalf("expected receiver to get 50, got %d", got)
	}
	evts := h.rec.Events()
	redeemed, ok := evts[len(evts)-1].(events.Redeemed)
	if !ok || !redeemed.Recovered {
		t.Fatalf("expected recovered redeem event, got %#v", evts[len(evts)-1])
	}
}

func TestRedeemWithWrongLinkKey(t *testing.T) {
	h := newHarness(t)
	link := mustKey(t)
	if err := h.depositNative(link, 50, 0, uint64(h.now+3600)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.redeem(mustKey(t), claimlink.NativeAsset, receiver); !errors.Is(err, claimlink.ErrDepositNotFound) {
		t.Fatalf("expected stranger key to find nothing, got %v", err)
	}
	err := h.engine.Redeem(h.relayerCall(), claimlink.RedeemRequest{
		Receiver:    receiver,
		Sender:      h.sender.Address(),
		Asset:       claimlink.NativeAsset,
		ReceiverSig: make([]byte, 65),
	})
	if !errors.Is(err, claimlink.ErrInvalidReceiverSignature) {
		t.Fatalf("expected malformed signature to fail, got %v", err)
	}
}

func TestRefundAfterExpiration(t *testing.T) {
	h := newHarness(t)
	link := mustKey(t)
	sender := h.sender.Address()
	if err := h.depositNative(link, 100, 10, uint64(h.now+86400)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.Refund(h.relayerCall(), sender, claimlink.NativeAsset, link.Address()); !errors.Is(err, claimlink.ErrNotYetExpired) {
		t.Fatalf("expected early refund to fail, got %v", err)
	}

	h.now += 90000
	if err := h.redeem(link, claimlink.NativeAsset, receiver); !errors.Is(err, claimlink.ErrDepositExpired) {
		t.Fatalf("expected expired redeem to fail, got %v", err)
	}
	if err := h.engine.Refund(claimlink.Call{Caller: sender}, sender, claimlink.NativeAsset, link.Address()); !errors.Is(err, claimlink.ErrNotRelayer) {
		t.Fatalf("expected relayer check, got %v", err)
	}
	if err := h.engine.Refund(h.relayerCall(), sender, claimlink.NativeAsset, link.Address()); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if got := h.balance(claimlink.NativeAsset, sender, 0); got != 990 {
		t.Fatalf("expected sender back to 990, got %d", got)
	}
	if got := h.fees(claimlink.NativeAsset); got != 10 {
		t.Fatalf("expected refund to keep fees, got %d", got)
	}
	if err := h.engine.Refund(h.relayerCall(), sender, claimlink.NativeAsset, link.Address()); !errors.Is(err, claimlink.ErrDepositNotFound) {
		t.Fatalf("expected second refund to fail, got %v", err)
	}
}

func TestExpirationBoundary(t *testing.T) {
	h := newHarness(t)
	link := mustKey(t)
	sender := h.sender.Address()
	if err := h.depositNative(link, 100, 10, uint64(h.now)); !errors.Is(err, claimlink.ErrInvalidExpiration) {
		t.Fatalf("expected expiration equal to now to be rejected, got %v", err)
	}
	exp := uint64(h.now + 600)
	if err := h.depositNative(link, 100, 10, exp); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	h.now = int64(exp) - 1
	if err := h.engine.Refund(h.relayerCall(), sender, claimlink.NativeAsset, link.Address()); !errors.Is(err, claimlink.ErrNotYetExpired) {
		t.Fatalf("expected refund one second early to fail, got %v", err)
	}

	h.now = int64(exp)
	if err := h.redeem(link, claimlink.NativeAsset, receiver); !errors.Is(err, claimlink.ErrDepositExpired) {
		t.Fatalf("expected redeem at expiration to fail, got %v", err)
	}
	if err := h.engine.Refund(h.relayerCall(), sender, claimlink.NativeAsset, link.Address()); err != nil {
		t.Fatalf("refund at expiration: %v", err)
	}
	if got := h.deposited(claimlink.NativeAsset, sender, link.Address()); got != 0 {
		t.Fatalf("expected deposit cleared, got %d", got)
	}
}

func TestBatchReceiptRejected(t *testing.T) {
	h := newHarness(t)
	err := h.engine.OnERC1155BatchReceived(multiAddr, h.sender.Address(), h.sender.Address(),
		[]*big.Int{big.NewInt(1)}, []*big.Int{big.NewInt(1)}, nil)
	if !errors.Is(err, claimlink.ErrBatchUnsupported) || claimlink.CategoryOf(err) != claimlink.CategoryValue {
		t.Fatalf("expected value-category batch rejection, got %v (%s)", err, claimlink.CategoryOf(err))
	}
}

func TestWithdrawAccruedFees(t *testing.T) {
	h := newHarness(t)
	owner := h.owner.Address()
	if err := h.depositNative(mustKey(t), 100, 10, uint64(h.now+60)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := h.engine.WithdrawAccruedFees(h.relayerCall(), claimlink.NativeAsset); !errors.Is(err, claimlink.ErrNotOwner) {
		t.Fatalf("expected owner check, got %v", err)
	}
	amount, err := h.engine.WithdrawAccruedFees(claimlink.Call{Caller: owner}, claimlink.NativeAsset)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Int64() != 10 || h.balance(claimlink.NativeAsset, owner, 0) != 10 {
		t.Fatalf("expected owner to receive 10, got %s", amount)
	}
	if got := h.fees(claimlink.NativeAsset); got != 0 {
		t.Fatalf("expected fees to be cleared, got %d", got)
	}

	amount, err = h.engine.WithdrawAccruedFees(claimlink.Call{Caller: owner}, claimlink.NativeAsset)
	if err != nil || amount.Sign() != 0 {
		t.Fatalf("expected empty withdrawal to succeed with zero, got %v (%v)", amount, err)
	}
	evts := h.rec.Events()
	withdrawn, ok := evts[len(evts)-1].(events.FeesWithdrawn)
	if !ok || withdrawn.Amount.Sign() != 0 || withdrawn.Owner != owner {
		t.Fatalf("unexpected withdrawal event %#v", evts[len(evts)-1])
	}
}

func TestTransferOwnership(t *testing.T) {
	h := newHarness(t)
	previous := h.owner.Address()
	next := mustKey(t).Address()

	if err := h.engine.TransferOwnership(h.relayerCall(), next); !errors.Is(err, claimlink.ErrNotOwner) {
		t.Fatalf("expected owner check, got %v", err)
	}
	if err := h.engine.TransferOwnership(claimlink.Call{Caller: previous}, common.Address{}); !errors.Is(err, claimlink.ErrZeroAddress) {
		t.Fatalf("expected zero owner to be rejected, got %v", err)
	}
	if err := h.engine.TransferOwnership(claimlink.Call{Caller: previous}, next); err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}
	if owner, err := h.engine.Owner(); err != nil || owner != next {
		t.Fatalf("expected new owner %s, got %s (%v)", next.Hex(), owner.Hex(), err)
	}
	if _, err := h.engine.WithdrawAccruedFees(claimlink.Call{Caller: previous}, claimlink.NativeAsset); !errors.Is(err, claimlink.ErrNotOwner) {
		t.Fatalf("expected previous owner to lose rights, got %v", err)
	}
	// A restart keeps the transferred owner.
	if err := h.engine.Bootstrap(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if owner, _ := h.engine.Owner(); owner != next {
		t.Fatalf("bootstrap reset owner to %s", owner.Hex())
	}
}

type reentrantReceiver struct {
	h    *harness
	link *crypto.PrivateKey
	err  error
}

func (r *reentrantReceiver) OnERC721Received(_, _, _ common.Address, _ *big.Int, _ []byte) error {
	r.err = r.h.redeem(r.link, claimlink.NativeAsset, receiver)
	return r.err
}

func (r *reentrantReceiver) OnERC1155Received(_, _, _ common.Address, _, _ *big.Int, _ []byte) error {
	return nil
}

func (r *reentrantReceiver) OnERC1155BatchReceived(_, _, _ common.Address, _, _ []*big.Int, _ []byte) error {
	return nil
}

func TestRedeemReentrancyRejected(t *testing.T) {
	h := newHarness(t)
	sender := h.sender.Address()
	tokenID := big.NewInt(1)
	if err := h.nft.Mint(sender, tokenID); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := h.nft.SetApprovalForAll(sender, escrowAddr, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	nftLink := mustKey(t)
	exp := uint64(h.now + 3600)
	req := claimlink.NFTDepositRequest{Asset: nftAddr, TransferID: nftLink.Address(), TokenID: tokenID, Expiration: exp}
	req.FeeAuthorization = h.feeAuth(claimlink.FeeQuote{
		Sender: sender, Asset: nftAddr, TransferID: nftLink.Address(), TokenID: tokenID,
		Amount: big.NewInt(1), Expiration: exp, FeeAsset: claimlink.NativeAsset,
	})
	if err := h.engine.DepositNFT(h.senderCall(0), req); err != nil {
		t.Fatalf("deposit nft: %v", err)
	}
	nativeLink := mustKey(t)
	if err := h.depositNative(nativeLink, 100, 0, exp); err != nil {
		t.Fatalf("deposit native: %v", err)
	}

	attacker := mustKey(t).Address()
	hook := &reentrantReceiver{h: h, link: nativeLink}
	h.reg.SetReceiver(attacker, hook)
	before := h.rec.Len()

	err := h.redeem(nftLink, nftAddr, attacker)
	if !errors.Is(err, claimlink.ErrTransferFailed) || !errors.Is(err, claimlink.ErrReentrantCall) {
		t.Fatalf("expected reentrant redeem to fail, got %v", err)
	}
	if !errors.Is(hook.err, claimlink.ErrReentrantCall) {
		t.Fatalf("expected inner call to be rejected, got %v", hook.err)
	}
	if got := h.deposited(nftAddr, sender, nftLink.Address()); got != 1 {
		t.Fatalf("expected nft deposit to survive, got %d", got)
	}
	if got := h.deposited(claimlink.NativeAsset, sender, nativeLink.Address()); got != 100 {
		t.Fatalf("expected native deposit to survive, got %d", got)
	}
	if h.rec.Len() != before {
		t.Fatalf("failed redeem emitted %d events", h.rec.Len()-before)
	}
}

func TestBootstrapRequiresRelayer(t *testing.T) {
	engine := claimlink.NewEngine(claimlink.Config{Address: escrowAddr, Owner: receiver})
	engine.SetState(state.NewManager(storage.NewMemDB()))
	if err := engine.Bootstrap(); !errors.Is(err, claimlink.ErrZeroAddress) {
		t.Fatalf("expected zero relayer to be rejected, got %v", err)
	}
	unconfigured := claimlink.NewEngine(claimlink.Config{})
	if err := unconfigured.Deposit(claimlink.Call{}, claimlink.DepositRequest{}); !errors.Is(err, claimlink.ErrStateUnavailable) {
		t.Fatalf("expected unconfigured engine to fail, got %v", err)
	}
}
