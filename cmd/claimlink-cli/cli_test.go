package main

import (
	"bytes"
	"encoding/json"
	"math/big"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"claimlink/crypto"
	"claimlink/native/claimlink"
	"claimlink/rpc/middleware"
)

var cliReceiver = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func stubRPC(t *testing.T, fn func(method string, param interface{}, requireAuth bool) (json.RawMessage, *rpcError, error)) {
	t.Helper()
	prev := rpcCall
	rpcCall = fn
	t.Cleanup(func() { rpcCall = prev })
}

func TestLinkNewAndInspect(t *testing.T) {
	code, out, errOut := runCLI(t, "link", "new")
	if code != 0 {
		t.Fatalf("link new failed: %s", errOut)
	}
	var created linkKeyOutput
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if !strings.HasPrefix(created.LinkKey, crypto.LinkKeyPrefix+"1") {
		t.Fatalf("unexpected link key %q", created.LinkKey)
	}

	code, out, errOut = runCLI(t, "link", "inspect", "--key", created.LinkKey)
	if code != 0 {
		t.Fatalf("link inspect failed: %s", errOut)
	}
	var inspected linkKeyOutput
	if err := json.Unmarshal([]byte(out), &inspected); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if inspected.TransferID != created.TransferID {
		t.Fatalf("transfer id = %s, want %s", inspected.TransferID, created.TransferID)
	}

	if code, _, _ := runCLI(t, "link", "inspect", "--key", "bc1qxyz"); code == 0 {
		t.Fatalf("expected malformed key to fail")
	}
}

func TestLinkSignReceiverVerifies(t *testing.T) {
	key, err := crypto.GenerateLinkKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	encoded, err := crypto.EncodeLinkKey(key)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	code, out, errOut := runCLI(t, "link", "sign-receiver", "--key", encoded, "--receiver", cliReceiver.Hex())
	if code != 0 {
		t.Fatalf("sign-receiver failed: %s", errOut)
	}
	var result map[string]string
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	sig, err := hexutil.Decode(result["receiverSig"])
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if !(crypto.Verifier{}).VerifyHash(claimlink.ReceiverMessage(cliReceiver), sig, key.Address()) {
		t.Fatalf("signature does not verify against the link key")
	}
}

func TestRedeemSubmitsSignedReceiver(t *testing.T) {
	key, _ := crypto.GenerateLinkKey()
	encoded, _ := crypto.EncodeLinkKey(key)
	sender := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	var gotMethod string
	var gotParams map[string]interface{}
	stubRPC(t, func(method string, param interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		gotMethod = method
		gotParams = param.(map[string]interface{})
		if requireAuth {
			t.Fatalf("redeem must not require a bearer token")
		}
		return json.RawMessage(`{"ok":true}`), nil, nil
	})
	code, out, errOut := runCLI(t, "redeem", "--key", encoded, "--receiver", cliReceiver.Hex(), "--sender", sender.Hex())
	if code != 0 {
		t.Fatalf("redeem failed: %s", errOut)
	}
	if gotMethod != "claimlink_redeem" || gotParams["receiver"] != cliReceiver.Hex() {
		t.Fatalf("unexpected call %s %+v", gotMethod, gotParams)
	}
	if !strings.Contains(out, `"ok": true`) {
		t.Fatalf("unexpected output %q", out)
	}

	code, _, _ = runCLI(t, "redeem", "--key", encoded, "--receiver", cliReceiver.Hex(), "--sender", sender.Hex(), "--sender-sig", "0x01")
	if code == 0 {
		t.Fatalf("expected --transfer-id to be required with --sender-sig")
	}
	code, _, _ = runCLI(t, "redeem", "--key", encoded, "--receiver", cliReceiver.Hex(), "--sender", sender.Hex(),
		"--sender-sig", "0x01", "--transfer-id", key.Address().Hex())
	if code != 0 || gotMethod != "claimlink_redeemRecovered" {
		t.Fatalf("expected recovered redeem, got %s (%d)", gotMethod, code)
	}
}

func TestRedeemReportsRPCError(t *testing.T) {
	key, _ := crypto.GenerateLinkKey()
	encoded, _ := crypto.EncodeLinkKey(key)
	stubRPC(t, func(string, interface{}, bool) (json.RawMessage, *rpcError, error) {
		return nil, &rpcError{Code: -32031, Message: "claimlink: invalid receiver signature"}, nil
	})
	code, _, errOut := runCLI(t, "redeem", "--key", encoded, "--receiver", cliReceiver.Hex(),
		"--sender", "0x00000000000000000000000000000000000000a1")
	if code == 0 || !strings.Contains(errOut, "-32031") {
		t.Fatalf("expected rpc error, got %d %q", code, errOut)
	}
}

func TestSignTransferWithNodeDomain(t *testing.T) {
	sender, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "sender.keystore")
	if err := crypto.SaveToKeystore(path, sender, "pw"); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	prevPass := keyPassphrase
	keyPassphrase = func() (string, error) { return "pw", nil }
	t.Cleanup(func() { keyPassphrase = prevPass })

	escrow := common.HexToAddress("0x00000000000000000000000000000000000e5c20")
	stubRPC(t, func(method string, _ interface{}, _ bool) (json.RawMessage, *rpcError, error) {
		if method != "claimlink_domain" {
			t.Fatalf("unexpected method %s", method)
		}
		return json.RawMessage(`{"name":"LinkdropEscrow","version":"3.2","chainId":"31337","verifyingContract":"` + escrow.Hex() + `"}`), nil, nil
	})

	newLink, _ := crypto.GenerateLinkKey()
	transferID := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	code, out, errOut := runCLI(t, "sign-transfer", "--keystore", path,
		"--link-key-id", newLink.Address().Hex(), "--transfer-id", transferID.Hex())
	if code != 0 {
		t.Fatalf("sign-transfer failed: %s", errOut)
	}
	var result map[string]string
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	sig, err := hexutil.Decode(result["senderSig"])
	if err != nil {
		t.Fatalf("decode sig: %v", err)
	}
	typed := claimlink.TransferTypedData(claimlink.Domain{
		Name: "LinkdropEscrow", Version: "3.2", ChainID: big.NewInt(31337), VerifyingContract: escrow,
	}, newLink.Address(), transferID)
	if !(crypto.Verifier{}).VerifyStructured(typed, sig, sender.Address()) {
		t.Fatalf("re-key proof does not verify")
	}
}

func TestHookPayloadRoundTrip(t *testing.T) {
	cliNow = func() time.Time { return time.Unix(1_700_000_000, 0) }
	t.Cleanup(func() { cliNow = time.Now })
	transferID := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	code, out, errOut := runCLI(t, "hook-payload", "--transfer-id", transferID.Hex(), "--expiration", "+1h")
	if code != 0 {
		t.Fatalf("hook-payload failed: %s", errOut)
	}
	raw, err := hexutil.Decode(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("decode hex: %v", err)
	}
	payload, err := claimlink.DecodeHookPayload(raw)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.TransferID != transferID || payload.Expiration != 1_700_003_600 || payload.FeeAmount.Sign() != 0 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestIssueTokenAuthenticates(t *testing.T) {
	t.Setenv("CLAIMLINK_TEST_SECRET", "s3cret")
	caller := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	code, out, errOut := runCLI(t, "token", "--caller", caller.Hex(), "--secret-env", "CLAIMLINK_TEST_SECRET", "--issuer", "ops")
	if code != 0 {
		t.Fatalf("token failed: %s", errOut)
	}
	auth := middleware.NewAuthenticator(middleware.AuthConfig{HMACSecret: "s3cret", Issuer: "ops"}, nil)
	got, err := auth.Authenticate(strings.TrimSpace(out))
	if err != nil || got != caller {
		t.Fatalf("authenticate = %s, %v", got.Hex(), err)
	}
}

func TestParseExpiration(t *testing.T) {
	now := time.Unix(1_000, 0)
	if v, err := parseExpiration("+30s", now); err != nil || v != 1_030 {
		t.Fatalf("relative = %d, %v", v, err)
	}
	if v, err := parseExpiration("5000", now); err != nil || v != 5_000 {
		t.Fatalf("absolute = %d, %v", v, err)
	}
	for _, bad := range []string{"", "+-1s", "0", "soon"} {
		if _, err := parseExpiration(bad, now); err == nil {
			t.Fatalf("expected %q to fail", bad)
		}
	}
}

func TestGlobalRPCFlag(t *testing.T) {
	prev := rpcEndpoint
	t.Cleanup(func() { rpcEndpoint = prev })
	rest, err := applyGlobalFlags([]string{"--rpc", "http://node:9000", "call", "claimlink_domain"})
	if err != nil || rpcEndpoint != "http://node:9000" || len(rest) != 2 {
		t.Fatalf("rest=%v endpoint=%s err=%v", rest, rpcEndpoint, err)
	}
}
