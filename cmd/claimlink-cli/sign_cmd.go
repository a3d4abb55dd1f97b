package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"claimlink/cmd/internal/passphrase"
	"claimlink/crypto"
	"claimlink/native/claimlink"
)

const keyPassEnv = "CLAIMLINK_KEY_PASS"

var (
	cliNow        = time.Now
	keyPassphrase = func() (string, error) {
		return passphrase.NewSource(keyPassEnv, "signing keystore").Get()
	}
)

type domainResult struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           string `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

func loadKeystore(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("--keystore is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("keystore %s: %w", path, err)
	}
	pass, err := keyPassphrase()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

// fetchDomain asks the node for its re-key signing domain.
func fetchDomain() (claimlink.Domain, error) {
	result, rpcErr, err := rpcCall("claimlink_domain", nil, false)
	if err != nil {
		return claimlink.Domain{}, err
	}
	if rpcErr != nil {
		return claimlink.Domain{}, fmt.Errorf("claimlink_domain: %s", rpcErr.Message)
	}
	var out domainResult
	if err := json.Unmarshal(result, &out); err != nil {
		return claimlink.Domain{}, fmt.Errorf("decode domain: %w", err)
	}
	chainID, ok := new(big.Int).SetString(out.ChainID, 10)
	if !ok {
		return claimlink.Domain{}, fmt.Errorf("node returned invalid chain id %q", out.ChainID)
	}
	contract, err := crypto.ParseAddress(out.VerifyingContract)
	if err != nil {
		return claimlink.Domain{}, err
	}
	return claimlink.Domain{Name: out.Name, Version: out.Version, ChainID: chainID, VerifyingContract: contract}, nil
}

func runSignTransfer(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("sign-transfer", stderr)
	var (
		keystorePath string
		linkKeyID    string
		transferID   string
		escrow       string
		chainID      uint64
		name         string
		version      string
	)
	fs.StringVar(&keystorePath, "keystore", "", "sender keystore file")
	fs.StringVar(&linkKeyID, "link-key-id", "", "address of the replacement link key")
	fs.StringVar(&transferID, "transfer-id", "", "transfer id of the deposit")
	fs.StringVar(&escrow, "escrow", "", "escrow address (fetched from the node when empty)")
	fs.Uint64Var(&chainID, "chain-id", 0, "chain id (with --escrow)")
	fs.StringVar(&name, "domain-name", claimlink.DefaultDomainName, "signing domain name (with --escrow)")
	fs.StringVar(&version, "domain-version", claimlink.DefaultDomainVersion, "signing domain version (with --escrow)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	newKey, err := crypto.ParseAddress(linkKeyID)
	if err != nil {
		return printError(stderr, fmt.Sprintf("--link-key-id: %v", err))
	}
	id, err := crypto.ParseAddress(transferID)
	if err != nil {
		return printError(stderr, fmt.Sprintf("--transfer-id: %v", err))
	}

	var domain claimlink.Domain
	if strings.TrimSpace(escrow) == "" {
		if domain, err = fetchDomain(); err != nil {
			return handleRPCCallError(stderr, err)
		}
	} else {
		contract, err := crypto.ParseAddress(escrow)
		if err != nil {
			return printError(stderr, fmt.Sprintf("--escrow: %v", err))
		}
		if chainID == 0 {
			return printError(stderr, "--chain-id is required with --escrow")
		}
		domain = claimlink.Domain{Name: name, Version: version, ChainID: new(big.Int).SetUint64(chainID), VerifyingContract: contract}
	}

	sender, err := loadKeystore(keystorePath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	sig, err := claimlink.SignTransfer(sender.PrivateKey, domain, newKey, id)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return writeJSON(stdout, map[string]string{
		"sender":     sender.Address().Hex(),
		"linkKeyId":  newKey.Hex(),
		"transferId": id.Hex(),
		"senderSig":  hexutil.Encode(sig),
	})
}

func runSignAuthorization(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("sign-authorization", stderr)
	var (
		keystorePath string
		mode         string
		token        string
		tokenName    string
		tokenVersion string
		chainID      uint64
		escrow       string
		transferID   string
		value        string
		fee          string
		expiration   string
		validFor     time.Duration
	)
	fs.StringVar(&keystorePath, "keystore", "", "holder keystore file")
	fs.StringVar(&mode, "mode", "receive", "authorization kind: receive or approve")
	fs.StringVar(&token, "token", "", "fungible asset address")
	fs.StringVar(&tokenName, "token-name", "", "token signing domain name")
	fs.StringVar(&tokenVersion, "token-version", "1", "token signing domain version")
	fs.Uint64Var(&chainID, "chain-id", 0, "chain id")
	fs.StringVar(&escrow, "escrow", "", "escrow address")
	fs.StringVar(&transferID, "transfer-id", "", "transfer id of the new deposit")
	fs.StringVar(&value, "value", "", "authorized amount including the fee")
	fs.StringVar(&fee, "fee", "0", "fee netted from value")
	fs.StringVar(&expiration, "expiration", "", "deposit expiration as unix seconds or +duration")
	fs.DurationVar(&validFor, "valid-for", time.Hour, "authorization validity window")
	if !parseFlags(fs, args, stderr) {
		return 1
	}

	var kind claimlink.AuthorizationKind
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "receive":
		kind = claimlink.AuthorizationReceive
	case "approve":
		kind = claimlink.AuthorizationApprove
	default:
		return printError(stderr, "--mode must be receive or approve")
	}
	tokenAddr, err := crypto.ParseAddress(token)
	if err != nil {
		return printError(stderr, fmt.Sprintf("--token: %v", err))
	}
	escrowAddr, err := crypto.ParseAddress(escrow)
	if err != nil {
		return printError(stderr, fmt.Sprintf("--escrow: %v", err))
	}
	id, err := crypto.ParseAddress(transferID)
	if err != nil {
		return printError(stderr, fmt.Sprintf("--transfer-id: %v", err))
	}
	if strings.TrimSpace(tokenName) == "" || chainID == 0 {
		return printError(stderr, "--token-name and --chain-id are required")
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok || amount.Sign() <= 0 {
		return printError(stderr, "--value must be a positive integer")
	}
	feeAmount, ok := new(big.Int).SetString(strings.TrimSpace(fee), 10)
	if !ok || feeAmount.Sign() < 0 {
		return printError(stderr, "--fee must be a non-negative integer")
	}
	now := cliNow()
	exp, err := parseExpiration(expiration, now)
	if err != nil {
		return printError(stderr, err.Error())
	}

	holder, err := loadKeystore(keystorePath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	encoded, err := claimlink.SignAuthorization(holder.PrivateKey, claimlink.AuthorizationParams{
		Kind: kind,
		TokenDomain: claimlink.Domain{
			Name:              tokenName,
			Version:           tokenVersion,
			ChainID:           new(big.Int).SetUint64(chainID),
			VerifyingContract: tokenAddr,
		},
		Escrow:      escrowAddr,
		TransferID:  id,
		Value:       amount,
		Expiration:  exp,
		Fee:         feeAmount,
		ValidAfter:  big.NewInt(now.Add(-time.Minute).Unix()),
		ValidBefore: big.NewInt(now.Add(validFor).Unix()),
	})
	if err != nil {
		return printError(stderr, err.Error())
	}
	selector := kind.Selector()
	return writeJSON(stdout, map[string]interface{}{
		"asset":         tokenAddr.Hex(),
		"transferId":    id.Hex(),
		"expiration":    exp,
		"selector":      hexutil.Encode(selector[:]),
		"feeAmount":     feeAmount.String(),
		"authorization": hexutil.Encode(encoded),
	})
}

func runHookPayload(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("hook-payload", stderr)
	var transferID, expiration, fee, feeAuth string
	fs.StringVar(&transferID, "transfer-id", "", "transfer id of the new deposit")
	fs.StringVar(&expiration, "expiration", "", "deposit expiration as unix seconds or +duration")
	fs.StringVar(&fee, "fee", "0", "fee amount (must be zero on the receive-hook path)")
	fs.StringVar(&feeAuth, "fee-authorization", "", "relayer fee authorization (hex)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	id, err := crypto.ParseAddress(transferID)
	if err != nil {
		return printError(stderr, fmt.Sprintf("--transfer-id: %v", err))
	}
	exp, err := parseExpiration(expiration, cliNow())
	if err != nil {
		return printError(stderr, err.Error())
	}
	feeAmount, ok := new(big.Int).SetString(strings.TrimSpace(fee), 10)
	if !ok || feeAmount.Sign() < 0 {
		return printError(stderr, "--fee must be a non-negative integer")
	}
	var auth []byte
	if trimmed := strings.TrimSpace(feeAuth); trimmed != "" {
		if auth, err = hexutil.Decode(trimmed); err != nil {
			return printError(stderr, fmt.Sprintf("--fee-authorization: %v", err))
		}
	}
	payload, err := claimlink.EncodeHookPayload(claimlink.HookPayload{
		TransferID:       id,
		Expiration:       exp,
		FeeAmount:        feeAmount,
		FeeAuthorization: auth,
	})
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, hexutil.Encode(payload))
	return 0
}

// parseExpiration accepts unix seconds or a +duration relative to now.
func parseExpiration(raw string, now time.Time) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("--expiration is required")
	}
	if strings.HasPrefix(trimmed, "+") {
		d, err := time.ParseDuration(trimmed[1:])
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("--expiration: invalid duration %q", trimmed)
		}
		return uint64(now.Add(d).Unix()), nil
	}
	v, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("--expiration: invalid timestamp %q", trimmed)
	}
	return v, nil
}
