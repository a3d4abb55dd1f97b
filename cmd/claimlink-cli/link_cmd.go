package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"claimlink/crypto"
	"claimlink/native/claimlink"
)

type linkKeyOutput struct {
	LinkKey    string `json:"linkKey"`
	TransferID string `json:"transferId"`
}

func runLinkCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "new":
		return runLinkNew(args[1:], stdout, stderr)
	case "inspect":
		return runLinkInspect(args[1:], stdout, stderr)
	case "sign-receiver":
		return runLinkSignReceiver(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown link subcommand: %s\n", args[0])
		return 1
	}
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func runLinkNew(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("link new", stderr)
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	key, err := crypto.GenerateLinkKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	encoded, err := crypto.EncodeLinkKey(key)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return writeJSON(stdout, linkKeyOutput{LinkKey: encoded, TransferID: key.Address().Hex()})
}

func runLinkInspect(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("link inspect", stderr)
	var linkKey string
	fs.StringVar(&linkKey, "key", "", "bech32 link key (lk1...)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	key, err := crypto.DecodeLinkKey(strings.TrimSpace(linkKey))
	if err != nil {
		return printError(stderr, fmt.Sprintf("--key: %v", err))
	}
	encoded, err := crypto.EncodeLinkKey(key)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return writeJSON(stdout, linkKeyOutput{LinkKey: encoded, TransferID: key.Address().Hex()})
}

func runLinkSignReceiver(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("link sign-receiver", stderr)
	var linkKey, receiver string
	fs.StringVar(&linkKey, "key", "", "bech32 link key (lk1...)")
	fs.StringVar(&receiver, "receiver", "", "receiver address")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	key, err := crypto.DecodeLinkKey(strings.TrimSpace(linkKey))
	if err != nil {
		return printError(stderr, fmt.Sprintf("--key: %v", err))
	}
	to, err := crypto.ParseAddress(receiver)
	if err != nil {
		return printError(stderr, fmt.Sprintf("--receiver: %v", err))
	}
	sig, err := claimlink.SignReceiver(key.PrivateKey, to)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return writeJSON(stdout, map[string]string{
		"transferId":  key.Address().Hex(),
		"receiver":    to.Hex(),
		"receiverSig": hexutil.Encode(sig),
	})
}

// runRedeem signs the receiver with the link key and asks the node's relayer
// to settle the deposit. With --sender-sig the recovered path is used.
func runRedeem(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("redeem", stderr)
	var linkKey, receiver, sender, asset, transferID, senderSig string
	fs.StringVar(&linkKey, "key", "", "bech32 link key (lk1...)")
	fs.StringVar(&receiver, "receiver", "", "receiver address")
	fs.StringVar(&sender, "sender", "", "depositor address")
	fs.StringVar(&asset, "asset", "", "asset address (empty for native)")
	fs.StringVar(&transferID, "transfer-id", "", "transfer id of the deposit when redeeming with a re-keyed link")
	fs.StringVar(&senderSig, "sender-sig", "", "sender re-key proof from sign-transfer")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	key, err := crypto.DecodeLinkKey(strings.TrimSpace(linkKey))
	if err != nil {
		return printError(stderr, fmt.Sprintf("--key: %v", err))
	}
	to, err := crypto.ParseAddress(receiver)
	if err != nil {
		return printError(stderr, fmt.Sprintf("--receiver: %v", err))
	}
	if _, err := crypto.ParseAddress(sender); err != nil {
		return printError(stderr, fmt.Sprintf("--sender: %v", err))
	}
	sig, err := claimlink.SignReceiver(key.PrivateKey, to)
	if err != nil {
		return printError(stderr, err.Error())
	}

	method := "claimlink_redeem"
	params := map[string]interface{}{
		"receiver":    to.Hex(),
		"sender":      sender,
		"receiverSig": hexutil.Encode(sig),
	}
	if strings.TrimSpace(asset) != "" {
		params["asset"] = asset
	}
	if strings.TrimSpace(senderSig) != "" {
		if strings.TrimSpace(transferID) == "" {
			return printError(stderr, "--transfer-id is required with --sender-sig")
		}
		method = "claimlink_redeemRecovered"
		params["transferId"] = transferID
		params["senderSig"] = senderSig
	}
	result, rpcErr, err := rpcCall(method, params, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}
