package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var rpcEndpoint = defaultRPCEndpoint()

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	switch args[0] {
	case "link":
		return runLinkCommand(args[1:], stdout, stderr)
	case "sign-transfer":
		return runSignTransfer(args[1:], stdout, stderr)
	case "sign-authorization":
		return runSignAuthorization(args[1:], stdout, stderr)
	case "hook-payload":
		return runHookPayload(args[1:], stdout, stderr)
	case "token":
		return runIssueToken(args[1:], stdout, stderr)
	case "redeem":
		return runRedeem(args[1:], stdout, stderr)
	case "call":
		return runCall(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("CLAIMLINK_RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8545"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func usage() string {
	return strings.TrimSpace(`Usage:
  claimlink-cli [--rpc URL] <command> [flags]

Commands:
  link new                Generate a link key and print its transfer id
  link inspect            Show the transfer id of a link key
  link sign-receiver      Sign a receiver address with a link key
  sign-transfer           Sign a re-key proof with the sender's keystore
  sign-authorization      Sign a gasless deposit authorization
  hook-payload            Encode the NFT receive-hook payload
  token                   Issue a bearer token for a caller address
  redeem                  Sign with a link key and redeem through the node
  call                    Send a raw JSON-RPC call

Environment:
  CLAIMLINK_RPC_URL       Node endpoint (default http://localhost:8545)
  CLAIMLINK_RPC_TOKEN     Bearer token for caller-bound methods
  CLAIMLINK_KEY_PASS      Keystore passphrase
`)
}
