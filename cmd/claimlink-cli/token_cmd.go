package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"claimlink/crypto"
	"claimlink/rpc/middleware"
)

func runIssueToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	var (
		caller    string
		secretEnv string
		issuer    string
		audience  string
		ttl       time.Duration
	)
	fs.StringVar(&caller, "caller", "", "caller address placed in the token subject")
	fs.StringVar(&secretEnv, "secret-env", "CLAIMLINK_JWT_SECRET", "environment variable holding the HS256 secret")
	fs.StringVar(&issuer, "issuer", "", "token issuer")
	fs.StringVar(&audience, "audience", "", "token audience")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	addr, err := crypto.ParseAddress(caller)
	if err != nil {
		return printError(stderr, fmt.Sprintf("--caller: %v", err))
	}
	if ttl <= 0 {
		return printError(stderr, "--ttl must be positive")
	}
	secret := strings.TrimSpace(os.Getenv(secretEnv))
	if secret == "" {
		return printError(stderr, fmt.Sprintf("%s is not set", secretEnv))
	}
	token, err := middleware.IssueToken(secret, addr, issuer, audience, ttl)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, token)
	return 0
}

// runCall sends method with a single JSON object as its params.
func runCall(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("call", stderr)
	var auth bool
	fs.BoolVar(&auth, "auth", false, "require CLAIMLINK_RPC_TOKEN")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) == 0 || len(rest) > 2 {
		return printError(stderr, "usage: call [--auth] <method> ['{json params}']")
	}
	var params interface{}
	if len(rest) == 2 {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(rest[1]), &obj); err != nil {
			return printError(stderr, fmt.Sprintf("params must be a JSON object: %v", err))
		}
		params = obj
	}
	result, rpcErr, err := rpcCall(rest[0], params, auth)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}
