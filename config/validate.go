package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"claimlink/crypto"
	"claimlink/native/claimlink"

	"github.com/ethereum/go-ethereum/common"
)

// Validate checks the configuration for values the node cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("rpc: address required")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("chain_id must be positive")
	}
	if _, err := c.Escrow(); err != nil {
		return err
	}
	if _, err := c.Owner(); err != nil {
		return err
	}
	if c.RPC.RateLimitPerSecond < 0 {
		return fmt.Errorf("rpc: rate_limit_per_second < 0")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio outside [0,1]")
	}
	seen := make(map[common.Address]struct{}, len(c.Assets))
	for i, asset := range c.Assets {
		addr, err := parseNonZero(fmt.Sprintf("assets[%d].address", i), asset.Address)
		if err != nil {
			return err
		}
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("assets[%d]: duplicate address %s", i, addr.Hex())
		}
		seen[addr] = struct{}{}
		switch claimlink.ParseAssetKind(asset.Kind) {
		case claimlink.KindFungible:
			if strings.TrimSpace(asset.Name) == "" || strings.TrimSpace(asset.Version) == "" {
				return fmt.Errorf("assets[%d]: fungible assets need name and version for their signing domain", i)
			}
		case claimlink.KindSingleNFT, claimlink.KindMultiToken:
		default:
			return fmt.Errorf("assets[%d]: unsupported kind %q", i, asset.Kind)
		}
	}
	if _, err := c.FlatFees(); err != nil {
		return err
	}
	for i, alloc := range c.Allocations {
		if _, err := crypto.ParseAddress(alloc.Asset); err != nil {
			return fmt.Errorf("allocations[%d].asset: %w", i, err)
		}
		if _, err := parseNonZero(fmt.Sprintf("allocations[%d].holder", i), alloc.Holder); err != nil {
			return err
		}
		if _, err := ParseAmount(alloc.Amount); err != nil && strings.TrimSpace(alloc.Amount) != "" {
			return fmt.Errorf("allocations[%d].amount: %w", i, err)
		}
	}
	return nil
}

// Escrow returns the escrow account address.
func (c *Config) Escrow() (common.Address, error) {
	return parseNonZero("escrow_address", c.EscrowAddress)
}

// Owner returns the initial owner address.
func (c *Config) Owner() (common.Address, error) {
	return parseNonZero("owner_address", c.OwnerAddress)
}

// FlatFees parses the fee schedule.
func (c *Config) FlatFees() (map[common.Address]*big.Int, error) {
	out := make(map[common.Address]*big.Int, len(c.Fees.Flat))
	for rawAsset, rawAmount := range c.Fees.Flat {
		asset, err := crypto.ParseAddress(rawAsset)
		if err != nil {
			return nil, fmt.Errorf("fees.flat[%s]: %w", rawAsset, err)
		}
		amount, err := ParseAmount(rawAmount)
		if err != nil {
			return nil, fmt.Errorf("fees.flat[%s]: %w", rawAsset, err)
		}
		out[asset] = amount
	}
	return out, nil
}

// ParseAmount parses a non-negative base-10 integer.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return v, nil
}

func parseNonZero(field, raw string) (common.Address, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s: zero address", field)
	}
	return addr, nil
}
