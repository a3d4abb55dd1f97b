package main

import (
	"fmt"
	"strings"

	"claimlink/config"
	"claimlink/core"
	"claimlink/crypto"
	"claimlink/native/assets"
	"claimlink/native/claimlink"
)

// assetSpecs converts the configured assets into ledger registrations.
func assetSpecs(cfg *config.Config) ([]core.AssetSpec, error) {
	specs := make([]core.AssetSpec, 0, len(cfg.Assets))
	for i, asset := range cfg.Assets {
		addr, err := crypto.ParseAddress(asset.Address)
		if err != nil {
			return nil, fmt.Errorf("assets[%d]: %w", i, err)
		}
		kind := claimlink.ParseAssetKind(asset.Kind)
		if kind == claimlink.KindUnknown || kind == claimlink.KindNative {
			return nil, fmt.Errorf("assets[%d]: unsupported kind %q", i, asset.Kind)
		}
		specs = append(specs, core.AssetSpec{
			Address: addr,
			Kind:    kind,
			Meta: assets.Metadata{
				Name:     strings.TrimSpace(asset.Name),
				Symbol:   strings.TrimSpace(asset.Symbol),
				Version:  strings.TrimSpace(asset.Version),
				Decimals: asset.Decimals,
			},
		})
	}
	return specs, nil
}

// allocations converts the configured starting balances.
func allocations(cfg *config.Config) ([]core.Allocation, error) {
	out := make([]core.Allocation, 0, len(cfg.Allocations))
	for i, alloc := range cfg.Allocations {
		asset, err := crypto.ParseAddress(alloc.Asset)
		if err != nil {
			return nil, fmt.Errorf("allocations[%d].asset: %w", i, err)
		}
		holder, err := crypto.ParseAddress(alloc.Holder)
		if err != nil {
			return nil, fmt.Errorf("allocations[%d].holder: %w", i, err)
		}
		entry := core.Allocation{Asset: asset, Holder: holder}
		if strings.TrimSpace(alloc.TokenID) != "" {
			if entry.TokenID, err = config.ParseAmount(alloc.TokenID); err != nil {
				return nil, fmt.Errorf("allocations[%d].token_id: %w", i, err)
			}
		}
		if strings.TrimSpace(alloc.Amount) != "" {
			if entry.Amount, err = config.ParseAmount(alloc.Amount); err != nil {
				return nil, fmt.Errorf("allocations[%d].amount: %w", i, err)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// feeSchedule converts the relayer's quoting policy.
func feeSchedule(cfg *config.Config) (core.FeeSchedule, error) {
	flat, err := cfg.FlatFees()
	if err != nil {
		return core.FeeSchedule{}, err
	}
	return core.FeeSchedule{Sponsored: cfg.Fees.Sponsored, Flat: flat}, nil
}
