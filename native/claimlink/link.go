package claimlink

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"claimlink/crypto"

	"github.com/ethereum/go-ethereum/common"
)

// Link is the off-band claim link handed to a receiver. The key travels in
// the URL fragment so it never reaches a server log.
type Link struct {
	Key     *crypto.PrivateKey
	Sender  common.Address
	Asset   common.Address
	ChainID uint64
}

// TransferID returns the transfer identifier controlled by the link key.
func (l Link) TransferID() common.Address {
	if l.Key == nil {
		return common.Address{}
	}
	return l.Key.Address()
}

// Format renders the link under base, e.g. https://claim.example/#k=lk1...
func (l Link) Format(base string) (string, error) {
	key, err := crypto.EncodeLinkKey(l.Key)
	if err != nil {
		return "", err
	}
	values := url.Values{}
	values.Set("k", key)
	values.Set("s", l.Sender.Hex())
	values.Set("a", l.Asset.Hex())
	values.Set("c", strconv.FormatUint(l.ChainID, 10))
	base = strings.TrimSuffix(base, "#")
	return base + "#" + values.Encode(), nil
}

// ParseLink parses a link produced by Format.
func ParseLink(raw string) (Link, error) {
	_, fragment, found := strings.Cut(strings.TrimSpace(raw), "#")
	if !found {
		return Link{}, errors.New("claimlink: link has no fragment")
	}
	values, err := url.ParseQuery(fragment)
	if err != nil {
		return Link{}, fmt.Errorf("claimlink: parse link: %w", err)
	}
	key, err := crypto.DecodeLinkKey(values.Get("k"))
	if err != nil {
		return Link{}, fmt.Errorf("claimlink: link key: %w", err)
	}
	sender, err := crypto.ParseAddress(values.Get("s"))
	if err != nil {
		return Link{}, fmt.Errorf("claimlink: link sender: %w", err)
	}
	asset, err := crypto.ParseAddress(values.Get("a"))
	if err != nil {
		return Link{}, fmt.Errorf("claimlink: link asset: %w", err)
	}
	chainID, err := strconv.ParseUint(values.Get("c"), 10, 64)
	if err != nil {
		return Link{}, fmt.Errorf("claimlink: link chain id: %w", err)
	}
	return Link{Key: key, Sender: sender, Asset: asset, ChainID: chainID}, nil
}
