package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LinkKeyPrefix is the bech32 human-readable part used when a link key is
// embedded in a claim link.
const LinkKeyPrefix = "lk"

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// Address returns the account address controlled by the key. For a link key
// this is the transfer identifier.
func (k *PrivateKey) Address() common.Address {
	return crypto.PubkeyToAddress(k.PrivateKey.PublicKey)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromHex parses a hex private key with or without 0x prefix.
func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// GenerateLinkKey creates a fresh ephemeral link key.
func GenerateLinkKey() (*PrivateKey, error) {
	return GeneratePrivateKey()
}

// EncodeLinkKey renders the link key secret as a checksummed bech32 string.
func EncodeLinkKey(k *PrivateKey) (string, error) {
	if k == nil {
		return "", fmt.Errorf("crypto: nil link key")
	}
	conv, err := bech32.ConvertBits(k.Bytes(), 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(LinkKeyPrefix, conv)
}

// DecodeLinkKey parses a string produced by EncodeLinkKey.
func DecodeLinkKey(s string) (*PrivateKey, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != LinkKeyPrefix {
		return nil, fmt.Errorf("unexpected link key prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("error converting bits: %w", err)
	}
	return PrivateKeyFromBytes(conv)
}

// ParseAddress parses a 0x-prefixed hex address, rejecting malformed input.
func ParseAddress(s string) (common.Address, error) {
	trimmed := strings.TrimSpace(s)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(trimmed), nil
}
