package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ftso-network/ftso/internal/core/ports"
	"github.com/ftso-network/ftso/pkg/codec"
)

type signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewSigner(key *ecdsa.PrivateKey) (ports.Signer, error) {
	if key == nil {
		return nil, fmt.Errorf("missing private key")
	}
	return &signer{key, crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// ParsePrivateKey parses a hex encoded secp256k1 key, with or without 0x.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %s", err)
	}
	return key, nil
}

func (s *signer) Address() common.Address {
	return s.address
}

// SignHash returns a 65 bytes signature with a 27/28 recovery id, as
// expected by ecrecover.
func (s *signer) SignHash(root common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(codec.SignatureHash(root).Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign root %s: %s", root.Hex(), err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
