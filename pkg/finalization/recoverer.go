package finalization

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ftso-network/ftso/pkg/codec"
)

// EcdsaRecoverer recovers the signer of an EIP-191 signature over a root.
// Both 0/1 and 27/28 recovery ids are accepted.
type EcdsaRecoverer struct{}

func (EcdsaRecoverer) RecoverSigner(root common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(signature))
	}
	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pubkey, err := crypto.SigToPub(codec.SignatureHash(root).Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %s", err)
	}
	return crypto.PubkeyToAddress(*pubkey), nil
}
