package ports

import "github.com/ethereum/go-ethereum/common"

type Signer interface {
	Address() common.Address
	// SignHash signs the EIP-191 hash of the given root.
	SignHash(root common.Hash) ([]byte, error)
}
