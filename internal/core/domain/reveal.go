package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/pkg/amount"
)

type Reveal struct {
	Voter        common.Address
	Random       amount.Amount
	PackedPrices []byte
	BitVote      []byte
}

// OwnReveal is the secret data the node needs to reveal its own commit one
// round later.
type OwnReveal struct {
	Random amount.Amount
	Prices []uint32
}

type SignatureRecord struct {
	Root       common.Hash
	Signature  []byte
	ObservedAt int64
}
