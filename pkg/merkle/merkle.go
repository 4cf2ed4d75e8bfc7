// Package merkle builds the sorted-pair keccak tree used for round results
// and reward claims. Siblings are ordered before hashing, so proofs carry no
// left/right flags.
package merkle

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrLeafNotFound = errors.New("leaf not found in tree")

// Tree is stored as an array heap of 2n-1 nodes: the root at index 0 and the
// leaves, in the order given, at the tail.
type Tree struct {
	nodes     []common.Hash
	numLeaves int
}

func New(leaves []common.Hash) *Tree {
	n := len(leaves)
	if n <= 0 {
		return &Tree{}
	}

	nodes := make([]common.Hash, 2*n-1)
	copy(nodes[n-1:], leaves)
	for i := n - 2; i >= 0; i-- {
		nodes[i] = HashPair(nodes[2*i+1], nodes[2*i+2])
	}
	return &Tree{nodes, n}
}

// Root returns false for an empty tree.
func (t *Tree) Root() (common.Hash, bool) {
	if t.numLeaves <= 0 {
		return common.Hash{}, false
	}
	return t.nodes[0], true
}

func (t *Tree) Leaves() []common.Hash {
	if t.numLeaves <= 0 {
		return nil
	}
	leaves := make([]common.Hash, t.numLeaves)
	copy(leaves, t.nodes[t.numLeaves-1:])
	return leaves
}

// Proof returns the sibling path from the first occurrence of leaf up to the
// root.
func (t *Tree) Proof(leaf common.Hash) ([]common.Hash, error) {
	pos := -1
	for i := t.numLeaves - 1; i < len(t.nodes); i++ {
		if t.nodes[i] == leaf {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, ErrLeafNotFound
	}

	proof := make([]common.Hash, 0)
	for pos > 0 {
		sibling := pos - 1
		if pos%2 == 1 {
			sibling = pos + 1
		}
		proof = append(proof, t.nodes[sibling])
		pos = (pos - 1) / 2
	}
	return proof, nil
}

func Verify(leaf common.Hash, proof []common.Hash, root common.Hash) bool {
	hash := leaf
	for _, sibling := range proof {
		hash = HashPair(hash, sibling)
	}
	return hash == root
}

// HashPair is keccak256 of the two hashes concatenated in ascending order.
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}
