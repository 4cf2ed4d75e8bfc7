// Package codec implements the commit/reveal hashing and the leaf encodings
// that the on-chain verifier recomputes. Changing any byte layout here is a
// protocol break.
package codec

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ftso-network/ftso/pkg/amount"
)

const priceLen = 4

var (
	addressTy = mustType("address")
	uint256Ty = mustType("uint256")
	uint32Ty  = mustType("uint32")
	uint8Ty   = mustType("uint8")
	bytes32Ty = mustType("bytes32")
	bytes4Ty  = mustType("bytes4")
	bytesTy   = mustType("bytes")
	boolTy    = mustType("bool")
	stringTy  = mustType("string")

	commitArgs      = args(addressTy, uint256Ty, bytes32Ty, bytesTy)
	bulkPricesArgs  = args(uint256Ty, bytesTy)
	feedPriceArgs   = args(uint256Ty, bytes4Ty, bytes4Ty, uint32Ty)
	randomArgs      = args(uint256Ty, uint256Ty, boolTy)
	rewardClaimArgs = args(uint256Ty, addressTy, addressTy, uint256Ty, uint8Ty)
	selectArgs      = args(stringTy, uint256Ty, addressTy)
)

// PackPrices encodes each price as a 4-byte big-endian word, in feed order.
func PackPrices(prices []uint32) []byte {
	buf := make([]byte, len(prices)*priceLen)
	for i, price := range prices {
		binary.BigEndian.PutUint32(buf[i*priceLen:], price)
	}
	return buf
}

func UnpackPrices(buf []byte) ([]uint32, error) {
	if len(buf)%priceLen != 0 {
		return nil, fmt.Errorf("invalid packed prices length %d", len(buf))
	}
	prices := make([]uint32, 0, len(buf)/priceLen)
	for i := 0; i < len(buf); i += priceLen {
		prices = append(prices, binary.BigEndian.Uint32(buf[i:]))
	}
	return prices, nil
}

// CommitHash is keccak256(abi.encode(voter, random, bytes32(0), packedPrices)).
func CommitHash(voter common.Address, random amount.Amount, packedPrices []byte) common.Hash {
	return hashArgs(commitArgs, voter, random.Big(), [32]byte{}, packedPrices)
}

func ValidateReveal(
	commit common.Hash, voter common.Address, random amount.Amount, packedPrices []byte,
) bool {
	return CommitHash(voter, random, packedPrices) == commit
}

func BulkPricesLeaf(round uint64, packedMedians []byte) common.Hash {
	return hashArgs(bulkPricesArgs, new(big.Int).SetUint64(round), packedMedians)
}

func FeedPriceLeaf(round uint64, feed Feed, price uint32) common.Hash {
	return hashArgs(
		feedPriceArgs,
		new(big.Int).SetUint64(round), [4]byte(feed.OfferSymbol), [4]byte(feed.QuoteSymbol), price,
	)
}

func RandomLeaf(round uint64, random amount.Amount, secure bool) common.Hash {
	return hashArgs(randomArgs, new(big.Int).SetUint64(round), random.Big(), secure)
}

func RewardClaimLeaf(
	rewardEpoch uint64, beneficiary, currency common.Address, value amount.Amount, claimType uint8,
) common.Hash {
	return hashArgs(
		rewardClaimArgs,
		new(big.Int).SetUint64(rewardEpoch), beneficiary, currency, value.Big(), claimType,
	)
}

// RandomSelect breaks ties for votes sitting exactly on an IQR boundary.
func RandomSelect(feedId string, round uint64, voter common.Address) bool {
	h := hashArgs(selectArgs, feedId, new(big.Int).SetUint64(round), voter)
	return h[common.HashLength-1]&1 == 1
}

// SignatureHash is the EIP-191 personal message hash of a merkle root.
func SignatureHash(root common.Hash) common.Hash {
	return common.BytesToHash(accounts.TextHash(root.Bytes()))
}

func hashArgs(arguments abi.Arguments, values ...interface{}) common.Hash {
	buf, err := arguments.Pack(values...)
	if err != nil {
		// all argument types are static, this only fails on a programming error
		panic(fmt.Sprintf("failed to abi encode values: %s", err))
	}
	return crypto.Keccak256Hash(buf)
}

func args(types ...abi.Type) abi.Arguments {
	arguments := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		arguments = append(arguments, abi.Argument{Type: t})
	}
	return arguments
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}
