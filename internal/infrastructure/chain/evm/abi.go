package evmchain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	eventPriceCommitted       = "PriceCommitted"
	eventPriceRevealed        = "PriceRevealed"
	eventRootSigned           = "RootSigned"
	eventRoundFinalized       = "RoundFinalized"
	eventRewardOffered        = "RewardOffered"
	eventRewardRootSigned     = "RewardRootSigned"
	eventRewardEpochFinalized = "RewardEpochFinalized"

	methodCommit          = "commit"
	methodReveal          = "reveal"
	methodSignRoot        = "signRoot"
	methodFinalize        = "finalize"
	methodSignRewardRoot  = "signRewardRoot"
	methodFinalizeRewards = "finalizeRewards"
	methodIsFinalized     = "isFinalized"
	methodGetVoterWeights = "getVoterWeights"
)

// protocolABI covers the voting, reward and registry contracts. Event and
// method names don't overlap so a single ABI is enough.
const protocolABI = `[
	{"type":"event","name":"PriceCommitted","inputs":[
		{"name":"round","type":"uint256","indexed":true},
		{"name":"voter","type":"address","indexed":true},
		{"name":"commitHash","type":"bytes32","indexed":false}]},
	{"type":"event","name":"PriceRevealed","inputs":[
		{"name":"round","type":"uint256","indexed":true},
		{"name":"voter","type":"address","indexed":true},
		{"name":"random","type":"uint256","indexed":false},
		{"name":"prices","type":"bytes","indexed":false},
		{"name":"bitVote","type":"bytes","indexed":false}]},
	{"type":"event","name":"RootSigned","inputs":[
		{"name":"round","type":"uint256","indexed":true},
		{"name":"root","type":"bytes32","indexed":false},
		{"name":"signature","type":"bytes","indexed":false}]},
	{"type":"event","name":"RoundFinalized","inputs":[
		{"name":"round","type":"uint256","indexed":true},
		{"name":"root","type":"bytes32","indexed":false},
		{"name":"finalizer","type":"address","indexed":false}]},
	{"type":"event","name":"RewardOffered","inputs":[
		{"name":"rewardEpoch","type":"uint256","indexed":true},
		{"name":"offerSymbol","type":"bytes4","indexed":false},
		{"name":"quoteSymbol","type":"bytes4","indexed":false},
		{"name":"currency","type":"address","indexed":false},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"leadProviders","type":"address[]","indexed":false},
		{"name":"rewardBeltPPM","type":"uint32","indexed":false},
		{"name":"elasticBandWidthPPM","type":"uint32","indexed":false},
		{"name":"iqrSharePPM","type":"uint32","indexed":false},
		{"name":"pctSharePPM","type":"uint32","indexed":false},
		{"name":"remainderClaimer","type":"address","indexed":false}]},
	{"type":"event","name":"RewardRootSigned","inputs":[
		{"name":"rewardEpoch","type":"uint256","indexed":true},
		{"name":"root","type":"bytes32","indexed":false},
		{"name":"signature","type":"bytes","indexed":false}]},
	{"type":"event","name":"RewardEpochFinalized","inputs":[
		{"name":"rewardEpoch","type":"uint256","indexed":true},
		{"name":"root","type":"bytes32","indexed":false},
		{"name":"finalizer","type":"address","indexed":false}]},
	{"type":"function","name":"commit","stateMutability":"nonpayable","inputs":[
		{"name":"round","type":"uint256"},
		{"name":"commitHash","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"reveal","stateMutability":"nonpayable","inputs":[
		{"name":"round","type":"uint256"},
		{"name":"random","type":"uint256"},
		{"name":"prices","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"signRoot","stateMutability":"nonpayable","inputs":[
		{"name":"round","type":"uint256"},
		{"name":"root","type":"bytes32"},
		{"name":"signature","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"finalize","stateMutability":"nonpayable","inputs":[
		{"name":"round","type":"uint256"},
		{"name":"root","type":"bytes32"},
		{"name":"signers","type":"address[]"},
		{"name":"signatures","type":"bytes[]"}],"outputs":[]},
	{"type":"function","name":"signRewardRoot","stateMutability":"nonpayable","inputs":[
		{"name":"rewardEpoch","type":"uint256"},
		{"name":"root","type":"bytes32"},
		{"name":"signature","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"finalizeRewards","stateMutability":"nonpayable","inputs":[
		{"name":"rewardEpoch","type":"uint256"},
		{"name":"root","type":"bytes32"},
		{"name":"signers","type":"address[]"},
		{"name":"signatures","type":"bytes[]"}],"outputs":[]},
	{"type":"function","name":"isFinalized","stateMutability":"view","inputs":[
		{"name":"round","type":"uint256"}],"outputs":[
		{"name":"","type":"bool"}]},
	{"type":"function","name":"getVoterWeights","stateMutability":"view","inputs":[
		{"name":"rewardEpoch","type":"uint256"}],"outputs":[
		{"name":"voters","type":"address[]"},
		{"name":"weights","type":"uint256[]"}]}
]`

var contractABI = mustParseABI(protocolABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
