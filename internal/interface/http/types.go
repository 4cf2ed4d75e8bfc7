package httpservice

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ftso-network/ftso/internal/core/application"
	"github.com/ftso-network/ftso/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Address            string   `json:"address"`
	CurrentRound       uint64   `json:"currentRound"`
	CurrentRewardEpoch uint64   `json:"currentRewardEpoch"`
	LastProcessedRound *uint64  `json:"lastProcessedRound,omitempty"`
	RoundWatermark     *uint64  `json:"roundWatermark,omitempty"`
	RewardWatermark    *uint64  `json:"rewardWatermark,omitempty"`
	Feeds              []string `json:"feeds"`
}

type roundResponse struct {
	Id                string   `json:"id"`
	Round             uint64   `json:"round"`
	RewardEpoch       uint64   `json:"rewardEpoch"`
	Stage             string   `json:"stage"`
	Ended             bool     `json:"ended"`
	Failed            bool     `json:"failed"`
	FailReason        string   `json:"failReason,omitempty"`
	StartingTimestamp int64    `json:"startingTimestamp"`
	EndingTimestamp   int64    `json:"endingTimestamp"`
	CommitHash        string   `json:"commitHash"`
	Prices            []uint32 `json:"prices"`
	NumReveals        int      `json:"numReveals"`
	NumFailedReveals  int      `json:"numFailedReveals"`
	MerkleRoot        string   `json:"merkleRoot"`
	Random            string   `json:"random"`
	SecureRandom      bool     `json:"secureRandom"`
	Signature         string   `json:"signature,omitempty"`
	FinalizedRoot     string   `json:"finalizedRoot,omitempty"`
	Finalizer         string   `json:"finalizer,omitempty"`
}

type feedResultResponse struct {
	FeedId         string   `json:"feedId"`
	MedianPrice    uint32   `json:"medianPrice"`
	Quartile1Price uint32   `json:"quartile1Price"`
	Quartile3Price uint32   `json:"quartile3Price"`
	Voters         []string `json:"voters"`
	Prices         []uint32 `json:"prices"`
	Weights        []string `json:"weights"`
}

type roundResultsResponse struct {
	Round        uint64               `json:"round"`
	MerkleRoot   string               `json:"merkleRoot"`
	Random       string               `json:"random"`
	SecureRandom bool                 `json:"secureRandom"`
	Results      []feedResultResponse `json:"results"`
}

type finalizationResponse struct {
	Scope     string `json:"scope"`
	Id        uint64 `json:"id"`
	Root      string `json:"root"`
	Finalizer string `json:"finalizer"`
	Timestamp int64  `json:"timestamp"`
}

type claimResponse struct {
	Type        string   `json:"type"`
	Beneficiary string   `json:"beneficiary"`
	Currency    string   `json:"currency"`
	Amount      string   `json:"amount"`
	Round       uint64   `json:"round"`
	Proof       []string `json:"proof"`
}

type claimsResponse struct {
	RewardEpoch uint64          `json:"rewardEpoch"`
	MerkleRoot  string          `json:"merkleRoot"`
	Claims      []claimResponse `json:"claims"`
}

func toStatusResponse(s *application.Status) statusResponse {
	return statusResponse{
		Address:            s.Address,
		CurrentRound:       s.CurrentRound,
		CurrentRewardEpoch: s.CurrentRewardEpoch,
		LastProcessedRound: s.LastProcessedRound,
		RoundWatermark:     s.RoundWatermark,
		RewardWatermark:    s.RewardWatermark,
		Feeds:              s.Feeds,
	}
}

func toRoundResponse(r *domain.Round) roundResponse {
	resp := roundResponse{
		Id:                r.Id,
		Round:             r.Epoch,
		RewardEpoch:       r.RewardEpoch,
		Stage:             r.Stage.Code.String(),
		Ended:             r.Stage.Ended,
		Failed:            r.Stage.Failed,
		FailReason:        r.FailReason,
		StartingTimestamp: r.StartingTimestamp,
		EndingTimestamp:   r.EndingTimestamp,
		CommitHash:        r.CommitHash.Hex(),
		Prices:            r.Prices,
		NumReveals:        r.NumReveals,
		NumFailedReveals:  r.NumFailedReveals,
		MerkleRoot:        r.MerkleRoot.Hex(),
		Random:            r.Random.String(),
		SecureRandom:      r.SecureRandom,
	}
	if len(r.Signature) > 0 {
		resp.Signature = hexutil.Encode(r.Signature)
	}
	if r.Finalizer != (common.Address{}) {
		resp.FinalizedRoot = r.FinalizedRoot.Hex()
		resp.Finalizer = r.Finalizer.Hex()
	}
	return resp
}

func toRoundResultsResponse(r *domain.RoundResults) roundResultsResponse {
	results := make([]feedResultResponse, 0, len(r.Results))
	for _, res := range r.Results {
		voters := make([]string, 0, len(res.Voters))
		for _, v := range res.Voters {
			voters = append(voters, v.Hex())
		}
		weights := make([]string, 0, len(res.Weights))
		for _, w := range res.Weights {
			weights = append(weights, w.String())
		}
		results = append(results, feedResultResponse{
			FeedId:         res.FeedId,
			MedianPrice:    res.FinalMedianPrice,
			Quartile1Price: res.Quartile1Price,
			Quartile3Price: res.Quartile3Price,
			Voters:         voters,
			Prices:         res.Prices,
			Weights:        weights,
		})
	}
	return roundResultsResponse{
		Round:        r.Round,
		MerkleRoot:   r.MerkleRoot.Hex(),
		Random:       r.Random.String(),
		SecureRandom: r.SecureRandom,
		Results:      results,
	}
}

func toFinalizationResponse(f *domain.Finalization) finalizationResponse {
	return finalizationResponse{
		Scope:     f.Scope,
		Id:        f.Id,
		Root:      f.Root.Hex(),
		Finalizer: f.Finalizer.Hex(),
		Timestamp: f.Timestamp,
	}
}

func toClaimsResponse(c *application.ClaimsInfo) claimsResponse {
	claims := make([]claimResponse, 0, len(c.Claims))
	for _, cp := range c.Claims {
		proof := make([]string, 0, len(cp.Proof))
		for _, p := range cp.Proof {
			proof = append(proof, p.Hex())
		}
		claims = append(claims, claimResponse{
			Type:        cp.Claim.Type.String(),
			Beneficiary: cp.Claim.Beneficiary.Hex(),
			Currency:    cp.Claim.Currency.Hex(),
			Amount:      cp.Claim.Amount.String(),
			Round:       cp.Claim.Round,
			Proof:       proof,
		})
	}
	return claimsResponse{
		RewardEpoch: c.RewardEpoch,
		MerkleRoot:  c.MerkleRoot.Hex(),
		Claims:      claims,
	}
}
