package median

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/ftso-network/ftso/pkg/codec"
)

type BandParams struct {
	LeadProviders       []common.Address
	RewardBeltPPM       uint32
	ElasticBandWidthPPM uint32
}

type VoterRecord struct {
	Voter    common.Address
	Price    uint32
	Weight   amount.Amount
	InIQR    bool
	InPct    bool
	Eligible bool
}

// EligibilityWindow is the reward belt around the median of the lead
// providers' votes. ok is false when no lead provider voted, in which case
// every voter is eligible.
func EligibilityWindow(result *Result, params BandParams) (low, high uint64, ok bool) {
	if len(params.LeadProviders) <= 0 {
		return 0, 0, false
	}
	leads := make(map[common.Address]struct{}, len(params.LeadProviders))
	for _, addr := range params.LeadProviders {
		leads[addr] = struct{}{}
	}

	voters := make([]common.Address, 0)
	prices := make([]uint32, 0)
	weights := make([]amount.Amount, 0)
	for i, voter := range result.Voters {
		if _, isLead := leads[voter]; !isLead {
			continue
		}
		voters = append(voters, voter)
		prices = append(prices, result.Prices[i])
		weights = append(weights, result.Weights[i])
	}

	trusted, err := Calculate(result.Round, result.Feed, voters, prices, weights)
	if err != nil {
		return 0, 0, false
	}
	low, high = Band(trusted.FinalMedianPrice, params.RewardBeltPPM)
	return low, high, true
}

// Classify flags every vote of the result as in IQR band, in elastic band
// and eligible for rewards.
func Classify(result *Result, params BandParams) []VoterRecord {
	lowPct, highPct := Band(result.FinalMedianPrice, params.ElasticBandWidthPPM)
	lowElig, highElig, hasWindow := EligibilityWindow(result, params)
	q1, q3 := result.Quartile1Price, result.Quartile3Price
	feedId := result.Feed.Id()

	records := make([]VoterRecord, 0, len(result.Voters))
	for i, voter := range result.Voters {
		price := result.Prices[i]

		inIQR := price > q1 && price < q3
		if !inIQR && (price == q1 || price == q3) {
			inIQR = codec.RandomSelect(feedId, result.Round, voter)
		}

		eligible := true
		if hasWindow {
			eligible = uint64(price) >= lowElig && uint64(price) <= highElig
		}

		records = append(records, VoterRecord{
			Voter:    voter,
			Price:    price,
			Weight:   result.Weights[i],
			InIQR:    inIQR,
			InPct:    uint64(price) > lowPct && uint64(price) < highPct,
			Eligible: eligible,
		})
	}
	return records
}
