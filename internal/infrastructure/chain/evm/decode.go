package evmchain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/ftso-network/ftso/pkg/codec"
	"github.com/ftso-network/ftso/pkg/rewards"
)

type priceCommitted struct {
	CommitHash [32]byte
}

type priceRevealed struct {
	Random  *big.Int
	Prices  []byte
	BitVote []byte
}

type rootSigned struct {
	Root      [32]byte
	Signature []byte
}

type rootFinalized struct {
	Root      [32]byte
	Finalizer common.Address
}

type rewardOffered struct {
	OfferSymbol         [4]byte
	QuoteSymbol         [4]byte
	Currency            common.Address
	Amount              *big.Int
	LeadProviders       []common.Address
	RewardBeltPPM       uint32
	ElasticBandWidthPPM uint32
	IqrSharePPM         uint32
	PctSharePPM         uint32
	RemainderClaimer    common.Address
}

var eventNames = func() map[common.Hash]string {
	names := make(map[common.Hash]string)
	for name, event := range contractABI.Events {
		names[event.ID] = name
	}
	return names
}()

func eventTopics() []common.Hash {
	topics := make([]common.Hash, 0, len(eventNames))
	for id := range eventNames {
		topics = append(topics, id)
	}
	return topics
}

// decodeLog turns a contract log into a protocol event. Logs of unknown
// events return a nil event.
func decodeLog(vLog types.Log, observedAt time.Time) (domain.ProtocolEvent, error) {
	if len(vLog.Topics) < 2 {
		return nil, nil
	}
	name, ok := eventNames[vLog.Topics[0]]
	if !ok {
		return nil, nil
	}
	id, err := topicToUint64(vLog.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("invalid %s log: %s", name, err)
	}

	switch name {
	case eventPriceCommitted:
		if len(vLog.Topics) < 3 {
			return nil, fmt.Errorf("invalid %s log: missing voter topic", name)
		}
		var data priceCommitted
		if err := contractABI.UnpackIntoInterface(&data, name, vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s log: %s", name, err)
		}
		return domain.CommitObserved{
			Round:      id,
			Voter:      common.BytesToAddress(vLog.Topics[2].Bytes()),
			CommitHash: data.CommitHash,
			ObservedAt: observedAt,
		}, nil

	case eventPriceRevealed:
		if len(vLog.Topics) < 3 {
			return nil, fmt.Errorf("invalid %s log: missing voter topic", name)
		}
		var data priceRevealed
		if err := contractABI.UnpackIntoInterface(&data, name, vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s log: %s", name, err)
		}
		random, err := amount.FromBig(data.Random)
		if err != nil {
			return nil, fmt.Errorf("invalid random in %s log: %s", name, err)
		}
		return domain.RevealObserved{
			Round:        id,
			Voter:        common.BytesToAddress(vLog.Topics[2].Bytes()),
			Random:       random,
			PackedPrices: data.Prices,
			BitVote:      data.BitVote,
			ObservedAt:   observedAt,
		}, nil

	case eventRootSigned, eventRewardRootSigned:
		var data rootSigned
		if err := contractABI.UnpackIntoInterface(&data, name, vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s log: %s", name, err)
		}
		if name == eventRewardRootSigned {
			return domain.RewardSignatureObserved{
				RewardEpoch: id,
				Root:        data.Root,
				Signature:   data.Signature,
				ObservedAt:  observedAt,
			}, nil
		}
		return domain.SignatureObserved{
			Round:      id,
			Root:       data.Root,
			Signature:  data.Signature,
			ObservedAt: observedAt,
		}, nil

	case eventRoundFinalized, eventRewardEpochFinalized:
		var data rootFinalized
		if err := contractABI.UnpackIntoInterface(&data, name, vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s log: %s", name, err)
		}
		if name == eventRewardEpochFinalized {
			return domain.RewardFinalizationObserved{
				RewardEpoch: id,
				Root:        data.Root,
				Finalizer:   data.Finalizer,
				ObservedAt:  observedAt,
			}, nil
		}
		return domain.FinalizationObserved{
			Round:      id,
			Root:       data.Root,
			Finalizer:  data.Finalizer,
			ObservedAt: observedAt,
		}, nil

	case eventRewardOffered:
		var data rewardOffered
		if err := contractABI.UnpackIntoInterface(&data, name, vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s log: %s", name, err)
		}
		value, err := amount.FromBig(data.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount in %s log: %s", name, err)
		}
		return domain.RewardOffersObserved{
			RewardEpoch: id,
			Offers: []rewards.Offer{{
				Feed: codec.Feed{
					OfferSymbol: codec.Symbol(data.OfferSymbol),
					QuoteSymbol: codec.Symbol(data.QuoteSymbol),
				},
				Currency:            data.Currency,
				Amount:              value,
				LeadProviders:       data.LeadProviders,
				RewardBeltPPM:       data.RewardBeltPPM,
				ElasticBandWidthPPM: data.ElasticBandWidthPPM,
				IqrSharePPM:         data.IqrSharePPM,
				PctSharePPM:         data.PctSharePPM,
				RemainderClaimer:    data.RemainderClaimer,
			}},
			ObservedAt: observedAt,
		}, nil
	}

	return nil, nil
}

// mergeOffers folds the offers emitted by the same transaction for the same
// reward epoch into a single event, keeping the log order.
func mergeOffers(events []domain.ProtocolEvent, txHashes []common.Hash) []domain.ProtocolEvent {
	type offerKey struct {
		tx    common.Hash
		epoch uint64
	}

	merged := make([]domain.ProtocolEvent, 0, len(events))
	positions := make(map[offerKey]int)
	for i, event := range events {
		offers, ok := event.(domain.RewardOffersObserved)
		if !ok {
			merged = append(merged, event)
			continue
		}
		key := offerKey{txHashes[i], offers.RewardEpoch}
		if pos, ok := positions[key]; ok {
			prev := merged[pos].(domain.RewardOffersObserved)
			prev.Offers = append(prev.Offers, offers.Offers...)
			merged[pos] = prev
			continue
		}
		positions[key] = len(merged)
		merged = append(merged, offers)
	}
	return merged
}

func topicToUint64(topic common.Hash) (uint64, error) {
	v := new(big.Int).SetBytes(topic.Bytes())
	if !v.IsUint64() {
		return 0, fmt.Errorf("id %s overflows uint64", v)
	}
	return v.Uint64(), nil
}
