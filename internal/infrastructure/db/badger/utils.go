package badgerdb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

func createDB(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)

		go func() {
			for {
				<-ticker.C
				if err := db.Badger().RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
					logger.Errorf("%s", err)
				}
			}
		}()
	}

	return db, nil
}

func parseConfig(config []interface{}) (string, badger.Logger, error) {
	if len(config) != 2 {
		return "", nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return "", nil, fmt.Errorf("invalid base directory")
	}

	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return "", nil, fmt.Errorf("invalid logger")
		}
	}
	return baseDir, logger, nil
}

func encodeEvent(event domain.RoundEvent) ([]byte, error) {
	return json.Marshal(event)
}

func decodeEvent(eventType domain.EventType, data []byte) (domain.RoundEvent, error) {
	switch eventType {
	case domain.EventTypeRoundStarted:
		return decodeAs[domain.RoundStarted](data)
	case domain.EventTypePricesCommitted:
		return decodeAs[domain.PricesCommitted](data)
	case domain.EventTypePricesRevealed:
		return decodeAs[domain.PricesRevealed](data)
	case domain.EventTypeRoundAggregated:
		return decodeAs[domain.RoundAggregated](data)
	case domain.EventTypeRootSigned:
		return decodeAs[domain.RootSigned](data)
	case domain.EventTypeRoundFinalized:
		return decodeAs[domain.RoundFinalized](data)
	case domain.EventTypeRoundFailed:
		return decodeAs[domain.RoundFailed](data)
	default:
		return nil, fmt.Errorf("unknown event type %d", eventType)
	}
}

func decodeAs[T domain.RoundEvent](data []byte) (domain.RoundEvent, error) {
	var event T
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return event, nil
}
