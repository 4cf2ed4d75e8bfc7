package evmchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// eventStream polls the protocol contracts for logs and emits them as
// protocol events in block order.
type eventStream struct {
	backend      Backend
	contracts    []common.Address
	startBlock   uint64
	pollInterval time.Duration
	batchSize    uint64

	lock   sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewEventStream(backend Backend, cfg Config) (ports.EventStream, error) {
	if backend == nil {
		return nil, fmt.Errorf("missing chain backend")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &eventStream{
		backend:      backend,
		contracts:    []common.Address{cfg.VotingContract, cfg.RewardContract},
		startBlock:   cfg.StartBlock,
		pollInterval: cfg.pollInterval(),
		batchSize:    cfg.blockBatchSize(),
	}, nil
}

// Start emits the events of every round from fromRound on. Reward epoch
// events are always emitted.
func (s *eventStream) Start(ctx context.Context, fromRound uint64) (<-chan domain.ProtocolEvent, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.cancel != nil {
		return nil, fmt.Errorf("event stream already started")
	}

	startBlock := s.startBlock
	if startBlock == 0 {
		header, err := s.backend.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get latest block: %w", err)
		}
		startBlock = header.Number.Uint64()
	}
	log.Debugf("streaming protocol events from block %d", startBlock)

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	ch := make(chan domain.ProtocolEvent, defaultEventBuffer)
	go s.run(ctx, startBlock, fromRound, ch)
	return ch, nil
}

func (s *eventStream) Stop() {
	s.lock.Lock()
	cancel, done := s.cancel, s.done
	s.lock.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *eventStream) run(
	ctx context.Context, nextBlock, fromRound uint64, ch chan<- domain.ProtocolEvent,
) {
	defer close(s.done)
	defer close(ch)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		var events []domain.ProtocolEvent
		bo := backoff.WithContext(newBackOff(), ctx)
		err := backoff.Retry(func() error {
			var err error
			events, nextBlock, err = s.poll(ctx, nextBlock)
			return err
		}, bo)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warnf("failed to poll protocol events from block %d", nextBlock)
		}

		for _, event := range events {
			if event.Scope() == domain.ScopeRound && event.ScopeId() < fromRound {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case ch <- event:
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll fetches the logs from the given block up to the chain tip, at most one
// batch at a time, and returns the next block to poll.
func (s *eventStream) poll(ctx context.Context, fromBlock uint64) ([]domain.ProtocolEvent, uint64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	header, err := s.backend.HeaderByNumber(reqCtx, nil)
	if err != nil {
		return nil, fromBlock, fmt.Errorf("failed to get latest block: %w", err)
	}
	latest := header.Number.Uint64()
	if latest < fromBlock {
		return nil, fromBlock, nil
	}
	toBlock := min(latest, fromBlock+s.batchSize-1)

	logs, err := s.backend.FilterLogs(reqCtx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: s.contracts,
		Topics:    [][]common.Hash{eventTopics()},
	})
	if err != nil {
		return nil, fromBlock, fmt.Errorf("failed to filter logs: %w", err)
	}

	blockTimes := make(map[uint64]time.Time)
	events := make([]domain.ProtocolEvent, 0, len(logs))
	txHashes := make([]common.Hash, 0, len(logs))
	for _, vLog := range logs {
		if vLog.Removed {
			continue
		}
		observedAt, ok := blockTimes[vLog.BlockNumber]
		if !ok {
			blockHeader, err := s.backend.HeaderByNumber(reqCtx, new(big.Int).SetUint64(vLog.BlockNumber))
			if err != nil {
				return nil, fromBlock, fmt.Errorf("failed to get block %d: %w", vLog.BlockNumber, err)
			}
			observedAt = time.Unix(int64(blockHeader.Time), 0)
			blockTimes[vLog.BlockNumber] = observedAt
		}

		event, err := decodeLog(vLog, observedAt)
		if err != nil {
			log.WithError(err).Warnf("skipping log %d of tx %s", vLog.Index, vLog.TxHash.Hex())
			continue
		}
		if event == nil {
			continue
		}
		events = append(events, event)
		txHashes = append(txHashes, vLog.TxHash)
	}

	log.Debugf("found %d protocol events in blocks %d-%d", len(events), fromBlock, toBlock)
	return mergeOffers(events, txHashes), toBlock + 1, nil
}

func newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.Multiplier = 1.5
	bo.MaxInterval = 4 * time.Second
	bo.MaxElapsedTime = 15 * time.Second
	return bo
}
