package evmchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

// fakeBackend serves headers, logs and contract calls from memory. Calling
// any other backend method panics.
type fakeBackend struct {
	bind.ContractBackend

	lock    sync.Mutex
	latest  uint64
	logs    []types.Log
	outputs map[string][]byte
	calls   map[string]int
}

func newFakeBackend(latest uint64) *fakeBackend {
	return &fakeBackend{
		latest:  latest,
		outputs: make(map[string][]byte),
		calls:   make(map[string]int),
	}
}

func (b *fakeBackend) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	n := b.latest
	if number != nil {
		n = number.Uint64()
	}
	return &types.Header{Number: new(big.Int).SetUint64(n), Time: blockTime(n)}, nil
}

func (b *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	logs := make([]types.Log, 0)
	for _, l := range b.logs {
		if l.BlockNumber < q.FromBlock.Uint64() || l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func (b *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	method, err := contractABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	b.calls[method.Name]++
	out, ok := b.outputs[method.Name]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return out, nil
}

func (b *fakeBackend) setOutput(t *testing.T, method string, values ...interface{}) {
	out, err := contractABI.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)

	b.lock.Lock()
	defer b.lock.Unlock()
	b.outputs[method] = out
}

func (b *fakeBackend) addLogs(latest uint64, logs ...types.Log) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.logs = append(b.logs, logs...)
	b.latest = latest
}

func (b *fakeBackend) callCount(method string) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.calls[method]
}

func blockTime(n uint64) uint64 {
	return 1_700_000_000 + n*2
}

func makeLog(
	t *testing.T, name string, block uint64, tx common.Hash, topics []common.Hash, values ...interface{},
) types.Log {
	event := contractABI.Events[name]
	data, err := event.Inputs.NonIndexed().Pack(values...)
	require.NoError(t, err)

	return types.Log{
		Topics:      append([]common.Hash{event.ID}, topics...),
		Data:        data,
		BlockNumber: block,
		TxHash:      tx,
	}
}

func idTopic(id uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(id))
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
