package application

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

func sortAddresses(addrs []common.Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
}
