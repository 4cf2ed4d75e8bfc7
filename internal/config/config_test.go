package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePrices(t *testing.T) {
	prices, err := parsePrices("BTC-USD=60000, ETH-USD = 3000,")
	require.NoError(t, err)
	require.Equal(t, map[string]uint32{"BTC-USD": 60000, "ETH-USD": 3000}, prices)

	prices, err = parsePrices("")
	require.NoError(t, err)
	require.Empty(t, prices)

	fixtures := []string{"BTC-USD", "BTC-USD=abc", "BTC-USD=1=2", "BTC-USD=-1", "BTC-USD=4294967296"}
	for _, f := range fixtures {
		_, err := parsePrices(f)
		require.Error(t, err, f)
	}
}

func TestSplitList(t *testing.T) {
	require.Equal(t, []string{"BTC-USD", "ETH-USD"}, splitList(" BTC-USD,,ETH-USD "))
	require.Empty(t, splitList(""))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			EventDbType:      "badger",
			DbType:           "badger",
			SchedulerType:    "gocron",
			LiveStoreType:    "inmemory",
			PriceFeedType:    "static",
			Feeds:            []string{"BTC-USD"},
			ThresholdBips:    5000,
			BurnAddress:      defaultBurnAddress,
			VotingContract:   "0x000000000000000000000000000000000000a001",
			RegistryContract: "0x000000000000000000000000000000000000a002",
			RewardContract:   "0x000000000000000000000000000000000000a003",
		}
	}

	fixtures := []struct {
		name        string
		mutate      func(c *Config)
		expectedErr string
	}{
		{"event db", func(c *Config) { c.EventDbType = "postgres" }, "event db type not supported"},
		{"db", func(c *Config) { c.DbType = "postgres" }, "db type not supported"},
		{"scheduler", func(c *Config) { c.SchedulerType = "cron" }, "scheduler type not supported"},
		{"live store", func(c *Config) { c.LiveStoreType = "memcached" }, "live store type not supported"},
		{"price feed", func(c *Config) { c.PriceFeedType = "http" }, "price feed type not supported"},
		{"feeds", func(c *Config) { c.Feeds = nil }, "missing feeds"},
		{"threshold", func(c *Config) { c.ThresholdBips = 10_001 }, "invalid threshold"},
		{"grace", func(c *Config) { c.FinalizationGraceSec = -1 }, "invalid finalization grace"},
		{"burn address", func(c *Config) { c.BurnAddress = "burn" }, "invalid burn address"},
		{"contract", func(c *Config) { c.RewardContract = "" }, "invalid contract address"},
		{"rpc", func(c *Config) {}, "missing rpc url"},
		{"key", func(c *Config) { c.RpcUrl = "http://localhost:8545" }, "missing private key"},
	}

	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			c := valid()
			f.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), f.expectedErr)
		})
	}
}
