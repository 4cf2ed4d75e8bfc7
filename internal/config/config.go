package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ftso-network/ftso/internal/core/application"
	"github.com/ftso-network/ftso/internal/core/ports"
	evmchain "github.com/ftso-network/ftso/internal/infrastructure/chain/evm"
	"github.com/ftso-network/ftso/internal/infrastructure/db"
	sqlitedb "github.com/ftso-network/ftso/internal/infrastructure/db/sqlite"
	inmemorylivestore "github.com/ftso-network/ftso/internal/infrastructure/live-store/inmemory"
	redislivestore "github.com/ftso-network/ftso/internal/infrastructure/live-store/redis"
	randomfeed "github.com/ftso-network/ftso/internal/infrastructure/price-feed/random"
	staticfeed "github.com/ftso-network/ftso/internal/infrastructure/price-feed/static"
	chainscheduler "github.com/ftso-network/ftso/internal/infrastructure/scheduler/chain"
	timescheduler "github.com/ftso-network/ftso/internal/infrastructure/scheduler/gocron"
	"github.com/ftso-network/ftso/internal/infrastructure/signer"
	"github.com/ftso-network/ftso/pkg/codec"
	"github.com/ftso-network/ftso/pkg/rewards"
	"github.com/ftso-network/ftso/pkg/roundclock"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	supportedEventDbs = supportedType{
		"badger":    {},
		"watermill": {},
	}
	supportedDbs = supportedType{
		"badger": {},
		"sqlite": {},
	}
	supportedSchedulers = supportedType{
		"gocron": {},
		"block":  {},
	}
	supportedLiveStores = supportedType{
		"inmemory": {},
		"redis":    {},
	}
	supportedPriceFeeds = supportedType{
		"static": {},
		"random": {},
	}
)

type Config struct {
	Datadir  string
	Port     uint32
	LogLevel int

	DbType            string
	EventDbType       string
	DbDir             string
	EventDbDir        string
	SchedulerType     string
	LiveStoreType     string
	RedisUrl          string
	RedisNumOfRetries int
	PriceFeedType     string
	Feeds             []string
	StaticPrices      map[string]uint32
	PriceJitterBips   uint32

	RpcUrl            string
	PrivateKey        string `json:"-"`
	ChainId           int64
	VotingContract    string
	RegistryContract  string
	RewardContract    string
	EventPollInterval time.Duration
	StartBlock        uint64

	FirstRoundStartSec   uint64
	RoundDurationSec     uint64
	FirstRewardedRound   uint64
	RoundsPerRewardEpoch uint64

	SigningBips          uint64
	FinalizationBips     uint64
	ThresholdBips        uint64
	PenaltyFactor        uint64
	BurnAddress          string
	FinalizationGraceSec int64

	repo        ports.RepoManager
	svc         application.Service
	scheduler   ports.SchedulerService
	liveStore   ports.LiveStore
	priceFeed   ports.PriceFeed
	signer      ports.Signer
	chain       *evmchain.Chain
	eventStream ports.EventStream
	clock       *roundclock.Clock
	feeds       []codec.Feed
}

func (c *Config) String() string {
	json, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir              = "DATADIR"
	Port                 = "PORT"
	LogLevel             = "LOG_LEVEL"
	EventDbType          = "EVENT_DB_TYPE"
	DbType               = "DB_TYPE"
	SchedulerType        = "SCHEDULER_TYPE"
	LiveStoreType        = "LIVE_STORE_TYPE"
	RedisUrl             = "REDIS_URL"
	RedisNumOfRetries    = "REDIS_NUM_OF_RETRIES"
	PriceFeedType        = "PRICE_FEED_TYPE"
	Feeds                = "FEEDS"
	StaticPrices         = "STATIC_PRICES"
	PriceJitterBips      = "PRICE_JITTER_BIPS"
	RpcUrl               = "RPC_URL"
	PrivateKey           = "PRIVATE_KEY"
	ChainId              = "CHAIN_ID"
	VotingContract       = "VOTING_CONTRACT"
	RegistryContract     = "REGISTRY_CONTRACT"
	RewardContract       = "REWARD_CONTRACT"
	EventPollInterval    = "EVENT_POLL_INTERVAL"
	StartBlock           = "START_BLOCK"
	FirstRoundStartSec   = "FIRST_ROUND_START_SEC"
	RoundDurationSec     = "ROUND_DURATION_SEC"
	FirstRewardedRound   = "FIRST_REWARDED_ROUND"
	RoundsPerRewardEpoch = "ROUNDS_PER_REWARD_EPOCH"
	SigningBips          = "SIGNING_BIPS"
	FinalizationBips     = "FINALIZATION_BIPS"
	ThresholdBips        = "THRESHOLD_BIPS"
	PenaltyFactor        = "PENALTY_FACTOR"
	BurnAddress          = "BURN_ADDRESS"
	FinalizationGraceSec = "FINALIZATION_GRACE_SEC"

	defaultDatadir              = appDataDir("ftsod")
	DefaultPort                 = 7080
	defaultLogLevel             = 4
	defaultDbType               = "sqlite"
	defaultEventDbType          = "badger"
	defaultSchedulerType        = "gocron"
	defaultLiveStoreType        = "inmemory"
	defaultRedisNumOfRetries    = 10
	defaultPriceFeedType        = "static"
	defaultEventPollInterval    = 2 * time.Second
	defaultRoundDurationSec     = 90
	defaultRoundsPerRewardEpoch = 240
	defaultSigningBips          = 1000
	defaultFinalizationBips     = 1000
	defaultThresholdBips        = 5000
	defaultPenaltyFactor        = 10
	defaultBurnAddress          = rewards.DefaultBurnAddress.Hex()
	defaultFinalizationGraceSec = 20
)

func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("FTSO")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(Port, DefaultPort)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(EventDbType, defaultEventDbType)
	viper.SetDefault(SchedulerType, defaultSchedulerType)
	viper.SetDefault(LiveStoreType, defaultLiveStoreType)
	viper.SetDefault(RedisNumOfRetries, defaultRedisNumOfRetries)
	viper.SetDefault(PriceFeedType, defaultPriceFeedType)
	viper.SetDefault(EventPollInterval, defaultEventPollInterval)
	viper.SetDefault(RoundDurationSec, defaultRoundDurationSec)
	viper.SetDefault(RoundsPerRewardEpoch, defaultRoundsPerRewardEpoch)
	viper.SetDefault(SigningBips, defaultSigningBips)
	viper.SetDefault(FinalizationBips, defaultFinalizationBips)
	viper.SetDefault(ThresholdBips, defaultThresholdBips)
	viper.SetDefault(PenaltyFactor, defaultPenaltyFactor)
	viper.SetDefault(BurnAddress, defaultBurnAddress)
	viper.SetDefault(FinalizationGraceSec, defaultFinalizationGraceSec)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	staticPrices, err := parsePrices(viper.GetString(StaticPrices))
	if err != nil {
		return nil, err
	}

	dbPath := filepath.Join(viper.GetString(Datadir), "db")

	return &Config{
		Datadir:              viper.GetString(Datadir),
		Port:                 viper.GetUint32(Port),
		LogLevel:             viper.GetInt(LogLevel),
		DbType:               viper.GetString(DbType),
		EventDbType:          viper.GetString(EventDbType),
		DbDir:                dbPath,
		EventDbDir:           dbPath,
		SchedulerType:        viper.GetString(SchedulerType),
		LiveStoreType:        viper.GetString(LiveStoreType),
		RedisUrl:             viper.GetString(RedisUrl),
		RedisNumOfRetries:    viper.GetInt(RedisNumOfRetries),
		PriceFeedType:        viper.GetString(PriceFeedType),
		Feeds:                splitList(viper.GetString(Feeds)),
		StaticPrices:         staticPrices,
		PriceJitterBips:      viper.GetUint32(PriceJitterBips),
		RpcUrl:               viper.GetString(RpcUrl),
		PrivateKey:           viper.GetString(PrivateKey),
		ChainId:              viper.GetInt64(ChainId),
		VotingContract:       viper.GetString(VotingContract),
		RegistryContract:     viper.GetString(RegistryContract),
		RewardContract:       viper.GetString(RewardContract),
		EventPollInterval:    viper.GetDuration(EventPollInterval),
		StartBlock:           viper.GetUint64(StartBlock),
		FirstRoundStartSec:   viper.GetUint64(FirstRoundStartSec),
		RoundDurationSec:     viper.GetUint64(RoundDurationSec),
		FirstRewardedRound:   viper.GetUint64(FirstRewardedRound),
		RoundsPerRewardEpoch: viper.GetUint64(RoundsPerRewardEpoch),
		SigningBips:          viper.GetUint64(SigningBips),
		FinalizationBips:     viper.GetUint64(FinalizationBips),
		ThresholdBips:        viper.GetUint64(ThresholdBips),
		PenaltyFactor:        viper.GetUint64(PenaltyFactor),
		BurnAddress:          viper.GetString(BurnAddress),
		FinalizationGraceSec: viper.GetInt64(FinalizationGraceSec),
	}, nil
}

func (c *Config) Validate() error {
	if !supportedEventDbs.supports(c.EventDbType) {
		return fmt.Errorf("event db type not supported, please select one of: %s", supportedEventDbs)
	}
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedSchedulers.supports(c.SchedulerType) {
		return fmt.Errorf("scheduler type not supported, please select one of: %s", supportedSchedulers)
	}
	if !supportedLiveStores.supports(c.LiveStoreType) {
		return fmt.Errorf("live store type not supported, please select one of: %s", supportedLiveStores)
	}
	if !supportedPriceFeeds.supports(c.PriceFeedType) {
		return fmt.Errorf("price feed type not supported, please select one of: %s", supportedPriceFeeds)
	}
	if len(c.Feeds) <= 0 {
		return fmt.Errorf("missing feeds")
	}
	if c.ThresholdBips == 0 || c.ThresholdBips > rewards.BipsDenominator {
		return fmt.Errorf("invalid threshold, must be in range (0, %d] bips", rewards.BipsDenominator)
	}
	if c.FinalizationGraceSec < 0 {
		return fmt.Errorf("invalid finalization grace period, must not be negative")
	}
	if !common.IsHexAddress(c.BurnAddress) {
		return fmt.Errorf("invalid burn address %s", c.BurnAddress)
	}
	for _, addr := range []string{c.VotingContract, c.RegistryContract, c.RewardContract} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid contract address %q", addr)
		}
	}
	if len(c.RpcUrl) <= 0 {
		return fmt.Errorf("missing rpc url")
	}
	if len(c.PrivateKey) <= 0 {
		return fmt.Errorf("missing private key")
	}

	if err := c.protocolParams(); err != nil {
		return err
	}
	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.liveStoreService(); err != nil {
		return err
	}
	if err := c.signerService(); err != nil {
		return err
	}
	if err := c.chainServices(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	if err := c.priceFeedService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

func (c *Config) protocolParams() error {
	clock, err := roundclock.New(roundclock.Config{
		FirstRoundStartSec:   c.FirstRoundStartSec,
		RoundDurationSec:     c.RoundDurationSec,
		FirstRewardedRound:   c.FirstRewardedRound,
		RoundsPerRewardEpoch: c.RoundsPerRewardEpoch,
	})
	if err != nil {
		return err
	}
	feeds, err := codec.ParseFeeds(c.Feeds)
	if err != nil {
		return err
	}

	c.clock = clock
	c.feeds = feeds
	return nil
}

func (c *Config) repoManager() error {
	var eventStoreConfig []interface{}
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.EventDbType {
	case "badger":
		eventStoreConfig = []interface{}{c.EventDbDir, logger}
	case "watermill":
		pubsub := gochannel.NewGoChannel(
			gochannel.Config{}, watermill.NewStdLogger(false, false),
		)
		eventStoreConfig = []interface{}{pubsub}
	default:
		return fmt.Errorf("unknown event db type")
	}

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		sqliteDb, err := sqlitedb.OpenDb(filepath.Join(c.DbDir, db.SqliteDbFile))
		if err != nil {
			return err
		}
		dataStoreConfig = []interface{}{sqliteDb}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		EventStoreType:   c.EventDbType,
		DataStoreType:    c.DbType,
		EventStoreConfig: eventStoreConfig,
		DataStoreConfig:  dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) liveStoreService() error {
	var liveStoreSvc ports.LiveStore
	switch c.LiveStoreType {
	case "inmemory":
		liveStoreSvc = inmemorylivestore.NewLiveStore()
	case "redis":
		if len(c.RedisUrl) <= 0 {
			return fmt.Errorf("missing redis url")
		}
		redisOpts, err := redis.ParseURL(c.RedisUrl)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		liveStoreSvc = redislivestore.NewLiveStore(rdb, c.RedisNumOfRetries)
	default:
		return fmt.Errorf("unknown liveStore type")
	}

	c.liveStore = liveStoreSvc
	return nil
}

func (c *Config) signerService() error {
	key, err := signer.ParsePrivateKey(c.PrivateKey)
	if err != nil {
		return err
	}
	svc, err := signer.NewSigner(key)
	if err != nil {
		return err
	}

	c.signer = svc
	return nil
}

func (c *Config) chainServices() error {
	client, err := ethclient.Dial(c.RpcUrl)
	if err != nil {
		return fmt.Errorf("failed to connect to rpc: %w", err)
	}
	key, err := signer.ParsePrivateKey(c.PrivateKey)
	if err != nil {
		return err
	}

	cfg := evmchain.Config{
		VotingContract:   common.HexToAddress(c.VotingContract),
		RewardContract:   common.HexToAddress(c.RewardContract),
		RegistryContract: common.HexToAddress(c.RegistryContract),
		ChainId:          big.NewInt(c.ChainId),
		PrivateKey:       key,
		StartBlock:       c.StartBlock,
		PollInterval:     c.EventPollInterval,
	}

	chain, err := evmchain.NewChain(client, cfg)
	if err != nil {
		return err
	}
	stream, err := evmchain.NewEventStream(client, cfg)
	if err != nil {
		return err
	}

	c.chain = chain
	c.eventStream = stream
	return nil
}

func (c *Config) schedulerService() error {
	var svc ports.SchedulerService
	var err error
	switch c.SchedulerType {
	case "gocron":
		svc = timescheduler.NewScheduler()
	case "block":
		svc, err = chainscheduler.NewScheduler(c.chain, c.EventPollInterval)
	default:
		err = fmt.Errorf("unknown scheduler type")
	}
	if err != nil {
		return err
	}

	c.scheduler = svc
	return nil
}

func (c *Config) priceFeedService() error {
	var svc ports.PriceFeed
	var err error
	switch c.PriceFeedType {
	case "static":
		svc, err = staticfeed.NewPriceFeed(c.StaticPrices)
	case "random":
		svc, err = randomfeed.NewPriceFeed(c.StaticPrices, c.PriceJitterBips, uint64(time.Now().UnixNano()))
	default:
		err = fmt.Errorf("unknown price feed type")
	}
	if err != nil {
		return err
	}

	c.priceFeed = svc
	return nil
}

func (c *Config) appService() error {
	svc, err := application.NewService(
		application.Config{
			Clock: c.clock,
			Feeds: c.feeds,
			RewardParams: rewards.Params{
				SigningBips:      c.SigningBips,
				FinalizationBips: c.FinalizationBips,
				PenaltyFactor:    c.PenaltyFactor,
				BurnAddress:      common.HexToAddress(c.BurnAddress),
			},
			ThresholdBips:     c.ThresholdBips,
			FinalizationGrace: time.Duration(c.FinalizationGraceSec) * time.Second,
		},
		c.repo, c.liveStore, c.scheduler, c.eventStream,
		c.chain, c.chain, c.chain, c.signer, c.priceFeed,
	)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

func appDataDir(appName string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(home, "."+appName)
}

// parsePrices parses a comma separated list of FEED=PRICE pairs.
func parsePrices(list string) (map[string]uint32, error) {
	prices := make(map[string]uint32)
	for _, pair := range splitList(list) {
		parts := strings.Split(pair, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid price %q, expected FEED=PRICE", pair)
		}
		price, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %s", pair, err)
		}
		prices[strings.TrimSpace(parts[0])] = uint32(price)
	}
	return prices, nil
}

func splitList(list string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); len(item) > 0 {
			items = append(items, item)
		}
	}
	return items
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
