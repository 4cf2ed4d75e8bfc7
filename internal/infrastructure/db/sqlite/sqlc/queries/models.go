package queries

type Round struct {
	ID                string
	Epoch             int64
	RewardEpoch       int64
	StartingTimestamp int64
	EndingTimestamp   int64
	StageCode         int64
	Ended             bool
	Failed            bool
	CommitHash        string
	Prices            string
	NumReveals        int64
	NumFailedReveals  int64
	MerkleRoot        string
	Random            string
	SecureRandom      bool
	Signature         []byte
	FinalizedRoot     string
	Finalizer         string
	FailReason        string
	Version           int64
}

type RoundResult struct {
	Round        int64
	Random       string
	SecureRandom bool
	MerkleRoot   string
}

type FeedResult struct {
	Round          int64
	FeedID         string
	Position       int64
	Voters         string
	Prices         string
	Weights        string
	MedianPrice    int64
	Quartile1Price int64
	Quartile3Price int64
}

type Finalization struct {
	Scope     string
	ID        int64
	Root      string
	Finalizer string
	Timestamp int64
}

type RewardEpochClaim struct {
	RewardEpoch int64
	MerkleRoot  string
}

type RewardClaim struct {
	RewardEpoch int64
	Position    int64
	ClaimType   int64
	Beneficiary string
	Currency    string
	Amount      string
	Round       int64
}
