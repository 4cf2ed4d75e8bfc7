package queries

import (
	"context"
)

const upsertRound = `
INSERT INTO round (
    id, epoch, reward_epoch, starting_timestamp, ending_timestamp, stage_code, ended, failed,
    commit_hash, prices, num_reveals, num_failed_reveals, merkle_root, random, secure_random,
    signature, finalized_root, finalizer, fail_reason, version
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    starting_timestamp = EXCLUDED.starting_timestamp,
    ending_timestamp = EXCLUDED.ending_timestamp,
    stage_code = EXCLUDED.stage_code,
    ended = EXCLUDED.ended,
    failed = EXCLUDED.failed,
    commit_hash = EXCLUDED.commit_hash,
    prices = EXCLUDED.prices,
    num_reveals = EXCLUDED.num_reveals,
    num_failed_reveals = EXCLUDED.num_failed_reveals,
    merkle_root = EXCLUDED.merkle_root,
    random = EXCLUDED.random,
    secure_random = EXCLUDED.secure_random,
    signature = EXCLUDED.signature,
    finalized_root = EXCLUDED.finalized_root,
    finalizer = EXCLUDED.finalizer,
    fail_reason = EXCLUDED.fail_reason,
    version = EXCLUDED.version
WHERE EXCLUDED.version >= round.version
`

func (q *Queries) UpsertRound(ctx context.Context, arg Round) error {
	_, err := q.db.ExecContext(ctx, upsertRound,
		arg.ID,
		arg.Epoch,
		arg.RewardEpoch,
		arg.StartingTimestamp,
		arg.EndingTimestamp,
		arg.StageCode,
		arg.Ended,
		arg.Failed,
		arg.CommitHash,
		arg.Prices,
		arg.NumReveals,
		arg.NumFailedReveals,
		arg.MerkleRoot,
		arg.Random,
		arg.SecureRandom,
		arg.Signature,
		arg.FinalizedRoot,
		arg.Finalizer,
		arg.FailReason,
		arg.Version,
	)
	return err
}

const selectRoundColumns = `
SELECT id, epoch, reward_epoch, starting_timestamp, ending_timestamp, stage_code, ended, failed,
    commit_hash, prices, num_reveals, num_failed_reveals, merkle_root, random, secure_random,
    signature, finalized_root, finalizer, fail_reason, version
FROM round
`

const selectRoundWithId = selectRoundColumns + `WHERE id = ?`

func (q *Queries) SelectRoundWithId(ctx context.Context, id string) (Round, error) {
	row := q.db.QueryRowContext(ctx, selectRoundWithId, id)
	return scanRound(row)
}

const selectRoundWithEpoch = selectRoundColumns + `WHERE epoch = ?`

func (q *Queries) SelectRoundWithEpoch(ctx context.Context, epoch int64) (Round, error) {
	row := q.db.QueryRowContext(ctx, selectRoundWithEpoch, epoch)
	return scanRound(row)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRound(row scanner) (Round, error) {
	var i Round
	err := row.Scan(
		&i.ID,
		&i.Epoch,
		&i.RewardEpoch,
		&i.StartingTimestamp,
		&i.EndingTimestamp,
		&i.StageCode,
		&i.Ended,
		&i.Failed,
		&i.CommitHash,
		&i.Prices,
		&i.NumReveals,
		&i.NumFailedReveals,
		&i.MerkleRoot,
		&i.Random,
		&i.SecureRandom,
		&i.Signature,
		&i.FinalizedRoot,
		&i.Finalizer,
		&i.FailReason,
		&i.Version,
	)
	return i, err
}

const selectRoundIdsInRange = `
SELECT id FROM round WHERE starting_timestamp > ? AND starting_timestamp < ?
`

type SelectRoundIdsInRangeParams struct {
	StartedAfter  int64
	StartedBefore int64
}

func (q *Queries) SelectRoundIdsInRange(ctx context.Context, arg SelectRoundIdsInRangeParams) ([]string, error) {
	return q.selectIds(ctx, selectRoundIdsInRange, arg.StartedAfter, arg.StartedBefore)
}

const selectAllRoundIds = `SELECT id FROM round`

func (q *Queries) SelectAllRoundIds(ctx context.Context) ([]string, error) {
	return q.selectIds(ctx, selectAllRoundIds)
}

func (q *Queries) selectIds(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertRoundResult = `
INSERT INTO round_result (round, random, secure_random, merkle_root) VALUES (?, ?, ?, ?)
ON CONFLICT(round) DO UPDATE SET
    random = EXCLUDED.random,
    secure_random = EXCLUDED.secure_random,
    merkle_root = EXCLUDED.merkle_root
`

func (q *Queries) UpsertRoundResult(ctx context.Context, arg RoundResult) error {
	_, err := q.db.ExecContext(ctx, upsertRoundResult,
		arg.Round,
		arg.Random,
		arg.SecureRandom,
		arg.MerkleRoot,
	)
	return err
}

const upsertFeedResult = `
INSERT INTO feed_result (
    round, feed_id, position, voters, prices, weights, median_price, quartile1_price, quartile3_price
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(round, feed_id) DO UPDATE SET
    position = EXCLUDED.position,
    voters = EXCLUDED.voters,
    prices = EXCLUDED.prices,
    weights = EXCLUDED.weights,
    median_price = EXCLUDED.median_price,
    quartile1_price = EXCLUDED.quartile1_price,
    quartile3_price = EXCLUDED.quartile3_price
`

func (q *Queries) UpsertFeedResult(ctx context.Context, arg FeedResult) error {
	_, err := q.db.ExecContext(ctx, upsertFeedResult,
		arg.Round,
		arg.FeedID,
		arg.Position,
		arg.Voters,
		arg.Prices,
		arg.Weights,
		arg.MedianPrice,
		arg.Quartile1Price,
		arg.Quartile3Price,
	)
	return err
}

const selectRoundResult = `
SELECT round, random, secure_random, merkle_root FROM round_result WHERE round = ?
`

func (q *Queries) SelectRoundResult(ctx context.Context, round int64) (RoundResult, error) {
	row := q.db.QueryRowContext(ctx, selectRoundResult, round)
	var i RoundResult
	err := row.Scan(
		&i.Round,
		&i.Random,
		&i.SecureRandom,
		&i.MerkleRoot,
	)
	return i, err
}

const selectFeedResults = `
SELECT round, feed_id, position, voters, prices, weights, median_price, quartile1_price, quartile3_price
FROM feed_result WHERE round = ? ORDER BY position
`

func (q *Queries) SelectFeedResults(ctx context.Context, round int64) ([]FeedResult, error) {
	rows, err := q.db.QueryContext(ctx, selectFeedResults, round)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []FeedResult
	for rows.Next() {
		var i FeedResult
		if err := rows.Scan(
			&i.Round,
			&i.FeedID,
			&i.Position,
			&i.Voters,
			&i.Prices,
			&i.Weights,
			&i.MedianPrice,
			&i.Quartile1Price,
			&i.Quartile3Price,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertFinalization = `
INSERT INTO finalization (scope, id, root, finalizer, timestamp) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(scope, id) DO UPDATE SET
    root = EXCLUDED.root,
    finalizer = EXCLUDED.finalizer,
    timestamp = EXCLUDED.timestamp
`

func (q *Queries) UpsertFinalization(ctx context.Context, arg Finalization) error {
	_, err := q.db.ExecContext(ctx, upsertFinalization,
		arg.Scope,
		arg.ID,
		arg.Root,
		arg.Finalizer,
		arg.Timestamp,
	)
	return err
}

const selectFinalization = `
SELECT scope, id, root, finalizer, timestamp FROM finalization WHERE scope = ? AND id = ?
`

type SelectFinalizationParams struct {
	Scope string
	ID    int64
}

func (q *Queries) SelectFinalization(ctx context.Context, arg SelectFinalizationParams) (Finalization, error) {
	row := q.db.QueryRowContext(ctx, selectFinalization, arg.Scope, arg.ID)
	var i Finalization
	err := row.Scan(
		&i.Scope,
		&i.ID,
		&i.Root,
		&i.Finalizer,
		&i.Timestamp,
	)
	return i, err
}

const upsertRewardEpochClaims = `
INSERT INTO reward_epoch_claims (reward_epoch, merkle_root) VALUES (?, ?)
ON CONFLICT(reward_epoch) DO UPDATE SET merkle_root = EXCLUDED.merkle_root
`

func (q *Queries) UpsertRewardEpochClaims(ctx context.Context, arg RewardEpochClaim) error {
	_, err := q.db.ExecContext(ctx, upsertRewardEpochClaims, arg.RewardEpoch, arg.MerkleRoot)
	return err
}

const deleteRewardClaims = `DELETE FROM reward_claim WHERE reward_epoch = ?`

func (q *Queries) DeleteRewardClaims(ctx context.Context, rewardEpoch int64) error {
	_, err := q.db.ExecContext(ctx, deleteRewardClaims, rewardEpoch)
	return err
}

const insertRewardClaim = `
INSERT INTO reward_claim (
    reward_epoch, position, claim_type, beneficiary, currency, amount, round
) VALUES (?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertRewardClaim(ctx context.Context, arg RewardClaim) error {
	_, err := q.db.ExecContext(ctx, insertRewardClaim,
		arg.RewardEpoch,
		arg.Position,
		arg.ClaimType,
		arg.Beneficiary,
		arg.Currency,
		arg.Amount,
		arg.Round,
	)
	return err
}

const selectRewardEpochClaims = `
SELECT reward_epoch, merkle_root FROM reward_epoch_claims WHERE reward_epoch = ?
`

func (q *Queries) SelectRewardEpochClaims(ctx context.Context, rewardEpoch int64) (RewardEpochClaim, error) {
	row := q.db.QueryRowContext(ctx, selectRewardEpochClaims, rewardEpoch)
	var i RewardEpochClaim
	err := row.Scan(&i.RewardEpoch, &i.MerkleRoot)
	return i, err
}

const selectRewardClaims = `
SELECT reward_epoch, position, claim_type, beneficiary, currency, amount, round
FROM reward_claim WHERE reward_epoch = ? ORDER BY position
`

func (q *Queries) SelectRewardClaims(ctx context.Context, rewardEpoch int64) ([]RewardClaim, error) {
	rows, err := q.db.QueryContext(ctx, selectRewardClaims, rewardEpoch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RewardClaim
	for rows.Next() {
		var i RewardClaim
		if err := rows.Scan(
			&i.RewardEpoch,
			&i.Position,
			&i.ClaimType,
			&i.Beneficiary,
			&i.Currency,
			&i.Amount,
			&i.Round,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
