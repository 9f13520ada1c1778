package rewards

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/renaultluk/sweat-coin/core/types"
)

const (
	EventTypeRewardIssued     = "sweat.reward.issued"
	EventTypeAggregateUpdated = "sweat.aggregate.updated"

	rewardReason = "Daily health activities"
)

func newRewardIssuedEvent(user common.Address, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeRewardIssued, Attributes: map[string]string{
		"user":   user.Hex(),
		"amount": amount.String(),
		"reason": rewardReason,
	}}
}

func newAggregateUpdatedEvent(day uint64, bucket *storedAggregate) *types.Event {
	return &types.Event{Type: EventTypeAggregateUpdated, Attributes: map[string]string{
		"day":                  strconv.FormatUint(day, 10),
		"totalSteps":           strconv.FormatUint(bucket.TotalSteps, 10),
		"totalSleepMinutes":    strconv.FormatUint(bucket.TotalSleepMinutes, 10),
		"totalExerciseMinutes": strconv.FormatUint(bucket.TotalExerciseMinutes, 10),
		"entryCount":           strconv.FormatUint(bucket.EntryCount, 10),
	}}
}
